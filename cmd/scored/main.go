// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// scored is a small HTTP service scoring job titles by keyword, usable as
// the daemon's remote scorer.
package main

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/hgfantasy/mscbot/pkg/classify"
)

func scoreHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	score := classify.KeywordScore(name, classify.DefaultWeights())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{"score": score}); err != nil {
		log.WithError(err).Warn("Encoding score reply errored")
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func main() {
	listen := ":8080"
	if len(os.Args) == 2 {
		listen = os.Args[1]
	} else if len(os.Args) > 2 {
		log.Fatalf("Usage: %s [listen-address]", os.Args[0])
	}

	router := mux.NewRouter()
	router.HandleFunc("/score", scoreHandler).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)

	log.WithField("listen", listen).Info("Scoring service started")
	log.Fatal(http.ListenAndServe(listen, router))
}
