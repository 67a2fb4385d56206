// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// mscbotd is the automation engine daemon: it watches the mission list,
// scores and dispatches jobs, and works the transport queue, configured
// through a TOML file.
package main

import (
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/pkg/profile"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	c, watcher, profiling, err := parseCore(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}

	if profiling {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	c.Start()

	select {
	case <-c.Done():
		log.Info("Received stop command")
	case <-sigintChan():
		log.Info("Received interrupt signal")
	}

	log.Info("Shutting down..")

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Closing command watcher errored")
		}
	}

	if err := c.Close(); err != nil {
		log.WithError(err).Error("Shutdown errored")
	}
}

// sigintChan returns a channel closed on the first SIGINT.
func sigintChan() <-chan struct{} {
	ack := make(chan struct{})
	syn := make(chan os.Signal, 1)

	signal.Notify(syn, os.Interrupt)

	go func() {
		<-syn
		close(ack)
	}()

	return ack
}
