// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/score?name=Major+wildfire+near+airport", nil)
	rec := httptest.NewRecorder()

	scoreHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	assert.Equal(t, 17, payload["score"])
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
