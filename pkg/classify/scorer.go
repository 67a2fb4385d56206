// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Scorer is a client for the scoring service's GET /score endpoint.
type Scorer struct {
	base   string
	client *http.Client
}

// NewScorer creates a Scorer for the service at base, e.g.
// "http://localhost:8080". The timeout bounds each request; it defaults to
// two seconds, short enough that an absent service does not stall the loop.
func NewScorer(base string, timeout time.Duration) *Scorer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &Scorer{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

// Score fetches the score for a job title.
func (s *Scorer) Score(ctx context.Context, name string) (int, error) {
	u := fmt.Sprintf("%s/score?name=%s", s.base, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer replied %s", resp.Status)
	}

	var payload struct {
		Score int `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decoding scorer reply errored: %v", err)
	}

	return payload.Score, nil
}
