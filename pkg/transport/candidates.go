// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package transport

import (
	"context"
)

// candidates returns the destination candidates for a task through the
// read-through cache. A stale cache entry is refreshed from the source via
// the politeness gate; the freshness window is CandidateCacheTTL.
func (m *Manager) candidates(ctx context.Context, task *Task) ([]Candidate, error) {
	kind := task.Subject.Facility()

	m.mutex.Lock()
	if cached, ok := m.cache.candidates[kind]; ok {
		if m.now().Sub(m.cache.fetched[kind]) < m.cfg.CandidateCacheTTL {
			m.mutex.Unlock()
			return cached, nil
		}
	}
	m.mutex.Unlock()

	var fetched []Candidate
	err := m.gate.Do(ctx, "refresh_candidates", func(ctx context.Context) error {
		cs, err := m.source.Candidates(ctx, task)
		if err != nil {
			return err
		}
		fetched = cs
		return nil
	})
	if err != nil {
		return nil, err
	}

	matching := make([]Candidate, 0, len(fetched))
	for _, c := range fetched {
		if c.Kind == "" || c.Kind == kind {
			matching = append(matching, c)
		}
	}

	m.mutex.Lock()
	m.cache.candidates[kind] = matching
	m.cache.fetched[kind] = m.now()
	m.mutex.Unlock()

	return matching, nil
}
