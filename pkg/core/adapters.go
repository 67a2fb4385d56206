// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package core

import (
	"context"

	"github.com/hgfantasy/mscbot/pkg/driver"
	"github.com/hgfantasy/mscbot/pkg/transport"
)

// sessionCandidates adapts the driver session to the transport manager's
// candidate source. Raw errors are classified into the gate's taxonomy and
// fed to the session health counters.
type sessionCandidates struct {
	session driver.Session
	observe func(err error)
}

func (sc sessionCandidates) Candidates(ctx context.Context, task *transport.Task) ([]transport.Candidate, error) {
	options, err := sc.session.FacilityCandidates(ctx, string(task.Subject.Facility()))
	if err != nil {
		sc.observe(err)
		return nil, driver.Classify(err)
	}

	candidates := make([]transport.Candidate, 0, len(options))
	for _, option := range options {
		candidates = append(candidates, transport.Candidate{
			Id:       option.Id,
			Kind:     transport.FacilityKind(option.Kind),
			Distance: option.Distance,
			CostPct:  option.CostPct,
			Free:     option.Free,
		})
	}
	return candidates, nil
}

// sessionExecutor adapts the driver session to the transport manager's
// executor.
type sessionExecutor struct {
	session driver.Session
	observe func(err error)
}

func (se sessionExecutor) ExecuteTransport(ctx context.Context, task *transport.Task, choice transport.Candidate) error {
	if err := se.session.ExecuteTransport(ctx, task.JobId, choice.Id); err != nil {
		se.observe(err)
		return driver.Classify(err)
	}
	return nil
}

// subjectKind maps a scraped transport subject onto the transport kinds.
// Unknown subjects default to patient, the common case.
func subjectKind(subject string) transport.SubjectKind {
	if transport.SubjectKind(subject) == transport.SubjectPrisoner {
		return transport.SubjectPrisoner
	}
	return transport.SubjectPatient
}
