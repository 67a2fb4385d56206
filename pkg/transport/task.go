// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package transport

import (
	"time"

	"github.com/hgfantasy/mscbot/pkg/storage"
)

// SubjectKind describes who is being transported.
type SubjectKind string

const (
	SubjectPatient  SubjectKind = "patient"
	SubjectPrisoner SubjectKind = "prisoner"
)

// FacilityKind is the matching destination category for a SubjectKind.
type FacilityKind string

const (
	FacilityMedical   FacilityKind = "medical"
	FacilityCustodial FacilityKind = "custodial"
)

// Facility returns the destination category for this SubjectKind.
func (sk SubjectKind) Facility() FacilityKind {
	if sk == SubjectPrisoner {
		return FacilityCustodial
	}
	return FacilityMedical
}

// Status of a transport task. StatusDelivered and StatusFailed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSelecting  Status = "selecting"
	StatusDispatched Status = "dispatched"
	StatusDelivered  Status = "delivered"
	StatusDeferred   Status = "deferred"
	StatusEscalated  Status = "escalated"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Candidate is one possible destination facility, refreshed from the
// candidate source on each selection attempt.
type Candidate struct {
	Id       string
	Kind     FacilityKind
	Distance float64
	CostPct  float64

	// Free is the facility's free capacity. A negative value means the
	// capacity is unknown, which passes the minimum-capacity filter.
	Free int
}

// hasCapacity checks the minimum free capacity constraint.
func (c Candidate) hasCapacity(min int) bool {
	return c.Free < 0 || c.Free >= min
}

// Task is one in-flight transport decision, owned exclusively by the
// Manager. Defer and attempt counters are monotonic until a terminal
// transition.
type Task struct {
	Id    string
	JobId string

	Subject SubjectKind
	Origin  string
	Status  Status

	Chosen         *Candidate
	Override       bool
	OverrideReason string

	DeferCount   int
	AttemptCount int

	Created   time.Time
	Deadline  time.Time
	NextCheck time.Time
}

// Item converts the Task into its persistent snapshot.
func (t *Task) Item() storage.TaskItem {
	chosen := ""
	if t.Chosen != nil {
		chosen = t.Chosen.Id
	}

	return storage.TaskItem{
		Id:             t.Id,
		JobId:          t.JobId,
		Subject:        string(t.Subject),
		Origin:         t.Origin,
		Status:         string(t.Status),
		Chosen:         chosen,
		Override:       t.Override,
		OverrideReason: t.OverrideReason,
		DeferCount:     t.DeferCount,
		AttemptCount:   t.AttemptCount,
		Created:        t.Created,
		Deadline:       t.Deadline,
		NextCheck:      t.NextCheck,
		Terminal:       t.Status.Terminal(),
	}
}

// taskFromItem restores a Task from its persistent snapshot. A task caught
// mid-selection by a crash is resumed as pending.
func taskFromItem(ti storage.TaskItem) *Task {
	status := Status(ti.Status)
	if status == StatusSelecting || status == StatusDispatched || status == StatusEscalated {
		status = StatusPending
	}

	return &Task{
		Id:             ti.Id,
		JobId:          ti.JobId,
		Subject:        SubjectKind(ti.Subject),
		Origin:         ti.Origin,
		Status:         status,
		Override:       ti.Override,
		OverrideReason: ti.OverrideReason,
		DeferCount:     ti.DeferCount,
		AttemptCount:   ti.AttemptCount,
		Created:        ti.Created,
		Deadline:       ti.Deadline,
		NextCheck:      ti.NextCheck,
	}
}
