// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package storage

import "time"

// TaskItem is the persistent snapshot of a transport task. The Store
// operates on TaskItems so deferrals, attempt counts and SLA deadlines
// survive a restart.
type TaskItem struct {
	Id    string `badgerhold:"key"`
	JobId string

	Subject string
	Origin  string
	Status  string

	Chosen         string
	Override       bool
	OverrideReason string

	DeferCount   int
	AttemptCount int

	Created   time.Time
	Deadline  time.Time
	NextCheck time.Time

	Terminal bool `badgerholdIndex:"Terminal"`
}

// BlacklistItem temporarily excludes a facility from selection. Expiry is
// checked lazily at read time; there is no background eviction.
type BlacklistItem struct {
	Facility string `badgerhold:"key"`
	Reason   string
	Expires  time.Time `badgerholdIndex:"Expires"`
}
