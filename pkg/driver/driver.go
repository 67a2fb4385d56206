// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package driver describes the UI-automation boundary. The real browser
// driver lives outside this repository; the engine only relies on the
// primitives below and on every failure being distinguishable as transient
// or permanent, see Classify.
package driver

import "context"

// RawJob is a job descriptor as scraped from the job list: an identifier and
// the raw title, nothing derived yet.
type RawJob struct {
	Id    string
	Title string
}

// TransportRequest is a pending transport as shown on a job's detail page.
type TransportRequest struct {
	JobId   string
	Subject string
	Origin  string
}

// FacilityOption is one destination facility as scraped from the facility
// picker. Free is negative when the page does not show a capacity.
type FacilityOption struct {
	Id       string
	Kind     string
	Distance float64
	CostPct  float64
	Free     int
}

// Driver exposes the navigate/click/fill primitives of the underlying
// UI-automation. Implementations must wrap returned errors with the
// transient/permanent failure classes of the gate package, Classify helps.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector string, text string) error
}

// Session is the full automation surface the engine's loops run against: the
// raw primitives plus the retrieval and dispatch operations built on them.
type Session interface {
	Driver

	// MissionList returns the currently listed jobs.
	MissionList(ctx context.Context) ([]RawJob, error)

	// TransportRequests returns the pending transport requests.
	TransportRequests(ctx context.Context) ([]TransportRequest, error)

	// FacilityCandidates returns the destination options for a facility
	// kind, e.g. "medical" or "custodial".
	FacilityCandidates(ctx context.Context, kind string) ([]FacilityOption, error)

	// DispatchJob assigns the given resources to a job.
	DispatchJob(ctx context.Context, jobId string, resources []string) error

	// ExecuteTransport sends a transport to the chosen facility.
	ExecuteTransport(ctx context.Context, jobId string, facility string) error
}
