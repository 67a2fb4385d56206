// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package driver

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Fake is an in-memory Session for tests and dry-run operation. Scripted
// state is set through the setters; every operation can be made to fail by
// queueing errors for its name.
type Fake struct {
	mutex sync.Mutex

	jobs       []RawJob
	transports []TransportRequest
	facilities map[string][]FacilityOption

	// Dispatched and Transported record the externally visible actions.
	Dispatched  map[string][]string
	Transported map[string]string

	failures map[string][]error
	ops      []string
}

// NewFake creates an empty Fake session.
func NewFake() *Fake {
	return &Fake{
		facilities:  make(map[string][]FacilityOption),
		Dispatched:  make(map[string][]string),
		Transported: make(map[string]string),
		failures:    make(map[string][]error),
	}
}

// SetJobs replaces the scripted job list.
func (f *Fake) SetJobs(jobs []RawJob) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.jobs = jobs
}

// SetTransports replaces the scripted transport requests.
func (f *Fake) SetTransports(reqs []TransportRequest) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.transports = reqs
}

// SetFacilities replaces the scripted facility options for a kind.
func (f *Fake) SetFacilities(kind string, options []FacilityOption) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.facilities[kind] = options
}

// FailNext queues an error returned by the next calls of the named
// operation, in order. Operation names match the Session method names.
func (f *Fake) FailNext(op string, errs ...error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.failures[op] = append(f.failures[op], errs...)
}

// DispatchedResources returns the resources dispatched to a job, or nil.
func (f *Fake) DispatchedResources(jobId string) []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]string(nil), f.Dispatched[jobId]...)
}

// DispatchedCount returns the number of dispatched jobs.
func (f *Fake) DispatchedCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return len(f.Dispatched)
}

// TransportedTo returns the facility a job's transport went to, or "".
func (f *Fake) TransportedTo(jobId string) string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.Transported[jobId]
}

// Ops returns the operations performed so far, in order.
func (f *Fake) Ops() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	ops := make([]string, len(f.ops))
	copy(ops, f.ops)
	return ops
}

// enter records the operation and pops a queued failure, if any. Must be
// called with the mutex held.
func (f *Fake) enter(op string) error {
	f.ops = append(f.ops, op)

	queue := f.failures[op]
	if len(queue) == 0 {
		return nil
	}

	err := queue[0]
	f.failures[op] = queue[1:]
	return err
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	log.WithField("url", url).Debug("Fake navigation")
	return f.enter("Navigate")
}

func (f *Fake) Click(_ context.Context, selector string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	log.WithField("selector", selector).Debug("Fake click")
	return f.enter("Click")
}

func (f *Fake) Fill(_ context.Context, selector string, _ string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	log.WithField("selector", selector).Debug("Fake fill")
	return f.enter("Fill")
}

func (f *Fake) MissionList(_ context.Context) ([]RawJob, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := f.enter("MissionList"); err != nil {
		return nil, err
	}

	jobs := make([]RawJob, len(f.jobs))
	copy(jobs, f.jobs)
	return jobs, nil
}

func (f *Fake) TransportRequests(_ context.Context) ([]TransportRequest, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := f.enter("TransportRequests"); err != nil {
		return nil, err
	}

	reqs := make([]TransportRequest, len(f.transports))
	copy(reqs, f.transports)
	return reqs, nil
}

func (f *Fake) FacilityCandidates(_ context.Context, kind string) ([]FacilityOption, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := f.enter("FacilityCandidates"); err != nil {
		return nil, err
	}

	options := make([]FacilityOption, len(f.facilities[kind]))
	copy(options, f.facilities[kind])
	return options, nil
}

func (f *Fake) DispatchJob(_ context.Context, jobId string, resources []string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := f.enter("DispatchJob"); err != nil {
		return err
	}

	f.Dispatched[jobId] = append([]string{}, resources...)
	return nil
}

func (f *Fake) ExecuteTransport(_ context.Context, jobId string, facility string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := f.enter("ExecuteTransport"); err != nil {
		return err
	}

	f.Transported[jobId] = facility
	return nil
}
