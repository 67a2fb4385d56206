// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package transport owns the per-task state machine of the engine: facility
// selection under distance/cost/capacity constraints, deferral, escalation
// and SLA enforcement, including the facility blacklist.
package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/hgfantasy/mscbot/pkg/gate"
	"github.com/hgfantasy/mscbot/pkg/storage"
)

// Event names published by the Manager.
const (
	EventAdmitted    = "transport_admitted"
	EventDeferred    = "transport_deferred"
	EventEscalated   = "transport_escalated"
	EventDelivered   = "transport_delivered"
	EventFailed      = "transport_failed"
	EventBlacklisted = "facility_blacklisted"
)

// maxBlacklistPerAttempt bounds how many capacity-blocked facilities one
// failed attempt may blacklist.
const maxBlacklistPerAttempt = 5

// Prefs are the per-SubjectKind selection constraints.
type Prefs struct {
	MaxDistance float64
	MaxCostPct  float64
	MinFree     int
	SLA         time.Duration
	Fallback    string
	Recheck     time.Duration
}

// Config holds the transport tuning.
type Config struct {
	Prefs map[SubjectKind]Prefs

	BlacklistTTL        time.Duration
	AttemptBudget       int
	EscalateAfterDefers int

	// AdmitMin/AdmitMax bound the random number of tasks processed per
	// loop iteration, the engine's backpressure mechanism.
	AdmitMin int
	AdmitMax int

	// CandidateCacheTTL is the freshness window of the read-through
	// candidate cache.
	CandidateCacheTTL time.Duration
}

// DefaultConfig mirrors the stock configuration.
func DefaultConfig() Config {
	return Config{
		Prefs: map[SubjectKind]Prefs{
			SubjectPatient: {
				MaxDistance: 25,
				MaxCostPct:  20,
				MinFree:     1,
				SLA:         15 * time.Minute,
				Fallback:    "wait",
				Recheck:     10 * time.Minute,
			},
			SubjectPrisoner: {
				MaxDistance: 25,
				MaxCostPct:  20,
				MinFree:     1,
				SLA:         20 * time.Minute,
				Fallback:    "wait",
				Recheck:     10 * time.Minute,
			},
		},
		BlacklistTTL:        45 * time.Minute,
		AttemptBudget:       2,
		EscalateAfterDefers: 3,
		AdmitMin:            122,
		AdmitMax:            189,
		CandidateCacheTTL:   10 * time.Second,
	}
}

// Validate checks the Config for startup.
func (cfg Config) Validate() error {
	for kind, prefs := range cfg.Prefs {
		if prefs.MaxDistance <= 0 {
			return fmt.Errorf("%s: max distance must be > 0", kind)
		}
		if prefs.MaxCostPct < 0 {
			return fmt.Errorf("%s: max cost pct must be >= 0", kind)
		}
		if prefs.SLA <= 0 {
			return fmt.Errorf("%s: sla must be > 0", kind)
		}
		if prefs.Recheck <= 0 {
			return fmt.Errorf("%s: recheck interval must be > 0", kind)
		}
		if _, err := PolicyByName(prefs.Fallback); err != nil {
			return fmt.Errorf("%s: %v", kind, err)
		}
	}

	if cfg.AttemptBudget < 1 {
		return fmt.Errorf("attempt budget must be >= 1")
	}
	if cfg.AdmitMin < 1 || cfg.AdmitMax < cfg.AdmitMin {
		return fmt.Errorf("admit range [%d, %d] is invalid", cfg.AdmitMin, cfg.AdmitMax)
	}

	return nil
}

// CandidateSource provides the current destination candidates for a task.
// Implementations are expected to be driver-backed and may fail transiently.
type CandidateSource interface {
	Candidates(ctx context.Context, task *Task) ([]Candidate, error)
}

// Executor performs the externally visible transport action for a chosen
// candidate. Failures must carry the gate's transient/permanent classes.
type Executor interface {
	ExecuteTransport(ctx context.Context, task *Task, choice Candidate) error
}

// Publisher is the event sink, satisfied by *bus.Bus.
type Publisher interface {
	Emit(name string, payload interface{})
}

// Manager owns all in-flight transport tasks. All mutation happens inside
// one Tick pass; a task already in StatusSelecting is skipped by any
// overlapping pass instead of being re-entered.
type Manager struct {
	mutex sync.Mutex

	cfg      Config
	store    *storage.Store
	source   CandidateSource
	executor Executor
	gate     *gate.Gate
	events   Publisher

	tasks map[string]*Task
	order []string

	// In-memory blacklist, used when no store is attached.
	blacklist map[string]storage.BlacklistItem

	cache cacheState

	now func() time.Time
	rng *rand.Rand
}

type cacheState struct {
	candidates map[FacilityKind][]Candidate
	fetched    map[FacilityKind]time.Time
}

// NewManager creates a Manager and restores active tasks from the store.
// The store may be nil, in which case all state is kept in memory only.
func NewManager(cfg Config, store *storage.Store, source CandidateSource, executor Executor, g *gate.Gate, events Publisher) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		store:     store,
		source:    source,
		executor:  executor,
		gate:      g,
		events:    events,
		tasks:     make(map[string]*Task),
		blacklist: make(map[string]storage.BlacklistItem),
		cache: cacheState{
			candidates: make(map[FacilityKind][]Candidate),
			fetched:    make(map[FacilityKind]time.Time),
		},
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if store != nil {
		tis, err := store.QueryActive()
		if err != nil {
			return nil, fmt.Errorf("restoring tasks errored: %v", err)
		}

		for _, ti := range tis {
			task := taskFromItem(ti)
			m.tasks[task.Id] = task
			m.order = append(m.order, task.Id)
		}

		if len(tis) > 0 {
			log.WithField("tasks", len(tis)).Info("Restored active transport tasks")
		}
	}

	return m, nil
}

// SetClock replaces the time source, used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.now = now
}

// Task returns a snapshot of the task with the given id.
func (m *Manager) Task(id string) (Task, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task, ok := m.tasks[id]; ok {
		return *task, true
	}
	return Task{}, false
}

// TaskByJob returns the most recently admitted task for a job.
func (m *Manager) TaskByJob(jobId string) (Task, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := len(m.order) - 1; i >= 0; i-- {
		if task, ok := m.tasks[m.order[i]]; ok && task.JobId == jobId {
			return *task, true
		}
	}
	return Task{}, false
}

// Active returns the number of tasks not yet in a terminal state.
func (m *Manager) Active() (n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, task := range m.tasks {
		if !task.Status.Terminal() {
			n++
		}
	}
	return
}

// Admit registers a new transport task for a job. Admission is idempotent
// per job: a second call for a known job returns the existing task.
func (m *Manager) Admit(jobId string, subject SubjectKind, origin string) *Task {
	m.mutex.Lock()

	for _, task := range m.tasks {
		if task.JobId == jobId && !task.Status.Terminal() {
			m.mutex.Unlock()
			return task
		}
	}

	now := m.now()
	task := &Task{
		Id:       uuid.NewString(),
		JobId:    jobId,
		Subject:  subject,
		Origin:   origin,
		Status:   StatusPending,
		Created:  now,
		Deadline: now.Add(m.cfg.Prefs[subject].SLA),
	}

	m.tasks[task.Id] = task
	m.order = append(m.order, task.Id)
	m.persist(task)
	m.mutex.Unlock()

	log.WithFields(log.Fields{
		"task":     task.Id,
		"job":      jobId,
		"subject":  subject,
		"deadline": task.Deadline,
	}).Info("Transport task admitted")

	m.emit(EventAdmitted, task.Id)

	return task
}

// Tick advances the transport state machine by one pass. The number of
// processed tasks is capped by a random draw from the admit range.
func (m *Manager) Tick(ctx context.Context) {
	m.mutex.Lock()
	limit := m.cfg.AdmitMin
	if m.cfg.AdmitMax > m.cfg.AdmitMin {
		limit += m.rng.Intn(m.cfg.AdmitMax - m.cfg.AdmitMin + 1)
	}
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mutex.Unlock()

	processed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if processed >= limit {
			break
		}

		m.mutex.Lock()
		task, ok := m.tasks[id]
		if !ok || !m.due(task) {
			m.mutex.Unlock()
			continue
		}
		task.Status = StatusSelecting
		m.mutex.Unlock()

		processed++
		m.process(ctx, task)
	}
}

// due decides whether a task is picked up by this pass. Terminal tasks and
// tasks owned by another pass are skipped; a breached SLA overrides the
// recheck schedule. Must be called with the mutex held.
func (m *Manager) due(task *Task) bool {
	if task.Status.Terminal() || task.Status == StatusSelecting ||
		task.Status == StatusDispatched || task.Status == StatusEscalated {
		return false
	}

	now := m.now()
	if now.After(task.Deadline) {
		return true
	}
	return !task.NextCheck.After(now)
}

// process runs one selection attempt for a task already acquired by the
// calling pass.
func (m *Manager) process(ctx context.Context, task *Task) {
	m.mutex.Lock()
	task.AttemptCount++
	attempts := task.AttemptCount
	m.mutex.Unlock()

	logger := log.WithFields(log.Fields{
		"task":    task.Id,
		"subject": task.Subject,
		"attempt": attempts,
	})

	if attempts > m.cfg.AttemptBudget {
		m.fail(task, "attempt budget exhausted")
		return
	}

	candidates, err := m.candidates(ctx, task)
	if err != nil {
		logger.WithError(err).Warn("Candidate refresh failed, rescheduling task")
		m.reschedule(task, StatusPending)
		return
	}

	prefs := m.cfg.Prefs[task.Subject]

	if m.now().After(task.Deadline) {
		if !m.escalate(ctx, task, candidates, "sla breached") {
			m.deferTask(task, "sla breached, no facility available")
		}
		return
	}

	if eligible := m.filter(prefs, candidates); len(eligible) > 0 {
		m.dispatch(ctx, task, rank(eligible)[0], false, "")
		return
	}

	if m.cfg.EscalateAfterDefers > 0 && task.DeferCount >= m.cfg.EscalateAfterDefers {
		logger.WithField("defers", task.DeferCount).Info("Deferral threshold reached, escalating")
		if m.escalate(ctx, task, candidates, "deferral threshold reached") {
			return
		}
	}

	policy, policyErr := PolicyByName(prefs.Fallback)
	if policyErr == nil && policy.Name() != "wait" {
		if choice, ok := policy.Select(prefs, m.clearBlacklisted(candidates)); ok {
			m.dispatch(ctx, task, choice, true, fmt.Sprintf("fallback policy %s", policy.Name()))
			return
		}
	}

	m.blacklistBlocked(prefs, candidates)
	m.deferTask(task, "no qualifying facility")
}

// filter applies the full constraint set: distance cap, cost cap, minimum
// free capacity and blacklist expiry.
func (m *Manager) filter(prefs Prefs, candidates []Candidate) (eligible []Candidate) {
	now := m.now()
	for _, c := range candidates {
		if c.Distance > prefs.MaxDistance || c.CostPct > prefs.MaxCostPct || !c.hasCapacity(prefs.MinFree) {
			continue
		}
		if _, active := m.blacklistedUntil(c.Id, now); active {
			continue
		}
		eligible = append(eligible, c)
	}
	return
}

// clearBlacklisted strips currently blacklisted candidates.
func (m *Manager) clearBlacklisted(candidates []Candidate) (cleared []Candidate) {
	now := m.now()
	for _, c := range candidates {
		if _, active := m.blacklistedUntil(c.Id, now); !active {
			cleared = append(cleared, c)
		}
	}
	return
}

// escalate relaxes the non-capacity constraints and accepts the best-ranked
// candidate. Candidates with free capacity that are not blacklisted are
// preferred, then any with capacity, then anything at all. The acceptance
// is recorded as an override.
func (m *Manager) escalate(ctx context.Context, task *Task, candidates []Candidate, reason string) bool {
	if len(candidates) == 0 {
		return false
	}

	m.mutex.Lock()
	task.Status = StatusEscalated
	m.persist(task)
	m.mutex.Unlock()

	m.emit(EventEscalated, task.Id)

	prefs := m.cfg.Prefs[task.Subject]

	tiers := [][]Candidate{}
	var withCapacity []Candidate
	for _, c := range candidates {
		if c.hasCapacity(prefs.MinFree) {
			withCapacity = append(withCapacity, c)
		}
	}
	tiers = append(tiers, m.clearBlacklisted(withCapacity), withCapacity, candidates)

	for _, tier := range tiers {
		if len(tier) == 0 {
			continue
		}

		choice := rank(tier)[0]
		log.WithFields(log.Fields{
			"task":     task.Id,
			"facility": choice.Id,
			"reason":   reason,
		}).Info("Escalation override, accepting candidate beyond caps")

		m.dispatch(ctx, task, choice, true, reason)
		return true
	}

	return false
}

// dispatch executes the transport decision through the politeness gate and
// settles the task's terminal or retry state.
func (m *Manager) dispatch(ctx context.Context, task *Task, choice Candidate, override bool, reason string) {
	m.mutex.Lock()
	task.Status = StatusDispatched
	m.persist(task)
	m.mutex.Unlock()

	err := m.gate.Do(ctx, "transport", func(ctx context.Context) error {
		return m.executor.ExecuteTransport(ctx, task, choice)
	})

	switch {
	case err == nil:
		m.mutex.Lock()
		chosen := choice
		task.Chosen = &chosen
		if override {
			task.Override = true
			task.OverrideReason = reason
		}
		task.Status = StatusDelivered
		m.persist(task)
		m.mutex.Unlock()

		log.WithFields(log.Fields{
			"task":     task.Id,
			"facility": choice.Id,
			"override": override,
		}).Info("Transport delivered")

		m.emit(EventDelivered, task.Id)

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		// Shutdown or a timed-out pass is no verdict on the task. Put it
		// back without counting so a restart picks it up unchanged.
		log.WithFields(log.Fields{
			"task":  task.Id,
			"error": err,
		}).Info("Transport action interrupted, rescheduling")

		m.reschedule(task, StatusDeferred)

	case gate.IsRetryExhausted(err):
		log.WithFields(log.Fields{
			"task":  task.Id,
			"error": err,
		}).Warn("Transport action retries exhausted, rescheduling")

		m.reschedule(task, StatusDeferred)

	default:
		log.WithFields(log.Fields{
			"task":  task.Id,
			"error": err,
		}).Error("Transport action failed permanently")

		m.fail(task, fmt.Sprintf("permanent failure: %v", err))
	}
}

// deferTask counts a deferral and schedules the next attempt.
func (m *Manager) deferTask(task *Task, reason string) {
	m.mutex.Lock()
	task.DeferCount++
	task.Status = StatusDeferred
	task.NextCheck = m.now().Add(m.cfg.Prefs[task.Subject].Recheck)
	m.persist(task)
	defers := task.DeferCount
	next := task.NextCheck
	m.mutex.Unlock()

	log.WithFields(log.Fields{
		"task":       task.Id,
		"reason":     reason,
		"defers":     defers,
		"next_check": next,
	}).Info("Transport task deferred")

	m.emit(EventDeferred, task.Id)
}

// reschedule puts a task back into the given state without counting a
// deferral, e.g. after a candidate refresh failure.
func (m *Manager) reschedule(task *Task, status Status) {
	m.mutex.Lock()
	task.Status = status
	task.NextCheck = m.now().Add(m.cfg.Prefs[task.Subject].Recheck)
	m.persist(task)
	m.mutex.Unlock()
}

// fail marks a task as terminally failed, with a logged reason.
func (m *Manager) fail(task *Task, reason string) {
	m.mutex.Lock()
	task.Status = StatusFailed
	m.persist(task)
	m.mutex.Unlock()

	log.WithFields(log.Fields{
		"task":   task.Id,
		"reason": reason,
	}).Error("Transport task failed")

	m.emit(EventFailed, task.Id)
}

// persist writes the task snapshot if a store is attached. Must be called
// with the mutex held.
func (m *Manager) persist(task *Task) {
	if m.store == nil {
		return
	}

	if err := m.store.UpsertTask(task.Item()); err != nil {
		log.WithField("task", task.Id).WithError(err).Warn("Failed to persist task")
	}
}

func (m *Manager) emit(name string, taskId string) {
	if m.events != nil {
		m.events.Emit(name, taskId)
	}
}
