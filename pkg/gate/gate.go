// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package gate implements the politeness gate: every externally visible
// action runs through it. The gate bounds concurrency with a counting
// semaphore, retries transient failures with exponential backoff and jitter,
// and inserts entry/exit dwell delays scaled by the pacing model.
package gate

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hgfantasy/mscbot/pkg/pacing"
)

// Dwell describes a randomized delay drawn from Base ± Spread.
type Dwell struct {
	Base   time.Duration
	Spread time.Duration
}

// Budget holds the per-session politeness tunables. It is immutable once the
// Gate is created; all values are sourced from configuration and may be
// overridden via environment at session start.
type Budget struct {
	// MaxConcurrency bounds simultaneous in-flight actions.
	MaxConcurrency int

	// RetryAttempts is the total number of tries for transient failures.
	RetryAttempts int

	// RetryBase is the first backoff delay, doubled per attempt, plus a
	// random jitter of up to RetryJitter.
	RetryBase   time.Duration
	RetryJitter time.Duration

	// Entry and Exit dwell surround the action itself.
	Entry Dwell
	Exit  Dwell
}

// DefaultBudget mirrors the stock configuration.
func DefaultBudget() Budget {
	return Budget{
		MaxConcurrency: 2,
		RetryAttempts:  3,
		RetryBase:      400 * time.Millisecond,
		RetryJitter:    300 * time.Millisecond,
		Entry:          Dwell{Base: 250 * time.Millisecond, Spread: 100 * time.Millisecond},
		Exit:           Dwell{Base: 175 * time.Millisecond, Spread: 75 * time.Millisecond},
	}
}

// Action is an opaque unit of work, e.g. a navigation or interaction.
// It must report failures wrapped as Transient or Permanent.
type Action func(ctx context.Context) error

// Gate wraps Actions with the politeness mechanics. No action may run
// outside this wrapper.
type Gate struct {
	budget Budget
	model  *pacing.Model
	slots  chan struct{}

	randMutex sync.Mutex
	rng       *rand.Rand

	sleep func(ctx context.Context, d time.Duration)
}

// New creates a Gate from a Budget and the session's pacing model.
func New(budget Budget, model *pacing.Model) *Gate {
	if budget.MaxConcurrency < 1 {
		budget.MaxConcurrency = 1
	}
	if budget.RetryAttempts < 1 {
		budget.RetryAttempts = 1
	}

	return &Gate{
		budget: budget,
		model:  model,
		slots:  make(chan struct{}, budget.MaxConcurrency),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Budget returns the immutable budget of this Gate.
func (g *Gate) Budget() Budget {
	return g.budget
}

// Do acquires a concurrency slot, dwells, runs the action with retries and
// dwells again. It returns the action's error classification: a permanent
// failure propagates on first occurrence, exhausted transient retries are
// reported as RetryExhaustedError. Cancellation lets the current attempt
// finish but stops further retries.
func (g *Gate) Do(ctx context.Context, name string, action Action) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.slots }()

	g.dwell(ctx, g.budget.Entry)
	g.model.RecordAction()

	var last error
	var tries int
	for attempt := 1; attempt <= g.budget.RetryAttempts; attempt++ {
		tries = attempt
		err := action(ctx)
		if err == nil {
			g.model.RecordGood()
			g.dwell(ctx, g.budget.Exit)
			return nil
		}

		if !IsTransient(err) {
			log.WithFields(log.Fields{
				"action": name,
				"error":  err,
			}).Error("Gated action failed permanently")
			return err
		}

		last = err
		g.model.RecordTransient()

		log.WithFields(log.Fields{
			"action":  name,
			"attempt": attempt,
			"error":   err,
		}).Debug("Gated action failed, may retry")

		if attempt == g.budget.RetryAttempts || ctx.Err() != nil {
			break
		}

		g.sleep(ctx, g.backoff(attempt))
	}

	return &RetryExhaustedError{Attempts: tries, Last: last}
}

// backoff computes the delay before the next try: base * 2^(attempt-1) plus
// random jitter.
func (g *Gate) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(g.budget.RetryBase) * math.Pow(2, float64(attempt-1)))
	return delay + g.jitter(g.budget.RetryJitter)
}

// dwell sleeps a randomized delay around d.Base, multiplied by the pacing
// scale factor so stacked pacing sources do not compound independently.
func (g *Gate) dwell(ctx context.Context, d Dwell) {
	base := d.Base - d.Spread + g.jitter(2*d.Spread)
	if base < 0 {
		base = 0
	}

	scaled := time.Duration(float64(base) * g.model.Scale())
	if scaled > 0 {
		g.sleep(ctx, scaled)
	}
}

func (g *Gate) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	g.randMutex.Lock()
	defer g.randMutex.Unlock()

	return time.Duration(g.rng.Int63n(int64(max)))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
