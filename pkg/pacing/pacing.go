// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package pacing tracks a fatigue/activity clock and produces the scale
// factor and pause windows consumed by the politeness gate.
//
// The Model is the single source of truth for pacing: the gate multiplies
// its dwell delays by Scale and no other component derives its own factor.
package pacing

import (
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Range describes a uniform random interval in seconds.
type Range struct {
	Min float64
	Max float64
}

// Duration draws a duration from the Range.
func (r Range) Duration(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return time.Duration(r.Min * float64(time.Second))
	}
	secs := r.Min + rng.Float64()*(r.Max-r.Min)
	return time.Duration(secs * float64(time.Second))
}

// Config holds the pacing tunables. The zero value disables breaks and
// adaptive backoff, which is what most tests want.
type Config struct {
	// Break probabilities are evaluated once per MaybeBreak call.
	ShortBreakProb   float64
	ShortBreakRange  Range
	MediumBreakProb  float64
	MediumBreakRange Range
	LongBreakProb    float64
	LongBreakRange   Range

	// QuietHours is a "HH:MM-HH:MM" wall-clock window, possibly wrapping
	// midnight, during which break probability is raised.
	QuietHours     string
	QuietBreakProb float64
	QuietRange     Range

	// IdleAfterAction is slept by the pacing agent after each loop step.
	IdleAfterAction Range

	// Adaptive backoff raises the scale factor on transient failures and
	// lets it decay after a sustained good period.
	BackoffEnable bool
	FactorStep    float64
	FactorMax     float64
	CoolDownGood  time.Duration
}

// Model carries the pacing state for one session.
type Model struct {
	mutex sync.Mutex

	cfg Config
	rng *rand.Rand
	now func() time.Time

	actions     uint64
	factor      float64
	lastGood    time.Time
	lastBreak   time.Time
	pausedUntil time.Time
}

// NewModel creates a Model from its Config.
func NewModel(cfg Config) *Model {
	now := time.Now()
	return &Model{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(now.UnixNano())),
		now:       time.Now,
		factor:    1.0,
		lastGood:  now,
		lastBreak: now,
	}
}

// SetClock replaces the time source, used by tests.
func (m *Model) SetClock(now func() time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.now = now
}

// RecordAction counts one externally visible action.
func (m *Model) RecordAction() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.actions++
}

// Actions returns the cumulative action count.
func (m *Model) Actions() uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.actions
}

// RecordTransient raises the adaptive factor after a transient failure.
func (m *Model) RecordTransient() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.cfg.BackoffEnable {
		return
	}

	old := m.factor
	m.factor = m.factor + m.cfg.FactorStep
	if m.factor > m.cfg.FactorMax {
		m.factor = m.cfg.FactorMax
	}

	if m.factor != old {
		log.WithField("factor", m.factor).Info("Pacing backoff increased")
	}
}

// RecordGood notes a successful action, starting the cool-down clock.
func (m *Model) RecordGood() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.lastGood = m.now()
}

// Scale returns the current scale factor. A sustained good period lets an
// elevated factor decay one step back towards 1.0.
func (m *Model) Scale() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.cfg.BackoffEnable && m.factor > 1.0 && m.cfg.CoolDownGood > 0 {
		if m.now().Sub(m.lastGood) > m.cfg.CoolDownGood {
			m.factor = m.factor - m.cfg.FactorStep
			if m.factor < 1.0 {
				m.factor = 1.0
			}
			m.lastGood = m.now()
		}
	}

	return m.factor
}

// PausedUntil returns the end of the current pause window, or the zero time
// if the model is not paused. Consumers must not schedule gated actions
// before the returned time has elapsed.
func (m *Model) PausedUntil() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.pausedUntil.Before(m.now()) {
		return time.Time{}
	}
	return m.pausedUntil
}

// MaybeBreak rolls the break dice once and may open a pause window. Within
// quiet hours longer pauses with a raised probability are drawn instead.
// Returns the new pause end and true if a break was started.
func (m *Model) MaybeBreak() (time.Time, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	if m.pausedUntil.After(now) {
		return m.pausedUntil, false
	}

	roll := m.rng.Float64()
	var pause time.Duration
	var kind string

	if inQuietHours(m.cfg.QuietHours, now) {
		if roll < m.cfg.QuietBreakProb {
			pause = m.cfg.QuietRange.Duration(m.rng)
			kind = "quiet"
		}
	} else {
		switch {
		case roll < m.cfg.LongBreakProb:
			pause = m.cfg.LongBreakRange.Duration(m.rng)
			kind = "long"
		case roll < m.cfg.LongBreakProb+m.cfg.MediumBreakProb:
			pause = m.cfg.MediumBreakRange.Duration(m.rng)
			kind = "medium"
		case roll < m.cfg.LongBreakProb+m.cfg.MediumBreakProb+m.cfg.ShortBreakProb:
			pause = m.cfg.ShortBreakRange.Duration(m.rng)
			kind = "short"
		}
	}

	if pause <= 0 {
		return time.Time{}, false
	}

	m.lastBreak = now
	m.pausedUntil = now.Add(pause)

	log.WithFields(log.Fields{
		"kind":  kind,
		"until": m.pausedUntil,
	}).Info("Pacing break started")

	return m.pausedUntil, true
}

// IdleAfterAction draws the post-step idle duration, scaled by the factor.
func (m *Model) IdleAfterAction() time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	idle := m.cfg.IdleAfterAction.Duration(m.rng)
	return time.Duration(float64(idle) * m.factor)
}
