// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package agent

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hgfantasy/mscbot/pkg/bus"
	"github.com/hgfantasy/mscbot/pkg/pacing"
	"github.com/hgfantasy/mscbot/pkg/storage"
)

// PacingAgent rolls the break dice before each job iteration and dwells the
// configured idle span after each loop step. The pause window it may open is
// honored by the loops through the model.
type PacingAgent struct {
	Model *pacing.Model
}

func (pa *PacingAgent) Name() string { return "human" }

func (pa *PacingAgent) OnJobTick(_ context.Context) error {
	pa.Model.MaybeBreak()
	return nil
}

func (pa *PacingAgent) AfterJobTick(ctx context.Context) error {
	pa.idle(ctx)
	return nil
}

func (pa *PacingAgent) AfterTransportTick(ctx context.Context) error {
	pa.idle(ctx)
	return nil
}

// idle sleeps the model's post-action span, cut short on cancellation.
func (pa *PacingAgent) idle(ctx context.Context) {
	d := pa.Model.IdleAfterAction()
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// LoggerAgent mirrors every bus event into the log.
type LoggerAgent struct{}

func (la *LoggerAgent) Name() string { return "logger" }

func (la *LoggerAgent) OnEvent(_ context.Context, event bus.Event) error {
	log.WithFields(log.Fields{
		"event":   event.Name,
		"payload": event.Payload,
	}).Debug("Event observed")
	return nil
}

// CleanupAgent sweeps expired blacklist entries from the store every few
// transport iterations.
type CleanupAgent struct {
	Store *storage.Store

	// Every is the sweep period in iterations, defaulting to 10.
	Every int

	ticks int
}

func (ca *CleanupAgent) Name() string { return "cleanup" }

func (ca *CleanupAgent) AfterTransportTick(_ context.Context) error {
	every := ca.Every
	if every <= 0 {
		every = 10
	}

	ca.ticks++
	if ca.ticks%every != 0 {
		return nil
	}

	if ca.Store != nil {
		ca.Store.DeleteExpired(time.Now())
	}
	return nil
}

func (ca *CleanupAgent) OnShutdown(_ context.Context) error {
	if ca.Store != nil {
		ca.Store.DeleteExpired(time.Now())
	}
	return nil
}

// SummaryAgent tallies bus events and logs a periodic digest, a lightweight
// pendant to a metrics endpoint.
type SummaryAgent struct {
	// Interval between digests, defaulting to five minutes.
	Interval time.Duration

	mutex  sync.Mutex
	counts map[string]uint64
	last   time.Time
}

func (sa *SummaryAgent) Name() string { return "summary" }

func (sa *SummaryAgent) OnEvent(_ context.Context, event bus.Event) error {
	sa.mutex.Lock()
	defer sa.mutex.Unlock()

	if sa.counts == nil {
		sa.counts = make(map[string]uint64)
	}
	sa.counts[event.Name]++
	return nil
}

func (sa *SummaryAgent) AfterJobTick(_ context.Context) error {
	interval := sa.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	sa.mutex.Lock()
	defer sa.mutex.Unlock()

	now := time.Now()
	if sa.last.IsZero() {
		sa.last = now
		return nil
	}
	if now.Sub(sa.last) < interval {
		return nil
	}
	sa.last = now

	fields := log.Fields{}
	for name, count := range sa.counts {
		fields[name] = count
	}
	log.WithFields(fields).Info("Event summary")
	return nil
}

func (sa *SummaryAgent) OnShutdown(_ context.Context) error {
	sa.mutex.Lock()
	defer sa.mutex.Unlock()

	fields := log.Fields{}
	for name, count := range sa.counts {
		fields[name] = count
	}
	log.WithFields(fields).Info("Final event summary")
	return nil
}
