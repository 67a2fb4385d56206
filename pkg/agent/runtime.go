// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hgfantasy/mscbot/pkg/bus"
)

// maxConsecutiveFailures is the hook failure streak after which an agent is
// disabled automatically.
const maxConsecutiveFailures = 5

// defaultShutdownTimeout bounds each agent's OnShutdown hook.
const defaultShutdownTimeout = 5 * time.Second

type registration struct {
	agent    Agent
	enabled  bool
	failures int
}

// Runtime owns the registered agents and drives their hooks in registration
// order. Hook errors are isolated: a failing agent is logged and, after a
// streak of failures, disabled, but never takes the loop down.
type Runtime struct {
	mutex sync.Mutex

	agents []*registration
	byName map[string]*registration

	// pending enable/disable switches, applied at iteration boundaries.
	pending map[string]bool

	shutdownTimeout time.Duration
}

// NewRuntime creates an empty Runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		byName:          make(map[string]*registration),
		pending:         make(map[string]bool),
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// Register adds an agent, enabled by default. Names must be unique.
func (r *Runtime) Register(agent Agent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.byName[agent.Name()]; exists {
		return fmt.Errorf("an agent named %s is already registered", agent.Name())
	}

	reg := &registration{agent: agent, enabled: true}
	r.agents = append(r.agents, reg)
	r.byName[agent.Name()] = reg

	log.WithField("agent", agent.Name()).Debug("Registered agent")
	return nil
}

// Enable queues an agent activation for the next iteration boundary.
func (r *Runtime) Enable(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.pending[name] = true
}

// Disable queues an agent deactivation for the next iteration boundary.
func (r *Runtime) Disable(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.pending[name] = false
}

// ApplyPending applies queued enable/disable switches. Called by the loop
// between iterations, never mid-hook.
func (r *Runtime) ApplyPending() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for name, enabled := range r.pending {
		reg, ok := r.byName[name]
		if !ok {
			log.WithField("agent", name).Warn("Cannot switch unknown agent")
			continue
		}

		if reg.enabled != enabled {
			reg.enabled = enabled
			if enabled {
				reg.failures = 0
			}
			log.WithFields(log.Fields{
				"agent":   name,
				"enabled": enabled,
			}).Info("Switched agent")
		}
	}

	r.pending = make(map[string]bool)
}

// IsEnabled reports the current enable state of a named agent.
func (r *Runtime) IsEnabled(name string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	reg, ok := r.byName[name]
	return ok && reg.enabled
}

// Names returns the registered agent names in registration order.
func (r *Runtime) Names() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	names := make([]string, 0, len(r.agents))
	for _, reg := range r.agents {
		names = append(names, reg.agent.Name())
	}
	return names
}

// active snapshots the currently runnable registrations.
func (r *Runtime) active() []*registration {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	regs := make([]*registration, 0, len(r.agents))
	for _, reg := range r.agents {
		if !reg.enabled {
			continue
		}
		if gated, ok := reg.agent.(Gated); ok && !gated.Enabled() {
			continue
		}
		regs = append(regs, reg)
	}
	return regs
}

// run invokes one hook on one agent, isolating errors and panics and
// keeping the failure streak.
func (r *Runtime) run(reg *registration, hook string, f func() error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.fail(reg, hook, fmt.Errorf("panic: %v", recovered))
		}
	}()

	if err := f(); err != nil {
		r.fail(reg, hook, err)
		return
	}

	r.mutex.Lock()
	reg.failures = 0
	r.mutex.Unlock()
}

func (r *Runtime) fail(reg *registration, hook string, err error) {
	r.mutex.Lock()
	reg.failures++
	failures := reg.failures
	if failures >= maxConsecutiveFailures {
		reg.enabled = false
	}
	r.mutex.Unlock()

	logger := log.WithFields(log.Fields{
		"agent": reg.agent.Name(),
		"hook":  hook,
	})
	logger.WithError(err).Warn("Agent hook errored")

	if failures >= maxConsecutiveFailures {
		logger.WithField("failures", failures).Error("Disabling agent after repeated failures")
	}
}

// OnStart fires the start hooks.
func (r *Runtime) OnStart(ctx context.Context) {
	for _, reg := range r.active() {
		if starter, ok := reg.agent.(Starter); ok {
			r.run(reg, "on_start", func() error { return starter.OnStart(ctx) })
		}
	}
}

// OnJobTick fires the pre-iteration job hooks.
func (r *Runtime) OnJobTick(ctx context.Context) {
	for _, reg := range r.active() {
		if ticker, ok := reg.agent.(JobTicker); ok {
			r.run(reg, "on_job_tick", func() error { return ticker.OnJobTick(ctx) })
		}
	}
}

// AfterJobTick fires the post-iteration job hooks.
func (r *Runtime) AfterJobTick(ctx context.Context) {
	for _, reg := range r.active() {
		if ticker, ok := reg.agent.(AfterJobTicker); ok {
			r.run(reg, "after_job_tick", func() error { return ticker.AfterJobTick(ctx) })
		}
	}
}

// OnTransportTick fires the pre-iteration transport hooks.
func (r *Runtime) OnTransportTick(ctx context.Context) {
	for _, reg := range r.active() {
		if ticker, ok := reg.agent.(TransportTicker); ok {
			r.run(reg, "on_transport_tick", func() error { return ticker.OnTransportTick(ctx) })
		}
	}
}

// AfterTransportTick fires the post-iteration transport hooks.
func (r *Runtime) AfterTransportTick(ctx context.Context) {
	for _, reg := range r.active() {
		if ticker, ok := reg.agent.(AfterTransportTicker); ok {
			r.run(reg, "after_transport_tick", func() error { return ticker.AfterTransportTick(ctx) })
		}
	}
}

// OnEvent fans a bus event out to the event-handling agents.
func (r *Runtime) OnEvent(ctx context.Context, event bus.Event) {
	for _, reg := range r.active() {
		if handler, ok := reg.agent.(EventHandler); ok {
			r.run(reg, "on_event", func() error { return handler.OnEvent(ctx, event) })
		}
	}
}

// Shutdown fires the stop hooks sequentially, each bounded by the shutdown
// timeout. Disabled agents are shut down too; they may hold resources.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.mutex.Lock()
	regs := make([]*registration, len(r.agents))
	copy(regs, r.agents)
	timeout := r.shutdownTimeout
	r.mutex.Unlock()

	for _, reg := range regs {
		stopper, ok := reg.agent.(Stopper)
		if !ok {
			continue
		}

		hookCtx, cancel := context.WithTimeout(ctx, timeout)
		r.run(reg, "on_shutdown", func() error { return stopper.OnShutdown(hookCtx) })
		cancel()
	}
}
