// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package agent

import (
	"context"

	"github.com/hgfantasy/mscbot/pkg/bus"
)

// Agent is the minimal surface of an engine extension. All hooks are
// optional capability interfaces checked by the Runtime.
type Agent interface {
	// Name identifies the agent for enable/disable commands and logs.
	Name() string
}

// Starter is called once before the loops start.
type Starter interface {
	OnStart(ctx context.Context) error
}

// JobTicker is called before each job loop iteration.
type JobTicker interface {
	OnJobTick(ctx context.Context) error
}

// AfterJobTicker is called after each job loop iteration.
type AfterJobTicker interface {
	AfterJobTick(ctx context.Context) error
}

// TransportTicker is called before each transport loop iteration.
type TransportTicker interface {
	OnTransportTick(ctx context.Context) error
}

// AfterTransportTicker is called after each transport loop iteration.
type AfterTransportTicker interface {
	AfterTransportTick(ctx context.Context) error
}

// EventHandler receives every event published on the engine bus.
type EventHandler interface {
	OnEvent(ctx context.Context, event bus.Event) error
}

// Stopper is called during shutdown, sequentially and with a per-agent
// timeout.
type Stopper interface {
	OnShutdown(ctx context.Context) error
}

// Gated lets an agent veto its own hooks, e.g. based on config or time of
// day, independently of the Runtime's enable state.
type Gated interface {
	Enabled() bool
}
