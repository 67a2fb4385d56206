// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package bus implements the session-wide publish/subscribe hub used for
// loosely-coupled coordination between agents and the core loops.
//
// Emitting is synchronous: all handlers registered for an event name run in
// subscription order within the caller's step. A failing handler is logged
// and does not prevent the remaining handlers from running.
package bus

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ShutdownEvent is emitted once as the final event before the Bus is closed.
const ShutdownEvent = "shutdown"

// Event is an ephemeral name tag plus payload. Events are never persisted and
// ordering is only preserved within one Emit call.
type Event struct {
	Name    string
	Payload interface{}
}

// Handler processes a single Event. A returned error is logged by the Bus.
type Handler func(event Event) error

// Bus is the publish/subscribe hub. It is created once at session start and
// torn down at shutdown after a final ShutdownEvent was emitted.
type Bus struct {
	mutex sync.Mutex

	handlers map[string][]Handler
	catchAll []Handler
	closed   bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a Handler for an event name.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.handlers[name] = append(b.handlers[name], handler)
}

// SubscribeAll registers a Handler for every event name. Catch-all handlers
// run after the name-specific ones.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.catchAll = append(b.catchAll, handler)
}

// Emit delivers an event to all matching handlers, synchronously and in
// subscription order. Handler errors and panics are isolated per handler.
func (b *Bus) Emit(name string, payload interface{}) {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return
	}
	handlers := make([]Handler, 0, len(b.handlers[name])+len(b.catchAll))
	handlers = append(handlers, b.handlers[name]...)
	handlers = append(handlers, b.catchAll...)
	b.mutex.Unlock()

	event := Event{Name: name, Payload: payload}
	for _, handler := range handlers {
		if err := call(handler, event); err != nil {
			log.WithFields(log.Fields{
				"event": name,
				"error": err,
			}).Warn("Bus handler errored")
		}
	}
}

// call runs a single handler, converting a panic into an error.
func call(handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler(event)
}

// Close emits the final ShutdownEvent and drops all subscriptions. The Bus
// must not be used afterwards.
func (b *Bus) Close() {
	b.Emit(ShutdownEvent, nil)

	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.closed = true
	b.handlers = make(map[string][]Handler)
	b.catchAll = nil
}
