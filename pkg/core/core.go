// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package core wires the engine together: the job loop ingesting, scoring
// and dispatching missions, and the transport loop advancing transport
// tasks. Both loops honor pauses, operator commands and a cooperative
// shutdown.
package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/hgfantasy/mscbot/pkg/agent"
	"github.com/hgfantasy/mscbot/pkg/bus"
	"github.com/hgfantasy/mscbot/pkg/classify"
	"github.com/hgfantasy/mscbot/pkg/driver"
	"github.com/hgfantasy/mscbot/pkg/gate"
	"github.com/hgfantasy/mscbot/pkg/pacing"
	"github.com/hgfantasy/mscbot/pkg/storage"
	"github.com/hgfantasy/mscbot/pkg/transport"
	"github.com/hgfantasy/mscbot/pkg/watch"
)

// EventJobDispatched is published after a successful mission dispatch.
const EventJobDispatched = "job_dispatched"

// Options configures a Core. Session, Bus, Model, Gate, Classifier and
// Runtime are required; Store and Commands are optional.
type Options struct {
	Session    driver.Session
	Store      *storage.Store
	Bus        *bus.Bus
	Model      *pacing.Model
	Gate       *gate.Gate
	Classifier *classify.Classifier
	Runtime    *agent.Runtime
	Commands   <-chan watch.Command

	Transport transport.Config

	// JobDelay and TransportDelay pace the two loops.
	JobDelay       time.Duration
	TransportDelay time.Duration

	// DefaultResources are dispatched when a job's classification derives
	// no resource types.
	DefaultResources []string
}

// Stats is a snapshot of the engine counters. RateLimits and Timeouts count
// failed gated actions whose error matched the respective sentinel.
type Stats struct {
	JobsSeen            uint64
	JobsDispatched      uint64
	TransportsAdmitted  uint64
	TransportsDelivered uint64
	TransportsFailed    uint64
	RateLimits          uint64
	Timeouts            uint64
}

// Core owns the two engine loops and every shared component.
type Core struct {
	opts    Options
	manager *transport.Manager

	mutex      sync.Mutex
	firstSeen  map[string]time.Time
	dispatched map[string]struct{}
	admitted   map[string]struct{}
	cmdPaused  bool

	jobsSeen            uint64
	jobsDispatched      uint64
	transportsAdmitted  uint64
	transportsDelivered uint64
	transportsFailed    uint64
	rateLimits          uint64
	timeouts            uint64

	ctx    context.Context
	cancel context.CancelFunc

	stopSyn          chan struct{}
	jobStopAck       chan struct{}
	transportStopAck chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// NewCore creates a Core around the given components. The transport manager
// is built internally, backed by the session.
func NewCore(opts Options) (*Core, error) {
	switch {
	case opts.Session == nil:
		return nil, fmt.Errorf("a driver session is required")
	case opts.Bus == nil, opts.Model == nil, opts.Gate == nil, opts.Classifier == nil, opts.Runtime == nil:
		return nil, fmt.Errorf("bus, pacing model, gate, classifier and agent runtime are required")
	}

	if opts.JobDelay <= 0 {
		opts.JobDelay = 5 * time.Second
	}
	if opts.TransportDelay <= 0 {
		opts.TransportDelay = 3 * time.Second
	}
	if len(opts.DefaultResources) == 0 {
		opts.DefaultResources = []string{"engine"}
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Core{
		opts:       opts,
		firstSeen:  make(map[string]time.Time),
		dispatched: make(map[string]struct{}),
		admitted:   make(map[string]struct{}),

		ctx:    ctx,
		cancel: cancel,

		stopSyn:          make(chan struct{}),
		jobStopAck:       make(chan struct{}),
		transportStopAck: make(chan struct{}),

		done: make(chan struct{}),
	}

	manager, err := transport.NewManager(
		opts.Transport, opts.Store,
		sessionCandidates{opts.Session, c.observe}, sessionExecutor{opts.Session, c.observe},
		opts.Gate, opts.Bus)
	if err != nil {
		cancel()
		return nil, err
	}
	c.manager = manager

	opts.Bus.SubscribeAll(func(event bus.Event) error {
		c.opts.Runtime.OnEvent(c.ctx, event)
		return nil
	})
	opts.Bus.Subscribe(transport.EventAdmitted, c.countInto(&c.transportsAdmitted))
	opts.Bus.Subscribe(transport.EventDelivered, c.countInto(&c.transportsDelivered))
	opts.Bus.Subscribe(transport.EventFailed, c.countInto(&c.transportsFailed))

	return c, nil
}

func (c *Core) countInto(counter *uint64) bus.Handler {
	return func(_ bus.Event) error {
		atomic.AddUint64(counter, 1)
		return nil
	}
}

// observe feeds the session health counters from a failed action's error.
func (c *Core) observe(err error) {
	if driver.IsRateLimit(err) {
		atomic.AddUint64(&c.rateLimits, 1)
	}
	if driver.IsTimeout(err) {
		atomic.AddUint64(&c.timeouts, 1)
	}
}

// Manager exposes the transport manager, e.g. for status inspection.
func (c *Core) Manager() *transport.Manager {
	return c.manager
}

// Stats returns a snapshot of the engine counters.
func (c *Core) Stats() Stats {
	return Stats{
		JobsSeen:            atomic.LoadUint64(&c.jobsSeen),
		JobsDispatched:      atomic.LoadUint64(&c.jobsDispatched),
		TransportsAdmitted:  atomic.LoadUint64(&c.transportsAdmitted),
		TransportsDelivered: atomic.LoadUint64(&c.transportsDelivered),
		TransportsFailed:    atomic.LoadUint64(&c.transportsFailed),
		RateLimits:          atomic.LoadUint64(&c.rateLimits),
		Timeouts:            atomic.LoadUint64(&c.timeouts),
	}
}

// FirstSeen returns when a job was first observed on the mission list. The
// earliest observation across passes is kept.
func (c *Core) FirstSeen(jobId string) (time.Time, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	first, ok := c.firstSeen[jobId]
	return first, ok
}

// Done is closed when a stop command was consumed. The caller is expected
// to follow up with Close.
func (c *Core) Done() <-chan struct{} {
	return c.done
}

// Start fires the start hooks and launches both loops.
func (c *Core) Start() {
	c.opts.Runtime.OnStart(c.ctx)

	go c.jobLoop()
	go c.transportLoop()

	log.WithFields(log.Fields{
		"job_delay":       c.opts.JobDelay,
		"transport_delay": c.opts.TransportDelay,
	}).Info("Engine started")
}

func (c *Core) jobLoop() {
	defer close(c.jobStopAck)

	for {
		select {
		case <-c.stopSyn:
			return
		case <-time.After(c.opts.JobDelay):
		}

		c.boundary()
		if c.paused() {
			continue
		}

		c.opts.Runtime.OnJobTick(c.ctx)
		c.jobStep(c.ctx)
		c.opts.Runtime.AfterJobTick(c.ctx)
	}
}

func (c *Core) transportLoop() {
	defer close(c.transportStopAck)

	for {
		select {
		case <-c.stopSyn:
			return
		case <-time.After(c.opts.TransportDelay):
		}

		c.boundary()
		if c.paused() {
			continue
		}

		c.opts.Runtime.OnTransportTick(c.ctx)
		c.transportStep(c.ctx)
		c.opts.Runtime.AfterTransportTick(c.ctx)
	}
}

// boundary drains pending operator commands and applies queued agent
// switches. Runs between iterations, also while paused.
func (c *Core) boundary() {
	if c.opts.Commands != nil {
		for {
			select {
			case cmd := <-c.opts.Commands:
				c.apply(cmd)
				continue
			default:
			}
			break
		}
	}

	c.opts.Runtime.ApplyPending()
}

func (c *Core) apply(cmd watch.Command) {
	log.WithField("command", cmd).Info("Applying control command")

	switch cmd.Kind {
	case watch.KindAgentEnable:
		c.opts.Runtime.Enable(cmd.Arg)

	case watch.KindAgentDisable:
		c.opts.Runtime.Disable(cmd.Arg)

	case watch.KindPause:
		c.mutex.Lock()
		c.cmdPaused = true
		c.mutex.Unlock()

	case watch.KindResume:
		c.mutex.Lock()
		c.cmdPaused = false
		c.mutex.Unlock()

	case watch.KindStop:
		c.stopOnce.Do(func() { close(c.done) })
	}
}

// paused reports whether the loops should idle: an operator pause or an
// open pacing break window.
func (c *Core) paused() bool {
	c.mutex.Lock()
	cmdPaused := c.cmdPaused
	c.mutex.Unlock()

	return cmdPaused || !c.opts.Model.PausedUntil().IsZero()
}

// jobStep ingests the mission list, classifies unseen jobs and dispatches
// the derived resources. Jobs requiring a transport are admitted to the
// transport manager.
func (c *Core) jobStep(ctx context.Context) {
	var jobs []driver.RawJob
	err := c.opts.Gate.Do(ctx, "mission_list", func(ctx context.Context) error {
		js, err := c.opts.Session.MissionList(ctx)
		if err != nil {
			return driver.Classify(err)
		}
		jobs = js
		return nil
	})
	if err != nil {
		c.observe(err)
		log.WithError(err).Warn("Fetching mission list errored")
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}

		c.mutex.Lock()
		if _, ok := c.firstSeen[job.Id]; !ok {
			c.firstSeen[job.Id] = time.Now()
			atomic.AddUint64(&c.jobsSeen, 1)
		}
		_, known := c.dispatched[job.Id]
		c.mutex.Unlock()
		if known {
			continue
		}

		result := c.opts.Classifier.Classify(ctx, job.Title)
		resources := result.Resources
		if len(resources) == 0 {
			resources = c.opts.DefaultResources
		}

		jobId := job.Id
		err := c.opts.Gate.Do(ctx, "dispatch_job", func(ctx context.Context) error {
			return driver.Classify(c.opts.Session.DispatchJob(ctx, jobId, resources))
		})
		if err != nil {
			c.observe(err)
			log.WithFields(log.Fields{
				"job":   job.Id,
				"error": err,
			}).Warn("Dispatching job errored, keeping for the next pass")
			continue
		}

		c.mutex.Lock()
		c.dispatched[job.Id] = struct{}{}
		c.mutex.Unlock()

		atomic.AddUint64(&c.jobsDispatched, 1)

		log.WithFields(log.Fields{
			"job":       job.Id,
			"score":     result.Score,
			"resources": resources,
		}).Info("Job dispatched")

		c.opts.Bus.Emit(EventJobDispatched, job.Id)

		if result.TransportRequired {
			c.mutex.Lock()
			c.admitted[job.Id] = struct{}{}
			c.mutex.Unlock()

			c.manager.Admit(job.Id, result.Subject, "")
		}
	}
}

// transportStep admits scraped transport requests and advances the task
// state machine by one pass.
func (c *Core) transportStep(ctx context.Context) {
	var reqs []driver.TransportRequest
	err := c.opts.Gate.Do(ctx, "transport_requests", func(ctx context.Context) error {
		rs, err := c.opts.Session.TransportRequests(ctx)
		if err != nil {
			return driver.Classify(err)
		}
		reqs = rs
		return nil
	})
	if err != nil {
		c.observe(err)
		log.WithError(err).Warn("Fetching transport requests errored")
	} else {
		for _, req := range reqs {
			// A request is only admitted once; the page keeps showing
			// it until the transport went through.
			c.mutex.Lock()
			_, known := c.admitted[req.JobId]
			if !known {
				c.admitted[req.JobId] = struct{}{}
			}
			c.mutex.Unlock()
			if known {
				continue
			}

			c.manager.Admit(req.JobId, subjectKind(req.Subject), req.Origin)
		}
	}

	c.manager.Tick(ctx)
}

// Close shuts the engine down: both loops finish their current iteration,
// further retries are cancelled, agents get their shutdown hooks, then the
// bus and the store are closed.
func (c *Core) Close() error {
	close(c.stopSyn)
	c.cancel()

	<-c.jobStopAck
	<-c.transportStopAck

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.opts.Runtime.Shutdown(shutdownCtx)

	c.opts.Bus.Close()

	var merr *multierror.Error
	if c.opts.Store != nil {
		if err := c.opts.Store.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	log.Info("Engine stopped")
	return merr.ErrorOrNil()
}
