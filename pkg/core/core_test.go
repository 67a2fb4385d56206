// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgfantasy/mscbot/pkg/agent"
	"github.com/hgfantasy/mscbot/pkg/bus"
	"github.com/hgfantasy/mscbot/pkg/classify"
	"github.com/hgfantasy/mscbot/pkg/driver"
	"github.com/hgfantasy/mscbot/pkg/gate"
	"github.com/hgfantasy/mscbot/pkg/pacing"
	"github.com/hgfantasy/mscbot/pkg/transport"
	"github.com/hgfantasy/mscbot/pkg/watch"
)

func testTransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.AdmitMin = 8
	cfg.AdmitMax = 8
	cfg.AttemptBudget = 10
	cfg.EscalateAfterDefers = 0
	cfg.CandidateCacheTTL = time.Millisecond
	return cfg
}

func newTestCore(t *testing.T, fake *driver.Fake, commands <-chan watch.Command) *Core {
	model := pacing.NewModel(pacing.Config{})

	c, err := NewCore(Options{
		Session:        fake,
		Bus:            bus.New(),
		Model:          model,
		Gate:           gate.New(gate.Budget{}, model),
		Classifier:     classify.New(classify.Config{}),
		Runtime:        agent.NewRuntime(),
		Commands:       commands,
		Transport:      testTransportConfig(),
		JobDelay:       10 * time.Millisecond,
		TransportDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	return c
}

func TestCoreDispatchesJobs(t *testing.T) {
	fake := driver.NewFake()
	fake.SetJobs([]driver.RawJob{
		{Id: "j1", Title: "Major wildfire near airport"},
		{Id: "j2", Title: "Ambulance needed at mass casualty"},
	})
	fake.SetFacilities("medical", []driver.FacilityOption{
		{Id: "hosp-1", Kind: "medical", Distance: 3, CostPct: 5, Free: 4},
	})

	c := newTestCore(t, fake, nil)
	c.Start()

	assert.Eventually(t, func() bool {
		return fake.DispatchedCount() >= 2 && fake.TransportedTo("j2") == "hosp-1"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Close())

	// The wildfire title derives no vehicle types, falling back to the
	// default dispatch.
	assert.Equal(t, []string{"engine"}, fake.DispatchedResources("j1"))
	assert.Equal(t, []string{"ambulance"}, fake.DispatchedResources("j2"))

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.JobsSeen)
	assert.Equal(t, uint64(2), stats.JobsDispatched)
	assert.Equal(t, uint64(1), stats.TransportsAdmitted)
	assert.Equal(t, uint64(1), stats.TransportsDelivered)
	assert.Equal(t, uint64(0), stats.TransportsFailed)
}

func TestCoreTransportRequests(t *testing.T) {
	fake := driver.NewFake()
	fake.SetTransports([]driver.TransportRequest{
		{JobId: "t1", Subject: "prisoner", Origin: "Main St 4"},
	})
	fake.SetFacilities("custodial", []driver.FacilityOption{
		{Id: "jail-1", Kind: "custodial", Distance: 8, CostPct: 3, Free: 2},
	})

	c := newTestCore(t, fake, nil)
	c.Start()

	assert.Eventually(t, func() bool {
		return fake.TransportedTo("t1") == "jail-1"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Close())

	task, ok := c.Manager().TaskByJob("t1")
	require.True(t, ok)
	assert.Equal(t, transport.SubjectPrisoner, task.Subject)
	assert.Equal(t, "Main St 4", task.Origin)
	assert.Equal(t, transport.StatusDelivered, task.Status)
}

func TestCorePauseAndStop(t *testing.T) {
	fake := driver.NewFake()
	commands := make(chan watch.Command, 4)

	c := newTestCore(t, fake, commands)
	c.Start()

	commands <- watch.Command{Kind: watch.KindPause}
	time.Sleep(100 * time.Millisecond)

	fake.SetJobs([]driver.RawJob{{Id: "j1", Title: "Brush fire"}})
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fake.DispatchedCount(), "no dispatches while paused")

	commands <- watch.Command{Kind: watch.KindResume}
	assert.Eventually(t, func() bool {
		return fake.DispatchedCount() == 1
	}, 5*time.Second, 20*time.Millisecond)

	commands <- watch.Command{Kind: watch.KindStop}
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stop command was not consumed")
	}

	require.NoError(t, c.Close())
}

func TestCoreAgentSwitchCommands(t *testing.T) {
	fake := driver.NewFake()
	commands := make(chan watch.Command, 4)

	c := newTestCore(t, fake, commands)
	require.NoError(t, c.opts.Runtime.Register(&agent.LoggerAgent{}))

	c.Start()

	commands <- watch.Command{Kind: watch.KindAgentDisable, Arg: "logger"}
	assert.Eventually(t, func() bool {
		return !c.opts.Runtime.IsEnabled("logger")
	}, 5*time.Second, 20*time.Millisecond)

	commands <- watch.Command{Kind: watch.KindAgentEnable, Arg: "logger"}
	assert.Eventually(t, func() bool {
		return c.opts.Runtime.IsEnabled("logger")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Close())
}

func TestCoreHealthCounters(t *testing.T) {
	fake := driver.NewFake()
	fake.SetJobs([]driver.RawJob{{Id: "j1", Title: "Brush fire"}})
	fake.FailNext("MissionList", errors.New("429 too many requests"))
	fake.FailNext("DispatchJob", errors.New("net::ERR_TIMED_OUT waiting for selector"))

	c := newTestCore(t, fake, nil)
	c.Start()

	assert.Eventually(t, func() bool {
		return fake.DispatchedCount() == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Close())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.RateLimits)
	assert.Equal(t, uint64(1), stats.Timeouts)
}

func TestCoreFirstSeen(t *testing.T) {
	fake := driver.NewFake()
	fake.SetJobs([]driver.RawJob{{Id: "j1", Title: "Brush fire"}})
	fake.FailNext("DispatchJob",
		errors.New("page timeout"), errors.New("page timeout"))

	c := newTestCore(t, fake, nil)
	c.Start()

	var first time.Time
	assert.Eventually(t, func() bool {
		f, ok := c.FirstSeen("j1")
		first = f
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	// The job stays on the list until a dispatch goes through; the first
	// observation and the seen counter must not move while it does.
	assert.Eventually(t, func() bool {
		return fake.DispatchedCount() == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Close())

	got, ok := c.FirstSeen("j1")
	require.True(t, ok)
	assert.Equal(t, first, got)
	assert.Equal(t, uint64(1), c.Stats().JobsSeen)
}

func TestCoreOptionsValidation(t *testing.T) {
	_, err := NewCore(Options{})
	assert.Error(t, err)

	model := pacing.NewModel(pacing.Config{})
	_, err = NewCore(Options{Session: driver.NewFake(), Model: model})
	assert.Error(t, err)
}
