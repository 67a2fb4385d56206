// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgfantasy/mscbot/pkg/gate"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg       string
		transient bool
	}{
		{"429 Too Many Requests", true},
		{"rate-limit exceeded, slow down", true},
		{"navigation timed out after 30s", true},
		{"net::ERR_CONNECTION_RESET", true},
		{"redirected to sign_in", false},
		{"authentication required", false},
		{"no such element: #transport-btn", false},
		{"something odd happened", true},
	}

	for _, test := range tests {
		err := Classify(errors.New(test.msg))
		require.Error(t, err)
		assert.Equal(t, test.transient, gate.IsTransient(err), test.msg)
	}

	assert.NoError(t, Classify(nil))
}

func TestSentinelHelpers(t *testing.T) {
	assert.True(t, IsRateLimit(fmt.Errorf("got 429 from server")))
	assert.False(t, IsRateLimit(fmt.Errorf("boring failure")))
	assert.False(t, IsRateLimit(nil))

	assert.True(t, IsTimeout(fmt.Errorf("ETIMEDOUT")))
	assert.False(t, IsTimeout(nil))
}

func TestFakeSession(t *testing.T) {
	fake := NewFake()
	fake.SetJobs([]RawJob{{Id: "j1", Title: "Structure fire"}})
	fake.SetFacilities("medical", []FacilityOption{
		{Id: "hosp-1", Kind: "medical", Distance: 3, CostPct: 5, Free: 2},
	})

	ctx := context.Background()

	jobs, err := fake.MissionList(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "j1", jobs[0].Id)

	options, err := fake.FacilityCandidates(ctx, "medical")
	require.NoError(t, err)
	require.Len(t, options, 1)

	options, err = fake.FacilityCandidates(ctx, "custodial")
	require.NoError(t, err)
	assert.Empty(t, options)

	require.NoError(t, fake.DispatchJob(ctx, "j1", []string{"engine", "ladder"}))
	assert.Equal(t, []string{"engine", "ladder"}, fake.Dispatched["j1"])

	require.NoError(t, fake.ExecuteTransport(ctx, "j1", "hosp-1"))
	assert.Equal(t, "hosp-1", fake.Transported["j1"])
}

func TestFakeFailureInjection(t *testing.T) {
	fake := NewFake()
	fake.SetJobs([]RawJob{{Id: "j1", Title: "MVA"}})
	fake.FailNext("MissionList", fmt.Errorf("boom"), fmt.Errorf("boom again"))

	ctx := context.Background()

	_, err := fake.MissionList(ctx)
	assert.EqualError(t, err, "boom")

	_, err = fake.MissionList(ctx)
	assert.EqualError(t, err, "boom again")

	jobs, err := fake.MissionList(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	assert.Equal(t, []string{"MissionList", "MissionList", "MissionList"}, fake.Ops())
}
