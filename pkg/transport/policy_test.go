// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank(t *testing.T) {
	ranked := rank([]Candidate{
		{Id: "c", Distance: 9, CostPct: 1},
		{Id: "a", Distance: 2, CostPct: 8},
		{Id: "b", Distance: 2, CostPct: 3},
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].Id)
	assert.Equal(t, "a", ranked[1].Id)
	assert.Equal(t, "c", ranked[2].Id)
}

func TestPolicyRegistry(t *testing.T) {
	for _, name := range []string{"wait", "widen", "cheapest"} {
		policy, err := PolicyByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, policy.Name())
	}

	_, err := PolicyByName("teleport")
	assert.Error(t, err)

	wait, _ := PolicyByName("wait")
	assert.Error(t, RegisterPolicy(wait))
}

func TestWaitPolicy(t *testing.T) {
	policy, err := PolicyByName("wait")
	require.NoError(t, err)

	_, ok := policy.Select(Prefs{MaxDistance: 100, MaxCostPct: 100}, []Candidate{
		{Id: "a", Distance: 1, CostPct: 1, Free: 9},
	})
	assert.False(t, ok)
}

func TestWidenPolicy(t *testing.T) {
	policy, err := PolicyByName("widen")
	require.NoError(t, err)

	prefs := Prefs{MaxDistance: 10, MaxCostPct: 20, MinFree: 1}

	// Within the first widening rung nothing further out is considered.
	choice, ok := policy.Select(prefs, []Candidate{
		{Id: "rung1", Distance: 12, CostPct: 5, Free: 2},
		{Id: "rung3", Distance: 19, CostPct: 1, Free: 2},
	})
	require.True(t, ok)
	assert.Equal(t, "rung1", choice.Id)

	// The ladder goes no further than twice the cap.
	_, ok = policy.Select(prefs, []Candidate{
		{Id: "beyond", Distance: 21, CostPct: 5, Free: 2},
	})
	assert.False(t, ok)

	// Cost and capacity constraints stay in force while widening.
	_, ok = policy.Select(prefs, []Candidate{
		{Id: "costly", Distance: 12, CostPct: 25, Free: 2},
		{Id: "full", Distance: 12, CostPct: 5, Free: 0},
	})
	assert.False(t, ok)
}

func TestCheapestPolicy(t *testing.T) {
	policy, err := PolicyByName("cheapest")
	require.NoError(t, err)

	prefs := Prefs{MaxDistance: 10, MaxCostPct: 20, MinFree: 1}

	choice, ok := policy.Select(prefs, []Candidate{
		{Id: "far_cheap", Distance: 80, CostPct: 2, Free: 2},
		{Id: "near_pricier", Distance: 1, CostPct: 9, Free: 2},
		{Id: "over_cap", Distance: 1, CostPct: 30, Free: 2},
	})
	require.True(t, ok)
	assert.Equal(t, "far_cheap", choice.Id)

	_, ok = policy.Select(prefs, []Candidate{
		{Id: "over_cap", Distance: 1, CostPct: 30, Free: 2},
		{Id: "full", Distance: 1, CostPct: 5, Free: 0},
	})
	assert.False(t, ok)
}

func TestCandidateCapacity(t *testing.T) {
	assert.True(t, Candidate{Free: -1}.hasCapacity(3))
	assert.True(t, Candidate{Free: 3}.hasCapacity(3))
	assert.False(t, Candidate{Free: 2}.hasCapacity(3))
}
