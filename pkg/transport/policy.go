// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package transport

import (
	"fmt"
	"sort"
	"sync"
)

// FallbackPolicy decides what happens when a selection attempt finds no
// candidate satisfying all constraints. A policy may relax constraints and
// pick a candidate anyway, or report false to defer the task.
//
// The candidates passed to Select have already been cleared against the
// blacklist; relaxing the blacklist is reserved for escalation.
type FallbackPolicy interface {
	Name() string
	Select(prefs Prefs, candidates []Candidate) (Candidate, bool)
}

var (
	policyMutex sync.Mutex
	policies    = map[string]FallbackPolicy{}
)

// RegisterPolicy adds a FallbackPolicy to the registry, keyed by its name.
func RegisterPolicy(policy FallbackPolicy) error {
	policyMutex.Lock()
	defer policyMutex.Unlock()

	if _, exists := policies[policy.Name()]; exists {
		return fmt.Errorf("a policy named %s is already registered", policy.Name())
	}

	policies[policy.Name()] = policy
	return nil
}

// PolicyByName looks up a registered FallbackPolicy.
func PolicyByName(name string) (FallbackPolicy, error) {
	policyMutex.Lock()
	defer policyMutex.Unlock()

	if policy, ok := policies[name]; ok {
		return policy, nil
	}
	return nil, fmt.Errorf("unknown fallback policy %s", name)
}

// rank orders candidates by distance ascending, ties broken by cost.
func rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].CostPct < ranked[j].CostPct
	})

	return ranked
}

// waitPolicy never relaxes anything; the task is deferred and rechecked
// after the configured interval.
type waitPolicy struct{}

func (waitPolicy) Name() string { return "wait" }

func (waitPolicy) Select(_ Prefs, _ []Candidate) (Candidate, bool) {
	return Candidate{}, false
}

// widenPolicy walks a distance-cap ladder while keeping the cost and
// capacity constraints in place.
type widenPolicy struct{}

func (widenPolicy) Name() string { return "widen" }

func (widenPolicy) Select(prefs Prefs, candidates []Candidate) (Candidate, bool) {
	for _, mult := range []float64{1.25, 1.5, 2.0} {
		var widened []Candidate
		for _, c := range candidates {
			if c.Distance <= prefs.MaxDistance*mult && c.CostPct <= prefs.MaxCostPct && c.hasCapacity(prefs.MinFree) {
				widened = append(widened, c)
			}
		}

		if len(widened) > 0 {
			return rank(widened)[0], true
		}
	}

	return Candidate{}, false
}

// cheapestPolicy drops the distance cap entirely and optimizes for cost,
// still honoring the cost cap and minimum capacity.
type cheapestPolicy struct{}

func (cheapestPolicy) Name() string { return "cheapest" }

func (cheapestPolicy) Select(prefs Prefs, candidates []Candidate) (Candidate, bool) {
	var eligible []Candidate
	for _, c := range candidates {
		if c.CostPct <= prefs.MaxCostPct && c.hasCapacity(prefs.MinFree) {
			eligible = append(eligible, c)
		}
	}

	if len(eligible) == 0 {
		return Candidate{}, false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].CostPct != eligible[j].CostPct {
			return eligible[i].CostPct < eligible[j].CostPct
		}
		return eligible[i].Distance < eligible[j].Distance
	})

	return eligible[0], true
}

func init() {
	for _, policy := range []FallbackPolicy{waitPolicy{}, widenPolicy{}, cheapestPolicy{}} {
		if err := RegisterPolicy(policy); err != nil {
			panic(err)
		}
	}
}
