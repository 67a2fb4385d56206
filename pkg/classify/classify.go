// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package classify derives a priority score, the required resource types and
// the transport requirement from a raw job title.
package classify

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hgfantasy/mscbot/pkg/transport"
)

// DefaultWeights returns the stock keyword weight table.
func DefaultWeights() map[string]int {
	return map[string]int{
		"major":      8,
		"mass":       8,
		"large":      6,
		"multiple":   5,
		"high-rise":  5,
		"industrial": 4,
		"chemical":   4,
		"airport":    4,
		"brush":      3,
		"wildfire":   5,
	}
}

// KeywordScore scores a title against a weight table. Matching is a
// case-insensitive substring check; every matching keyword counts once,
// overlapping keywords all count.
func KeywordScore(title string, weights map[string]int) (score int) {
	lowered := strings.ToLower(title)
	for keyword, points := range weights {
		if strings.Contains(lowered, keyword) {
			score += points
		}
	}
	return
}

// resourceOrder fixes the iteration order of the type-keyword table so the
// derived resource list is deterministic.
var resourceOrder = []string{"engine", "ladder", "rescue", "hazmat", "arff", "ambulance", "police"}

var resourcePatterns = map[string]*regexp.Regexp{
	"engine":    regexp.MustCompile(`\b(fire engine|engine|pumper|lfb)\b`),
	"ladder":    regexp.MustCompile(`\b(ladder|aerial|truck|tl|platform)\b`),
	"rescue":    regexp.MustCompile(`\b(rescue|heavy rescue|rsv)\b`),
	"hazmat":    regexp.MustCompile(`\b(hazmat|haz-mat|hm)\b`),
	"arff":      regexp.MustCompile(`\b(arff|crash tender|airport fire)\b`),
	"ambulance": regexp.MustCompile(`\b(ambulance|als|bls|ems)\b`),
	"police":    regexp.MustCompile(`\b(police|patrol|k-9|k9|pd)\b`),
}

// Result is the classification of one job title.
type Result struct {
	Score     int
	Resources []string

	// TransportRequired is set when an ambulance or police unit is
	// derived; Subject is the matching transport subject.
	TransportRequired bool
	Subject           transport.SubjectKind
}

// Config tunes the Classifier.
type Config struct {
	// CacheTTL is the freshness window of the per-title result cache.
	CacheTTL time.Duration

	// Weights overrides the keyword table; nil keeps the defaults.
	Weights map[string]int

	// Scorer, when set, is asked for the score first. Failures fall back
	// to the local table.
	Scorer *Scorer
}

type cacheEntry struct {
	result  Result
	expires time.Time
}

// Classifier caches classifications by normalized title.
type Classifier struct {
	mutex sync.Mutex

	cfg     Config
	weights map[string]int
	cache   map[string]cacheEntry

	now func() time.Time
}

// New creates a Classifier.
func New(cfg Config) *Classifier {
	weights := cfg.Weights
	if weights == nil {
		weights = DefaultWeights()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}

	return &Classifier{
		cfg:     cfg,
		weights: weights,
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// SetClock replaces the time source, used by tests.
func (c *Classifier) SetClock(now func() time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.now = now
}

// normalize lowercases and collapses whitespace, the cache key.
func normalize(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Classify returns the classification for a title, from the cache when the
// entry is still fresh. Expired entries are evicted on read.
func (c *Classifier) Classify(ctx context.Context, title string) Result {
	key := normalize(title)

	c.mutex.Lock()
	if entry, ok := c.cache[key]; ok {
		if entry.expires.After(c.now()) {
			c.mutex.Unlock()
			return entry.result
		}
		delete(c.cache, key)
	}
	c.mutex.Unlock()

	result := c.classify(ctx, key)

	c.mutex.Lock()
	c.cache[key] = cacheEntry{
		result:  result,
		expires: c.now().Add(c.cfg.CacheTTL),
	}
	c.mutex.Unlock()

	return result
}

// Cached returns the number of live cache entries, sweeping expired ones.
func (c *Classifier) Cached() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, entry := range c.cache {
		if !entry.expires.After(now) {
			delete(c.cache, key)
		}
	}
	return len(c.cache)
}

func (c *Classifier) classify(ctx context.Context, normalized string) Result {
	result := Result{Score: c.score(ctx, normalized)}

	for _, resource := range resourceOrder {
		if resourcePatterns[resource].MatchString(normalized) {
			result.Resources = append(result.Resources, resource)
		}
	}

	for _, resource := range result.Resources {
		switch resource {
		case "ambulance":
			result.TransportRequired = true
			result.Subject = transport.SubjectPatient
		case "police":
			if !result.TransportRequired {
				result.TransportRequired = true
				result.Subject = transport.SubjectPrisoner
			}
		}
	}

	return result
}

// score asks the remote scorer first, falling back to the local table.
func (c *Classifier) score(ctx context.Context, normalized string) int {
	if c.cfg.Scorer != nil {
		if score, err := c.cfg.Scorer.Score(ctx, normalized); err == nil {
			return score
		} else {
			log.WithError(err).Debug("Remote scorer unavailable, using local table")
		}
	}

	return KeywordScore(normalized, c.weights)
}
