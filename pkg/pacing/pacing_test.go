// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package pacing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuietHours(t *testing.T) {
	tests := []struct {
		window string
		clock  string
		in     bool
	}{
		{"02:00-06:30", "03:15", true},
		{"02:00-06:30", "06:30", true},
		{"02:00-06:30", "07:00", false},
		{"22:00-05:00", "23:30", true},
		{"22:00-05:00", "04:59", true},
		{"22:00-05:00", "12:00", false},
		{"", "03:00", false},
		{"garbage", "03:00", false},
	}

	for _, tt := range tests {
		at, err := time.Parse("15:04", tt.clock)
		require.NoError(t, err)

		assert.Equal(t, tt.in, inQuietHours(tt.window, at),
			"window %q at %s", tt.window, tt.clock)
	}
}

func TestValidQuietHours(t *testing.T) {
	assert.NoError(t, ValidQuietHours(""))
	assert.NoError(t, ValidQuietHours("02:00-06:30"))
	assert.Error(t, ValidQuietHours("02:00"))
	assert.Error(t, ValidQuietHours("25:00-06:30"))
	assert.Error(t, ValidQuietHours("02:xx-06:30"))
}

func TestBackoffFactor(t *testing.T) {
	m := NewModel(Config{
		BackoffEnable: true,
		FactorStep:    0.25,
		FactorMax:     2.0,
		CoolDownGood:  2 * time.Minute,
	})

	clock := time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })
	m.RecordGood()

	assert.Equal(t, 1.0, m.Scale())

	for i := 0; i < 10; i++ {
		m.RecordTransient()
	}
	assert.Equal(t, 2.0, m.Scale(), "factor must be capped at FactorMax")

	// After a quiet good period the factor decays one step per query.
	clock = clock.Add(3 * time.Minute)
	assert.Equal(t, 1.75, m.Scale())
	clock = clock.Add(3 * time.Minute)
	assert.Equal(t, 1.5, m.Scale())
}

func TestBackoffDisabled(t *testing.T) {
	m := NewModel(Config{})

	m.RecordTransient()
	m.RecordTransient()

	assert.Equal(t, 1.0, m.Scale())
}

func TestPauseWindow(t *testing.T) {
	m := NewModel(Config{
		ShortBreakProb:  1.0,
		ShortBreakRange: Range{Min: 30, Max: 30},
	})

	clock := time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })

	until, started := m.MaybeBreak()
	require.True(t, started)
	assert.Equal(t, clock.Add(30*time.Second), until)
	assert.Equal(t, until, m.PausedUntil())

	// A running pause is never extended.
	_, started = m.MaybeBreak()
	assert.False(t, started)

	clock = clock.Add(31 * time.Second)
	assert.True(t, m.PausedUntil().IsZero(), "elapsed pause must clear")
}

func TestActionCounter(t *testing.T) {
	m := NewModel(Config{})

	for i := 0; i < 5; i++ {
		m.RecordAction()
	}
	assert.Equal(t, uint64(5), m.Actions())
}
