// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgfantasy/mscbot/pkg/transport"
)

func TestDefaultConfigValid(t *testing.T) {
	conf := defaultConfig()
	require.NoError(t, validate(conf))

	cfg := transportConfig(conf.Transport)
	assert.Equal(t, 45*time.Minute, cfg.BlacklistTTL)
	assert.Equal(t, 15*time.Minute, cfg.Prefs[transport.SubjectPatient].SLA)
	assert.Equal(t, 20*time.Minute, cfg.Prefs[transport.SubjectPrisoner].SLA)
	assert.Equal(t, "wait", cfg.Prefs[transport.SubjectPatient].Fallback)
}

func TestValidateCollectsFailures(t *testing.T) {
	conf := defaultConfig()
	conf.Core.Store = ""
	conf.Delays.JobSeconds = 0
	conf.Human.QuietHours = "25:00-26:00"
	conf.Transport.Patient.Fallback = "teleport"

	err := validate(conf)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "core.store")
	assert.Contains(t, msg, "job-seconds")
	assert.Contains(t, msg, "quiet-hours")
	assert.Contains(t, msg, "transport")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("MSCBOT_LOGGING_LEVEL", "debug")
	t.Setenv("MSCBOT_TRANSPORT_ATTEMPT_BUDGET", "7")
	t.Setenv("MSCBOT_BACKOFF_ENABLE", "false")

	conf := defaultConfig()
	require.NoError(t, applyEnv(&conf))

	assert.Equal(t, "debug", conf.Logging.Level)
	assert.Equal(t, 7, conf.Transport.AttemptBudget)
	assert.False(t, conf.Backoff.Enable)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Setenv("MSCBOT_TRANSPORT_ATTEMPT_BUDGET", "lots")

	conf := defaultConfig()
	assert.Error(t, applyEnv(&conf))
}

func TestKeywordWeights(t *testing.T) {
	assert.Nil(t, keywordWeights(classifyConf{}))

	weights := keywordWeights(classifyConf{Keywords: map[string]int{"Derailment": 9}})
	assert.Equal(t, 9, weights["derailment"])
	assert.Equal(t, 8, weights["major"])
}
