// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package driver

import (
	"regexp"

	"github.com/hgfantasy/mscbot/pkg/gate"
)

var (
	reRateLimit = regexp.MustCompile(`(?i)\b(429|too\s+many\s+requests|rate[-\s]?limit)`)
	reTimeout   = regexp.MustCompile(`(?i)(timeout|timed\s*out|net::ERR_|ETIMEDOUT)`)
	rePermanent = regexp.MustCompile(`(?i)(sign_in|authentication|unauthorized|forbidden|no such element)`)
)

// Classify wraps a raw driver error into the gate's failure taxonomy.
// Authentication rejections and structurally absent elements are permanent;
// rate limits and timeouts are transient. Anything unrecognized is treated
// as transient, matching the retry-everything behavior of the UI layer.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case rePermanent.MatchString(msg):
		return gate.Permanent(err)
	case reRateLimit.MatchString(msg), reTimeout.MatchString(msg):
		return gate.Transient(err)
	default:
		return gate.Transient(err)
	}
}

// IsRateLimit reports whether an error message looks like a rate limit hit,
// used for the session's health counters.
func IsRateLimit(err error) bool {
	return err != nil && reRateLimit.MatchString(err.Error())
}

// IsTimeout reports whether an error message looks like a timeout.
func IsTimeout(err error) bool {
	return err != nil && reTimeout.MatchString(err.Error())
}
