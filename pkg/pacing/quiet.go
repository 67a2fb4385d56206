// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package pacing

import (
	"fmt"
	"strings"
	"time"
)

// parseClock parses a "HH:MM" value into minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %v", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}

// ValidQuietHours reports whether a quiet hours window can be parsed.
// An empty string disables the window and is valid.
func ValidQuietHours(window string) error {
	if window == "" {
		return nil
	}

	parts := strings.SplitN(window, "-", 2)
	if len(parts) != 2 {
		return fmt.Errorf("quiet hours %q is not of the form HH:MM-HH:MM", window)
	}
	if _, err := parseClock(parts[0]); err != nil {
		return err
	}
	if _, err := parseClock(parts[1]); err != nil {
		return err
	}
	return nil
}

// inQuietHours checks a wall-clock time against a window, which may wrap
// around midnight. Malformed windows count as inactive.
func inQuietHours(window string, t time.Time) bool {
	if window == "" {
		return false
	}

	parts := strings.SplitN(window, "-", 2)
	if len(parts) != 2 {
		return false
	}

	start, startErr := parseClock(parts[0])
	end, endErr := parseClock(parts[1])
	if startErr != nil || endErr != nil {
		return false
	}

	now := t.Hour()*60 + t.Minute()
	if start <= end {
		return start <= now && now <= end
	}
	return now >= start || now <= end
}
