// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package transport

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hgfantasy/mscbot/pkg/storage"
)

// blacklistedUntil checks a facility against the blacklist at the given
// time. With a store attached the persistent entry is authoritative;
// otherwise the in-memory map is consulted with the same lazy eviction.
func (m *Manager) blacklistedUntil(facility string, now time.Time) (time.Time, bool) {
	if m.store != nil {
		return m.store.BlacklistedUntil(facility, now)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	entry, ok := m.blacklist[facility]
	if !ok {
		return time.Time{}, false
	}
	if !entry.Expires.After(now) {
		delete(m.blacklist, facility)
		return time.Time{}, false
	}
	return entry.Expires, true
}

// addBlacklist records a facility exclusion for the configured TTL.
func (m *Manager) addBlacklist(facility, reason string) {
	expires := m.now().Add(m.cfg.BlacklistTTL)

	if m.store != nil {
		if err := m.store.Blacklist(facility, reason, expires); err != nil {
			log.WithField("facility", facility).WithError(err).Warn("Failed to blacklist facility")
			return
		}
	} else {
		m.mutex.Lock()
		m.blacklist[facility] = storage.BlacklistItem{
			Facility: facility,
			Reason:   reason,
			Expires:  expires,
		}
		m.mutex.Unlock()
	}

	m.emit(EventBlacklisted, facility)
}

// blacklistBlocked excludes facilities whose only dynamic constraint, free
// capacity, is exhausted. Distance and cost are static and not worth
// re-checking; a full facility is skipped for the TTL. At most a handful of
// facilities are blacklisted per failed attempt.
func (m *Manager) blacklistBlocked(prefs Prefs, candidates []Candidate) {
	blocked := 0
	for _, c := range rank(candidates) {
		if blocked >= maxBlacklistPerAttempt {
			return
		}

		if c.Free >= 0 && c.Free < prefs.MinFree {
			if _, active := m.blacklistedUntil(c.Id, m.now()); active {
				continue
			}
			m.addBlacklist(c.Id, "no free capacity")
			blocked++
		}
	}
}
