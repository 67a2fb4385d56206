// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package storage persists transport tasks and the facility blacklist in a
// badgerhold database below the session's store directory.
package storage

import (
	"os"
	"path"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"
)

const dirBadger string = "db"

// Store wraps the badgerhold database holding TaskItems and BlacklistItems.
type Store struct {
	bh *badgerhold.Store
}

// NewStore creates a new Store or opens an existing one from the given path.
func NewStore(dir string) (s *Store, err error) {
	badgerDir := path.Join(dir, dirBadger)

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &Store{bh: bh}
	}
	return
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

// UpsertTask inserts or updates a TaskItem.
func (s *Store) UpsertTask(ti TaskItem) error {
	return s.bh.Upsert(ti.Id, ti)
}

// QueryTask fetches the TaskItem for the requested id.
func (s *Store) QueryTask(id string) (ti TaskItem, err error) {
	err = s.bh.Get(id, &ti)
	return
}

// KnowsTask checks if a TaskItem with this id exists.
func (s *Store) KnowsTask(id string) bool {
	_, err := s.QueryTask(id)
	return err != badgerhold.ErrNotFound
}

// QueryActive fetches all TaskItems that have not reached a terminal state.
func (s *Store) QueryActive() (tis []TaskItem, err error) {
	err = s.bh.Find(&tis, badgerhold.Where("Terminal").Eq(false))
	return
}

// DeleteTask removes a TaskItem.
func (s *Store) DeleteTask(id string) error {
	if err := s.bh.Delete(id, TaskItem{}); err != nil && err != badgerhold.ErrNotFound {
		return err
	}
	return nil
}

// Blacklist records a facility exclusion until the expiry timestamp.
func (s *Store) Blacklist(facility, reason string, expires time.Time) error {
	log.WithFields(log.Fields{
		"facility": facility,
		"reason":   reason,
		"expires":  expires,
	}).Info("Store blacklists facility")

	return s.bh.Upsert(facility, BlacklistItem{
		Facility: facility,
		Reason:   reason,
		Expires:  expires,
	})
}

// BlacklistedUntil returns the expiry of a facility's blacklist entry, if
// one is active at now. Expired entries are evicted lazily on read.
func (s *Store) BlacklistedUntil(facility string, now time.Time) (time.Time, bool) {
	var bi BlacklistItem
	if err := s.bh.Get(facility, &bi); err != nil {
		if err != badgerhold.ErrNotFound {
			log.WithField("facility", facility).WithError(err).Warn("Blacklist lookup errored")
		}
		return time.Time{}, false
	}

	if !bi.Expires.After(now) {
		if err := s.bh.Delete(facility, BlacklistItem{}); err != nil && err != badgerhold.ErrNotFound {
			log.WithField("facility", facility).WithError(err).Warn("Failed to evict expired blacklist entry")
		}
		return time.Time{}, false
	}

	return bi.Expires, true
}

// DeleteExpired removes all expired blacklist entries. Only invoked
// explicitly; regular operation relies on lazy eviction.
func (s *Store) DeleteExpired(now time.Time) {
	var bis []BlacklistItem
	if err := s.bh.Find(&bis, badgerhold.Where("Expires").Lt(now)); err != nil {
		log.WithError(err).Warn("Failed to query expired blacklist entries")
		return
	}

	for _, bi := range bis {
		if err := s.bh.Delete(bi.Facility, BlacklistItem{}); err != nil {
			log.WithField("facility", bi.Facility).WithError(err).Warn("Failed to delete blacklist entry")
		}
	}
}

// Reset drops all tasks and blacklist entries, giving the next session a
// clean start.
func (s *Store) Reset() error {
	if err := s.bh.DeleteMatching(&TaskItem{}, badgerhold.Where("Id").Ne("")); err != nil {
		return err
	}
	return s.bh.DeleteMatching(&BlacklistItem{}, badgerhold.Where("Facility").Ne(""))
}
