// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history records applied edits so they can be rolled back.
//
// # Description
//
// EditHistory is an append-only log keyed by edit id: one entry per applied
// edit, pointing at the full-file backup taken before mutation. The log is
// consulted only by id. The Store interface is deliberately narrow so the
// in-memory default can be swapped for a durable implementation without
// touching the patch engine's algorithms.
//
// # Thread Safety
//
// All Store implementations in this package are safe for concurrent use.
// Put and Delete are exclusive per id, which is the only correctness
// requirement for concurrent apply/rollback on distinct ids.
package history

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrExists is returned by Put when the edit id is already recorded.
var ErrExists = errors.New("history: entry already exists")

// ErrNoEntry is returned by Delete (and wrapped by callers of Get) when the
// edit id has no recorded entry.
var ErrNoEntry = errors.New("history: no entry for edit id")

// Entry records one applied edit.
type Entry struct {
	// EditID is the unique id of the applied edit.
	EditID string `json:"edit_id"`

	// FilePath is the file the edit mutated.
	FilePath string `json:"file_path"`

	// BackupPath references the full-file backup taken before mutation.
	BackupPath string `json:"backup_path"`

	// HunksApplied is the number of hunks the apply spliced in.
	HunksApplied int `json:"hunks_applied"`

	// CreatedAt is when the apply completed.
	CreatedAt time.Time `json:"created_at"`
}

// Store is the EditHistory backing store.
type Store interface {
	// Put records an entry. Fails with ErrExists if the id is taken.
	Put(e Entry) error

	// Get returns the entry for an edit id.
	Get(editID string) (Entry, bool)

	// Delete removes the entry for an edit id. Fails with ErrNoEntry if absent.
	Delete(editID string) error

	// List returns all entries ordered by creation time, oldest first.
	List() []Entry

	// Close releases store resources.
	Close() error
}

// =============================================================================
// In-memory Store
// =============================================================================

// MemStore is the default process-lifetime Store.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]Entry)}
}

// Put records an entry, refusing duplicate ids.
func (s *MemStore) Put(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.EditID]; ok {
		return ErrExists
	}
	s.entries[e.EditID] = e
	return nil
}

// Get returns the entry for editID.
func (s *MemStore) Get(editID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[editID]
	return e, ok
}

// Delete removes the entry for editID.
func (s *MemStore) Delete(editID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[editID]; !ok {
		return ErrNoEntry
	}
	delete(s.entries, editID)
	return nil
}

// List returns all entries, oldest first.
func (s *MemStore) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error {
	return nil
}

var _ Store = (*MemStore)(nil)
