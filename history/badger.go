// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces history entries inside the Badger keyspace.
var keyPrefix = []byte("history/")

// BadgerStore is a durable Store backed by an embedded Badger database.
//
// # Description
//
// Entries are JSON-encoded under "history/<edit-id>". Exclusivity of Put is
// enforced with a read inside the same transaction, so two concurrent
// applies reusing one edit id cannot both succeed.
//
// # Thread Safety
//
// Safe for concurrent use; Badger transactions provide isolation.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a durable history store at dir.
//
// # Inputs
//
//   - dir: Directory for the Badger database files.
//
// # Outputs
//
//   - *BadgerStore: Ready-to-use store. Callers own Close.
//   - error: Non-nil if the database cannot be opened.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // engine logging covers operational visibility

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Put records an entry, refusing duplicate ids.
func (s *BadgerStore) Put(e Entry) error {
	key := entryKey(e.EditID)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return ErrExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("checking history entry: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Get returns the entry for editID.
func (s *BadgerStore) Get(editID string) (Entry, bool) {
	var e Entry
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(editID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return Entry{}, false
	}
	return e, found
}

// Delete removes the entry for editID.
func (s *BadgerStore) Delete(editID string) error {
	key := entryKey(editID)

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoEntry
			}
			return fmt.Errorf("checking history entry: %w", err)
		}
		return txn.Delete(key)
	})
}

// List returns all entries, oldest first.
func (s *BadgerStore) List() []Entry {
	var all []Entry

	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return nil // skip undecodable entries
				}
				all = append(all, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func entryKey(editID string) []byte {
	return append(append([]byte(nil), keyPrefix...), editID...)
}

var _ Store = (*BadgerStore)(nil)
