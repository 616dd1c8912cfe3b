// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// BackupStore keeps whole-file pre-mutation copies under one directory.
//
// # Description
//
// Backups are named deterministically from the original file name, the edit
// id, and a nanosecond timestamp, so retries with the same edit id never
// collide. An advisory lock file guards the directory against a second
// patchforge process interleaving backup writes with a cleanup sweep.
//
// # Thread Safety
//
// Safe for concurrent use within a process; cross-process exclusion relies
// on the advisory lock.
type BackupStore struct {
	dir  string
	lock *flock.Flock
}

// NewBackupStore creates the backup directory if needed and prepares the
// advisory lock.
func NewBackupStore(dir string) (*BackupStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	return &BackupStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".patchforge.lock")),
	}, nil
}

// Dir returns the backup directory.
func (b *BackupStore) Dir() string {
	return b.dir
}

// Create writes a backup of content for filePath under editID.
//
// # Outputs
//
//   - string: The backup file path, recorded in EditHistory.
//   - error: Non-nil on lock or write failure; no backup exists on error.
func (b *BackupStore) Create(filePath, editID, text string) (string, error) {
	if err := b.lock.Lock(); err != nil {
		return "", fmt.Errorf("locking backup directory: %w", err)
	}
	defer b.lock.Unlock()

	name := fmt.Sprintf("%s.%s.%d.bak", filepath.Base(filePath), editID, time.Now().UnixNano())
	path := filepath.Join(b.dir, name)

	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("writing backup %s: %w", path, err)
	}
	return path, nil
}

// Read returns the content of a backup file.
func (b *BackupStore) Read(backupPath string) (string, error) {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return "", fmt.Errorf("reading backup %s: %w", backupPath, err)
	}
	return string(data), nil
}

// Remove deletes a backup file.
func (b *BackupStore) Remove(backupPath string) error {
	if err := b.lock.Lock(); err != nil {
		return fmt.Errorf("locking backup directory: %w", err)
	}
	defer b.lock.Unlock()

	if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing backup %s: %w", backupPath, err)
	}
	return nil
}
