// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package content abstracts the backing store the patch engine reads and
// writes file text through.
//
// # Description
//
// The engine never touches the filesystem directly. Every read, write,
// delete, and existence check goes through the Source interface so that the
// same algorithms run against the local filesystem (OSStore) or an in-memory
// map (MemStore) in tests.
//
// # Thread Safety
//
// OSStore delegates concurrency to the operating system. MemStore is safe
// for concurrent use.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Read when the path does not exist.
var ErrNotFound = errors.New("content: file not found")

// IsNotFound reports whether err indicates a missing file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Source is the narrow storage contract the patch engine depends on.
//
// # Description
//
// Any backing store implementing these four operations is acceptable:
// local filesystem, virtual filesystem, or an in-memory map.
type Source interface {
	// Read returns the full text at path, or ErrNotFound.
	Read(path string) (string, error)

	// Write stores content at path, creating parents as needed.
	Write(path string, content string) error

	// Delete removes the file at path. Deleting a missing file is an error.
	Delete(path string) error

	// Exists reports whether path currently holds content.
	Exists(path string) bool
}

// =============================================================================
// OS-backed Source
// =============================================================================

// OSStore is a Source rooted at a base directory on the local filesystem.
//
// # Description
//
// All paths are resolved relative to the base directory. Paths that escape
// the base via ".." are rejected before any I/O happens.
type OSStore struct {
	basePath string
}

// NewOSStore creates a filesystem-backed Source.
//
// # Inputs
//
//   - basePath: Base directory for relative paths. Must be absolute and exist.
//
// # Outputs
//
//   - *OSStore: Ready-to-use store.
//   - error: Non-nil if basePath is invalid.
func NewOSStore(basePath string) (*OSStore, error) {
	if !filepath.IsAbs(basePath) {
		return nil, fmt.Errorf("basePath must be absolute: %s", basePath)
	}

	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("stat basePath: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("basePath is not a directory: %s", basePath)
	}

	return &OSStore{basePath: basePath}, nil
}

// BasePath returns the root directory of the store.
func (s *OSStore) BasePath() string {
	return s.basePath
}

// Read returns the file content at path.
func (s *OSStore) Read(path string) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// Write stores content at path, creating parent directories if needed.
func (s *OSStore) Write(path string, text string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("creating directories for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Delete removes the file at path.
func (s *OSStore) Delete(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path refers to an existing regular file.
func (s *OSStore) Exists(path string) bool {
	full, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// resolve joins path against basePath and rejects escapes.
func (s *OSStore) resolve(path string) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.basePath, full)
	}

	rel, err := filepath.Rel(filepath.Clean(s.basePath), filepath.Clean(full))
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path escapes base directory: %s", path)
	}
	return full, nil
}

// =============================================================================
// In-memory Source
// =============================================================================

// MemStore is a map-backed Source for tests and dry runs.
type MemStore struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewMemStore creates an empty in-memory Source.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string]string)}
}

// Read returns the stored content for path.
func (s *MemStore) Read(path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text, ok := s.files[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return text, nil
}

// Write stores content for path.
func (s *MemStore) Write(path string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[path] = text
	return nil
}

// Delete removes the entry for path.
func (s *MemStore) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	delete(s.files, path)
	return nil
}

// Exists reports whether path holds content.
func (s *MemStore) Exists(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.files[path]
	return ok
}

// Len returns the number of stored files.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Ensure both implementations satisfy the interface.
var (
	_ Source = (*OSStore)(nil)
	_ Source = (*MemStore)(nil)
)
