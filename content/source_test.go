// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewOSStore(t *testing.T) {
	t.Run("valid_path", func(t *testing.T) {
		store, err := NewOSStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewOSStore() error = %v", err)
		}
		if store == nil {
			t.Fatal("NewOSStore() returned nil")
		}
	})

	t.Run("relative_path_rejected", func(t *testing.T) {
		_, err := NewOSStore("relative/path")
		if err == nil {
			t.Fatal("Expected error for relative path")
		}
	})

	t.Run("nonexistent_path_rejected", func(t *testing.T) {
		_, err := NewOSStore("/nonexistent/path/12345")
		if err == nil {
			t.Fatal("Expected error for nonexistent path")
		}
	})

	t.Run("file_path_rejected", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "file.txt")
		if err := os.WriteFile(tmpFile, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := NewOSStore(tmpFile)
		if err == nil {
			t.Fatal("Expected error for file path")
		}
	})
}

func TestOSStoreRoundTrip(t *testing.T) {
	store, err := NewOSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	t.Run("write_read", func(t *testing.T) {
		if err := store.Write("a/b/file.txt", "hello\n"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		got, err := store.Read("a/b/file.txt")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got != "hello\n" {
			t.Errorf("Read() = %q, want %q", got, "hello\n")
		}
	})

	t.Run("exists", func(t *testing.T) {
		if !store.Exists("a/b/file.txt") {
			t.Error("Exists() = false for written file")
		}
		if store.Exists("missing.txt") {
			t.Error("Exists() = true for missing file")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Delete("a/b/file.txt"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if store.Exists("a/b/file.txt") {
			t.Error("file still exists after Delete()")
		}
		if err := store.Delete("a/b/file.txt"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("read_missing", func(t *testing.T) {
		_, err := store.Read("missing.txt")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Read() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("escape_rejected", func(t *testing.T) {
		if err := store.Write("../escape.txt", "x"); err == nil {
			t.Fatal("Expected error for escaping path")
		}
		if _, err := store.Read("../../etc/passwd"); err == nil {
			t.Fatal("Expected error for escaping read")
		}
	})
}

func TestMemStore(t *testing.T) {
	store := NewMemStore()

	t.Run("missing", func(t *testing.T) {
		_, err := store.Read("x.txt")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Read() error = %v, want ErrNotFound", err)
		}
		if store.Exists("x.txt") {
			t.Error("Exists() = true for missing file")
		}
	})

	t.Run("round_trip", func(t *testing.T) {
		if err := store.Write("x.txt", "content"); err != nil {
			t.Fatal(err)
		}
		got, err := store.Read("x.txt")
		if err != nil {
			t.Fatal(err)
		}
		if got != "content" {
			t.Errorf("Read() = %q, want %q", got, "content")
		}
		if store.Len() != 1 {
			t.Errorf("Len() = %d, want 1", store.Len())
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Delete("x.txt"); err != nil {
			t.Fatal(err)
		}
		if err := store.Delete("x.txt"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
	})
}
