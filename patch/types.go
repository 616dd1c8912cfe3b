// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch is the hunk diff/patch core: it parses hunks from free-form
// text, validates them against current file content, and applies or reverses
// them with guaranteed recoverability.
//
// # Description
//
// A Hunk is a single contiguous line-range replacement. An Edit is an
// ordered set of hunks targeting one file; it is the unit of application and
// rollback. Every apply takes a full-file backup first and records an
// EditHistory entry, so rollback is always possible until the entry is
// cleaned up.
//
// # Thread Safety
//
// The Engine assumes a single logical caller drives edits to any given file
// serially. Concurrent callers racing on the same file path are out of
// contract and may corrupt state. Apply/rollback on distinct edit ids are
// safe concurrently.
package patch

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors surfaced by the patch core.
var (
	// ErrValidationFailed means apply refused to run because validation
	// reported at least one conflict. No mutation occurred.
	ErrValidationFailed = errors.New("patch: validation failed")

	// ErrNoHistory means rollback found no EditHistory entry for the id.
	ErrNoHistory = errors.New("patch: no history for edit id")
)

// =============================================================================
// Hunk and Edit
// =============================================================================

// Hunk is a single contiguous edit: the span [StartLine, EndLine] of the
// original file is replaced with NewContent.
type Hunk struct {
	// StartLine is the first replaced line, 1-indexed, inclusive.
	StartLine int

	// EndLine is the last replaced line, 1-indexed, inclusive.
	EndLine int

	// OriginalContent is the text expected at the span. Empty means unknown;
	// non-empty is checked (whitespace-normalized) during validation.
	OriginalContent string

	// NewContent is the replacement text.
	NewContent string
}

// SpanLines returns the number of original lines the hunk replaces.
func (h Hunk) SpanLines() int {
	return h.EndLine - h.StartLine + 1
}

// Overlaps reports whether two hunks share any original line.
func (h Hunk) Overlaps(other Hunk) bool {
	return h.StartLine <= other.EndLine && other.StartLine <= h.EndLine
}

// Edit is an ordered set of hunks targeting one file.
type Edit struct {
	// ID uniquely identifies the edit in history and backups.
	ID string

	// FilePath is the target file.
	FilePath string

	// Description is optional caller-supplied context.
	Description string

	// Hunks are the contiguous edits, kept sorted by StartLine.
	Hunks []Hunk

	// CreatedAt is when the edit was constructed.
	CreatedAt time.Time
}

// NewEdit constructs an Edit with a fresh id.
func NewEdit(filePath string, hunks []Hunk) *Edit {
	return &Edit{
		ID:        uuid.NewString(),
		FilePath:  filePath,
		Hunks:     hunks,
		CreatedAt: time.Now().UTC(),
	}
}

// =============================================================================
// Validation
// =============================================================================

// ConflictType categorizes fatal validation findings.
type ConflictType string

const (
	// ConflictFileMissing means the target file does not exist.
	ConflictFileMissing ConflictType = "file_missing"

	// ConflictOutOfBounds means a hunk range exceeds the file's line count.
	ConflictOutOfBounds ConflictType = "out_of_bounds"

	// ConflictInvertedRange means StartLine > EndLine or StartLine < 1.
	ConflictInvertedRange ConflictType = "inverted_range"

	// ConflictOverlap means two hunks in one edit share original lines.
	ConflictOverlap ConflictType = "overlap"

	// ConflictContentMismatch is produced only in strict mode, where stale
	// expected content blocks the apply instead of warning.
	ConflictContentMismatch ConflictType = "content_mismatch"
)

// Conflict is a fatal validation finding tied to a specific hunk.
type Conflict struct {
	// HunkIndex is the position of the offending hunk in Edit.Hunks.
	HunkIndex int

	// Type categorizes the conflict.
	Type ConflictType

	// Message is a human-readable explanation with enough structured
	// detail to act on without re-diffing.
	Message string
}

// Error renders the conflict as a single line.
func (c Conflict) Error() string {
	return fmt.Sprintf("hunk %d: %s: %s", c.HunkIndex, c.Type, c.Message)
}

// ValidationResult is the outcome of validating an edit.
//
// Valid is true iff there are zero conflicts. Warnings never block.
type ValidationResult struct {
	// Valid reports whether apply may proceed.
	Valid bool

	// Conflicts are fatal findings; any conflict blocks apply.
	Conflicts []Conflict

	// Warnings are non-fatal findings, chiefly content mismatches from
	// stale upstream snapshots.
	Warnings []string
}

// FirstConflict returns the first conflict, or nil if the edit is valid.
func (r *ValidationResult) FirstConflict() *Conflict {
	if len(r.Conflicts) == 0 {
		return nil
	}
	return &r.Conflicts[0]
}

// =============================================================================
// Apply Result
// =============================================================================

// ApplyResult is the outcome of applying an edit.
type ApplyResult struct {
	// Success reports whether the file was mutated and history recorded.
	Success bool

	// EditID echoes the applied edit's id.
	EditID string

	// BackupPath references the pre-mutation full-file backup.
	BackupPath string

	// LinesChanged is the sum over hunks of lines removed (the replaced
	// span) plus lines added (the replacement content).
	LinesChanged int

	// Warnings carries through validation warnings for the caller's log.
	Warnings []string
}
