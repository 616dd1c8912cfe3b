// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff computes line-level differences between two text bodies and
// renders them in unified-diff form.
//
// # Description
//
// The package implements a Longest Common Subsequence diff over lines,
// grouped into hunks with the standard three-context-line heuristic so each
// hunk stays minimal and independently reviewable. Line numbers are
// 1-indexed in every external representation.
//
// # Thread Safety
//
// Types in this package are not safe for concurrent modification.
// They can be safely read concurrently after creation.
package diff

import "fmt"

// =============================================================================
// Line Types
// =============================================================================

// LineType categorizes diff lines.
type LineType string

const (
	// LineContext represents unchanged context lines.
	LineContext LineType = " "

	// LineAdded represents added lines.
	LineAdded LineType = "+"

	// LineRemoved represents removed lines.
	LineRemoved LineType = "-"
)

// String returns the string representation of the line type.
func (lt LineType) String() string {
	return string(lt)
}

// =============================================================================
// Diff Line
// =============================================================================

// DiffLine represents a single line in a diff.
//
// # Description
//
// Each line tracks its type (context, added, removed), content, and line
// numbers in both the old and new versions.
type DiffLine struct {
	// Type is the line type (context, added, removed).
	Type LineType

	// Content is the line content without the prefix.
	Content string

	// OldNum is the line number in the old file (0 if added).
	OldNum int

	// NewNum is the line number in the new file (0 if removed).
	NewNum int
}

// String returns a formatted representation of the line.
func (l DiffLine) String() string {
	return string(l.Type) + l.Content
}

// IsAddition returns true if this line was added.
func (l DiffLine) IsAddition() bool {
	return l.Type == LineAdded
}

// IsDeletion returns true if this line was removed.
func (l DiffLine) IsDeletion() bool {
	return l.Type == LineRemoved
}

// IsContext returns true if this line is context (unchanged).
func (l DiffLine) IsContext() bool {
	return l.Type == LineContext
}

// =============================================================================
// Hunk
// =============================================================================

// Hunk represents a single diff hunk (contiguous change region).
//
// # Description
//
// A hunk is the atomic unit of a diff: a contiguous region of changes
// surrounded by up to three context lines on each flank.
type Hunk struct {
	// OldStart is the starting line number in the old file.
	OldStart int

	// OldCount is the number of lines from the old file.
	OldCount int

	// NewStart is the starting line number in the new file.
	NewStart int

	// NewCount is the number of lines in the new file.
	NewCount int

	// Lines contains all lines in this hunk.
	Lines []DiffLine
}

// Header returns the unified diff header for this hunk.
func (h *Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
}

// AddedCount returns the number of added lines.
func (h *Hunk) AddedCount() int {
	count := 0
	for _, line := range h.Lines {
		if line.IsAddition() {
			count++
		}
	}
	return count
}

// RemovedCount returns the number of removed lines.
func (h *Hunk) RemovedCount() int {
	count := 0
	for _, line := range h.Lines {
		if line.IsDeletion() {
			count++
		}
	}
	return count
}

// =============================================================================
// Change Type
// =============================================================================

// ChangeType categorizes what a FileDiff does to its file.
type ChangeType string

const (
	// ChangeCreate indicates the file did not previously exist.
	ChangeCreate ChangeType = "create"

	// ChangeModify indicates an in-place content change.
	ChangeModify ChangeType = "modify"

	// ChangeDelete indicates the file is being removed.
	ChangeDelete ChangeType = "delete"
)

// String returns the string representation of the change type.
func (c ChangeType) String() string {
	return string(c)
}

// =============================================================================
// File Diff
// =============================================================================

// FileDiff is one file's before/after comparison.
//
// # Description
//
// FileDiff carries both full content versions plus the derived hunks and
// tallies. Derived fields are never mutated after creation except by
// re-running the diff.
type FileDiff struct {
	// FilePath is the path of the file being compared.
	FilePath string

	// OldContent is the original content (empty for created files).
	OldContent string

	// NewContent is the proposed content (empty for deleted files).
	NewContent string

	// ChangeType is create, modify, or delete.
	ChangeType ChangeType

	// Additions is the total count of added lines across all hunks.
	Additions int

	// Deletions is the total count of removed lines across all hunks.
	Deletions int

	// Hunks contains the grouped change regions.
	Hunks []*Hunk
}

// Stats returns a formatted stats string like "+12 -3".
func (d *FileDiff) Stats() string {
	return fmt.Sprintf("+%d -%d", d.Additions, d.Deletions)
}

// HunkCount returns the number of hunks.
func (d *FileDiff) HunkCount() int {
	return len(d.Hunks)
}

// IsEmpty returns true if the diff contains no changed lines.
func (d *FileDiff) IsEmpty() bool {
	return d.Additions == 0 && d.Deletions == 0
}
