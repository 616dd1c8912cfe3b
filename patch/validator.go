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
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/AleutianAI/patchforge/content"
	"github.com/AleutianAI/patchforge/diff"
	"github.com/AleutianAI/patchforge/metrics"
)

// Validator checks edits against current file content.
//
// # Description
//
// Runs the fatal structural checks (file existence, bounds, range
// inversion, pairwise overlap) and the lenient content check. A content
// mismatch is a warning by default: upstream generators frequently work
// from slightly stale snapshots, and blocking on every whitespace drift
// would make the engine unusable. Strict mode promotes mismatches to
// conflicts.
//
// # Thread Safety
//
// Safe for concurrent use; the validator holds no mutable state.
type Validator struct {
	source  content.Source
	metrics *metrics.Metrics

	// Strict promotes content mismatches from warnings to conflicts.
	Strict bool
}

// NewValidator creates a validator reading current content from source.
func NewValidator(source content.Source, m *metrics.Metrics) *Validator {
	return &Validator{source: source, metrics: m}
}

// Validate checks every hunk of the edit, in order.
//
// # Description
//
// Check order per hunk: file existence (fatal for the whole edit), range
// bounds, range inversion, pairwise overlap with every other hunk, and
// finally the expected-content comparison. Valid is true iff there are
// zero conflicts; warnings never block.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - edit: The edit to check. Must not be nil.
//
// # Outputs
//
//   - *ValidationResult: Structured findings. Never nil on nil error.
//   - error: Non-nil on context cancellation or source read failure other
//     than not-found.
func (v *Validator) Validate(ctx context.Context, edit *Edit) (*ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &ValidationResult{}

	text, err := v.source.Read(edit.FilePath)
	if err != nil {
		if content.IsNotFound(err) {
			result.Conflicts = append(result.Conflicts, Conflict{
				HunkIndex: -1,
				Type:      ConflictFileMissing,
				Message:   fmt.Sprintf("target file %s does not exist", edit.FilePath),
			})
			v.recordConflicts(result)
			return result, nil
		}
		return nil, fmt.Errorf("reading %s: %w", edit.FilePath, err)
	}

	fileLines := diff.SplitLines(text)
	total := len(fileLines)

	for i, h := range edit.Hunks {
		if h.StartLine < 1 || h.StartLine > h.EndLine {
			result.Conflicts = append(result.Conflicts, Conflict{
				HunkIndex: i,
				Type:      ConflictInvertedRange,
				Message:   fmt.Sprintf("range %d-%d is inverted or starts before line 1", h.StartLine, h.EndLine),
			})
			continue
		}

		if h.EndLine > total {
			result.Conflicts = append(result.Conflicts, Conflict{
				HunkIndex: i,
				Type:      ConflictOutOfBounds,
				Message:   fmt.Sprintf("range %d-%d exceeds file length %d", h.StartLine, h.EndLine, total),
			})
			continue
		}

		for j, other := range edit.Hunks {
			if j <= i {
				continue
			}
			if h.Overlaps(other) {
				result.Conflicts = append(result.Conflicts, Conflict{
					HunkIndex: i,
					Type:      ConflictOverlap,
					Message:   fmt.Sprintf("range %d-%d overlaps hunk %d range %d-%d", h.StartLine, h.EndLine, j, other.StartLine, other.EndLine),
				})
			}
		}

		if h.OriginalContent == "" {
			continue
		}

		actual := strings.Join(fileLines[h.StartLine-1:h.EndLine], "\n")
		if normalizeWhitespace(actual) == normalizeWhitespace(h.OriginalContent) {
			continue
		}

		detail := mismatchDetail(h.OriginalContent, actual)
		if v.Strict {
			result.Conflicts = append(result.Conflicts, Conflict{
				HunkIndex: i,
				Type:      ConflictContentMismatch,
				Message:   fmt.Sprintf("lines %d-%d do not match expected content (%s)", h.StartLine, h.EndLine, detail),
			})
			continue
		}

		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"hunk %d: lines %d-%d do not match expected content (%s); applying anyway",
			i, h.StartLine, h.EndLine, detail))
		v.metrics.ObserveMismatch()
	}

	result.Valid = len(result.Conflicts) == 0
	v.recordConflicts(result)
	return result, nil
}

func (v *Validator) recordConflicts(result *ValidationResult) {
	for _, c := range result.Conflicts {
		v.metrics.ObserveConflict(string(c.Type))
	}
}

// normalizeWhitespace collapses runs of spaces and tabs inside each line and
// trims flanking blank lines, so indentation drift alone never mismatches.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	normalized := make([]string, 0, len(lines))
	for _, l := range lines {
		normalized = append(normalized, strings.Join(strings.Fields(l), " "))
	}
	// Trim leading and trailing blank lines.
	start, end := 0, len(normalized)
	for start < end && normalized[start] == "" {
		start++
	}
	for end > start && normalized[end-1] == "" {
		end--
	}
	return strings.Join(normalized[start:end], "\n")
}

// mismatchDetail summarizes how far expected and actual content diverge.
func mismatchDetail(expected, actual string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)
	distance := dmp.DiffLevenshtein(diffs)
	return fmt.Sprintf("%d differing characters", distance)
}
