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
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/patchforge/content"
	"github.com/AleutianAI/patchforge/diff"
	"github.com/AleutianAI/patchforge/events"
	"github.com/AleutianAI/patchforge/history"
	"github.com/AleutianAI/patchforge/metrics"
	"github.com/AleutianAI/patchforge/pkg/logging"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Source is the content store edits are applied against. Required.
	Source content.Source

	// Backups is the pre-mutation backup store. Required.
	Backups *BackupStore

	// History is the EditHistory store. Nil uses an in-memory store.
	History history.Store

	// Notifier receives edit.applied / edit.rolled_back events. Optional.
	Notifier *events.Notifier

	// Logger is the structured logger. Nil uses logging.Default().
	Logger *logging.Logger

	// Metrics enables Prometheus instrumentation. Optional.
	Metrics *metrics.Metrics

	// Strict promotes content mismatches to validation conflicts.
	Strict bool
}

// Engine is the hunk patch core: validate, apply, rollback, cleanup.
//
// # Description
//
// The Engine is constructed once by the host process and passed by
// reference to all callers; no ambient global exists. Every apply takes a
// full-file backup before mutating anything, then records an EditHistory
// entry referencing it, giving rollback its guarantee.
//
// # Thread Safety
//
// Apply and rollback on distinct edit ids are safe concurrently (the
// history store enforces exclusive create/delete). Concurrent edits to the
// same file path are out of contract.
type Engine struct {
	source    content.Source
	backups   *BackupStore
	history   history.Store
	validator *Validator
	notifier  *events.Notifier
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewEngine creates a patch engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("patch: EngineConfig.Source is required")
	}
	if cfg.Backups == nil {
		return nil, fmt.Errorf("patch: EngineConfig.Backups is required")
	}
	if cfg.History == nil {
		cfg.History = history.NewMemStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	validator := NewValidator(cfg.Source, cfg.Metrics)
	validator.Strict = cfg.Strict

	return &Engine{
		source:    cfg.Source,
		backups:   cfg.Backups,
		history:   cfg.History,
		validator: validator,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger.With("component", "patch_engine"),
		metrics:   cfg.Metrics,
	}, nil
}

// Validate checks the edit against current file content without mutating.
func (e *Engine) Validate(ctx context.Context, edit *Edit) (*ValidationResult, error) {
	return e.validator.Validate(ctx, edit)
}

// Apply validates and applies an edit.
//
// # Description
//
// Sequence: validate (any conflict aborts with no mutation), take a
// full-file backup, splice hunks bottom-up by start line so earlier splices
// never see line numbers shifted by later ones, persist the mutated
// content, and record the EditHistory entry. An I/O failure after the
// backup step leaves the backup intact and reports failure; recovery from
// the backup is the caller's decision, not an automatic action.
//
// # Inputs
//
//   - ctx: Context for cancellation, checked before each suspension point.
//   - edit: The edit to apply. Must not be nil.
//
// # Outputs
//
//   - *ApplyResult: Success flag, edit id, backup reference, lines changed.
//   - error: Non-nil on validation conflict (wrapping ErrValidationFailed)
//     or I/O failure.
func (e *Engine) Apply(ctx context.Context, edit *Edit) (*ApplyResult, error) {
	result := &ApplyResult{EditID: edit.ID}

	validation, err := e.validator.Validate(ctx, edit)
	if err != nil {
		e.metrics.ObserveApply("io_error")
		return result, err
	}
	result.Warnings = validation.Warnings

	if !validation.Valid {
		e.metrics.ObserveApply("validation_failed")
		first := validation.FirstConflict()
		return result, fmt.Errorf("%w: %s (%d conflicts)", ErrValidationFailed, first.Error(), len(validation.Conflicts))
	}

	text, err := e.source.Read(edit.FilePath)
	if err != nil {
		e.metrics.ObserveApply("io_error")
		return result, fmt.Errorf("reading %s: %w", edit.FilePath, err)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	backupPath, err := e.backups.Create(edit.FilePath, edit.ID, text)
	if err != nil {
		e.metrics.ObserveApply("io_error")
		return result, fmt.Errorf("backing up %s: %w", edit.FilePath, err)
	}
	result.BackupPath = backupPath

	mutated, linesChanged := spliceHunks(text, edit.Hunks)
	result.LinesChanged = linesChanged

	if err := e.source.Write(edit.FilePath, mutated); err != nil {
		e.metrics.ObserveApply("io_error")
		return result, fmt.Errorf("writing %s (backup retained at %s): %w", edit.FilePath, backupPath, err)
	}

	entry := history.Entry{
		EditID:       edit.ID,
		FilePath:     edit.FilePath,
		BackupPath:   backupPath,
		HunksApplied: len(edit.Hunks),
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.history.Put(entry); err != nil {
		e.metrics.ObserveApply("io_error")
		return result, fmt.Errorf("recording history for %s (backup retained at %s): %w", edit.ID, backupPath, err)
	}

	result.Success = true
	e.metrics.ObserveApply("success")
	e.logger.Info("edit applied",
		"edit_id", edit.ID,
		"file", edit.FilePath,
		"hunks", len(edit.Hunks),
		"lines_changed", linesChanged,
	)
	e.notifier.Publish(events.Event{
		Type:   events.EditApplied,
		EditID: edit.ID,
		Path:   edit.FilePath,
	})
	return result, nil
}

// spliceHunks replaces each hunk's line range with its new content,
// processing from the bottom of the file upward.
//
// Bottom-up ordering is the sole correctness mechanism for multi-hunk
// edits: a splice at a higher line number never shifts the line numbers
// of hunks below it in the sort order.
func spliceHunks(text string, hunks []Hunk) (string, int) {
	sorted := append([]Hunk(nil), hunks...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartLine > sorted[j].StartLine
	})

	lines := diff.SplitLines(text)
	linesChanged := 0

	for _, h := range sorted {
		replacement := diff.SplitLines(h.NewContent)
		linesChanged += h.SpanLines() + len(replacement)

		next := make([]string, 0, len(lines)-h.SpanLines()+len(replacement))
		next = append(next, lines[:h.StartLine-1]...)
		next = append(next, replacement...)
		next = append(next, lines[h.EndLine:]...)
		lines = next
	}

	return strings.Join(lines, "\n"), linesChanged
}

// Rollback restores the file an edit mutated from its backup.
//
// # Description
//
// Looks up the EditHistory entry, restores the backup content, and removes
// the entry. Rolling back the same id twice fails with ErrNoHistory the
// second time (the entry is already gone).
func (e *Engine) Rollback(ctx context.Context, editID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry, ok := e.history.Get(editID)
	if !ok {
		e.metrics.ObserveRollback("no_history")
		return fmt.Errorf("%w: %s", ErrNoHistory, editID)
	}

	text, err := e.backups.Read(entry.BackupPath)
	if err != nil {
		e.metrics.ObserveRollback("io_error")
		return fmt.Errorf("rolling back %s: %w", editID, err)
	}

	if err := e.source.Write(entry.FilePath, text); err != nil {
		e.metrics.ObserveRollback("io_error")
		return fmt.Errorf("restoring %s: %w", entry.FilePath, err)
	}

	if err := e.history.Delete(editID); err != nil {
		e.metrics.ObserveRollback("io_error")
		return fmt.Errorf("clearing history for %s: %w", editID, err)
	}

	// The entry is gone, so cleanup would never find this backup again.
	if err := e.backups.Remove(entry.BackupPath); err != nil {
		e.logger.Warn("backup removal failed after rollback",
			"edit_id", editID,
			"backup", entry.BackupPath,
			"error", err.Error(),
		)
	}

	e.metrics.ObserveRollback("success")
	e.logger.Info("edit rolled back", "edit_id", editID, "file", entry.FilePath)
	e.notifier.Publish(events.Event{
		Type:   events.EditRolledBack,
		EditID: editID,
		Path:   entry.FilePath,
	})
	return nil
}

// CleanupBackups deletes backups older than the cutoff.
//
// # Description
//
// Best-effort maintenance sweep: an I/O error on one entry is logged and
// counted but never aborts cleanup of the others. Entries whose backups
// are removed also leave the history store.
//
// # Outputs
//
//   - int: Number of backups removed.
//   - error: Non-nil only on context cancellation.
func (e *Engine) CleanupBackups(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0

	for _, entry := range e.history.List() {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.CreatedAt.Before(cutoff) {
			continue
		}

		if err := e.backups.Remove(entry.BackupPath); err != nil {
			e.logger.Warn("backup cleanup failed",
				"edit_id", entry.EditID,
				"backup", entry.BackupPath,
				"error", err.Error(),
			)
			continue
		}
		if err := e.history.Delete(entry.EditID); err != nil {
			e.logger.Warn("history cleanup failed", "edit_id", entry.EditID, "error", err.Error())
			continue
		}
		removed++
	}

	e.metrics.ObserveCleanup(removed)
	if removed > 0 {
		e.logger.Info("backup cleanup complete", "removed", removed)
	}
	return removed, nil
}

// History exposes the EditHistory entries, newest last.
func (e *Engine) History() []history.Entry {
	return e.history.List()
}
