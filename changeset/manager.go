// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package changeset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/patchforge/content"
	"github.com/AleutianAI/patchforge/diff"
	"github.com/AleutianAI/patchforge/events"
	"github.com/AleutianAI/patchforge/impact"
	"github.com/AleutianAI/patchforge/metrics"
	"github.com/AleutianAI/patchforge/pkg/logging"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Source is the content store changesets are applied against. Required.
	Source content.Source

	// Notifier receives changeset lifecycle events. Optional.
	Notifier *events.Notifier

	// Logger is the structured logger. Nil uses logging.Default().
	Logger *logging.Logger

	// Metrics enables Prometheus instrumentation. Optional.
	Metrics *metrics.Metrics
}

// Manager moves ChangeSets through the approval lifecycle.
//
// # Description
//
// A Manager is constructed once by the host process and passed by
// reference; no ambient global exists. It owns the changeset registry and
// enforces the status transition table on every operation. Apply is
// transactional across files: the snapshot phase fully completes before
// the first write, and any write failure restores every touched file
// before the error is reported.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Lifecycle operations
// on a single changeset serialize on the manager mutex; concurrent
// changesets racing on the same file path are out of contract.
type Manager struct {
	source   content.Source
	notifier *events.Notifier
	logger   *logging.Logger
	metrics  *metrics.Metrics

	mu   sync.Mutex
	sets map[string]*ChangeSet
}

// NewManager creates a changeset manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("changeset: ManagerConfig.Source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Manager{
		source:   cfg.Source,
		notifier: cfg.Notifier,
		logger:   cfg.Logger.With("component", "changeset_manager"),
		metrics:  cfg.Metrics,
		sets:     make(map[string]*ChangeSet),
	}, nil
}

// Create builds a pending ChangeSet from proposed file changes.
//
// # Description
//
// Reads each target's current content (an absent file makes the change a
// creation), computes per-file diffs, and runs impact analysis. Deleting
// a file that does not exist is an error. A risk level of medium or
// higher additionally fires a changeset.risk event.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - description: Caller's summary, stored verbatim.
//   - proposals: One entry per file. Must be non-empty.
//
// # Outputs
//
//   - *ChangeSet: The pending changeset, registered with the manager.
//   - error: Non-nil on empty proposals or source read failure.
func (m *Manager) Create(ctx context.Context, description string, proposals []Proposed) (*ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(proposals) == 0 {
		return nil, fmt.Errorf("changeset: no proposed changes")
	}

	diffStart := time.Now()
	files := make([]*diff.FileDiff, 0, len(proposals))
	for _, p := range proposals {
		old, err := m.source.Read(p.Path)
		if err != nil {
			if !content.IsNotFound(err) {
				return nil, fmt.Errorf("reading %s: %w", p.Path, err)
			}
			old = ""
			if p.Delete {
				return nil, fmt.Errorf("cannot delete %s: file does not exist", p.Path)
			}
		}

		newContent := p.NewContent
		if p.Delete {
			newContent = ""
		}
		files = append(files, diff.NewFileDiff(p.Path, old, newContent))
	}
	m.metrics.ObserveDiffSeconds(time.Since(diffStart).Seconds())

	cs := &ChangeSet{
		ID:          uuid.NewString(),
		Description: description,
		Files:       files,
		Status:      StatusPending,
		Impact:      impact.Analyze(files),
		CreatedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.sets[cs.ID] = cs
	m.mu.Unlock()

	m.metrics.ObserveTransition(string(StatusPending))
	m.logger.Info("changeset created",
		"changeset_id", cs.ID,
		"files", len(cs.Files),
		"risk", string(cs.Impact.RiskLevel),
	)
	m.notifier.Publish(events.Event{
		Type:        events.ChangeSetCreated,
		ChangeSetID: cs.ID,
	})
	if cs.Impact.RiskLevel != impact.RiskLow {
		m.notifier.Publish(events.Event{
			Type:        events.ChangeSetRisk,
			ChangeSetID: cs.ID,
			Detail: fmt.Sprintf("risk %s: %d warnings, %d deletions",
				cs.Impact.RiskLevel, len(cs.Impact.Warnings), cs.Impact.TotalDeletions),
		})
	}
	return cs, nil
}

// Approve moves a pending changeset to approved, recording the actor.
func (m *Manager) Approve(id, approver string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.sets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !cs.Status.CanTransitionTo(StatusApproved) {
		return fmt.Errorf("%w: cannot approve changeset in status %s", ErrInvalidTransition, cs.Status)
	}

	cs.Status = StatusApproved
	cs.Approver = approver
	cs.ApprovedAt = time.Now().UTC()

	m.metrics.ObserveTransition(string(StatusApproved))
	m.logger.Info("changeset approved", "changeset_id", id, "approver", approver)
	m.notifier.Publish(events.Event{
		Type:        events.ChangeSetApproved,
		ChangeSetID: id,
		Detail:      approver,
	})
	return nil
}

// Reject moves a pending changeset to rejected, recording the reason.
// Rejected is terminal.
func (m *Manager) Reject(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.sets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !cs.Status.CanTransitionTo(StatusRejected) {
		return fmt.Errorf("%w: cannot reject changeset in status %s", ErrInvalidTransition, cs.Status)
	}

	cs.Status = StatusRejected
	cs.RejectReason = reason

	m.metrics.ObserveTransition(string(StatusRejected))
	m.logger.Info("changeset rejected", "changeset_id", id, "reason", reason)
	m.notifier.Publish(events.Event{
		Type:        events.ChangeSetRejected,
		ChangeSetID: id,
		Detail:      reason,
	})
	return nil
}

// Apply writes an approved changeset to the content source.
//
// # Description
//
// The snapshot phase fully completes before the first write: every
// file's pre-change state is captured, with creations recorded as
// not-previously-existing. Writes then run concurrently. If any write
// fails, every touched file is restored from the just-taken snapshot
// before the error is reported, and the changeset stays approved so the
// caller may retry. Partial multi-file application is never left
// standing.
//
// # Inputs
//
//   - ctx: Context for cancellation. Once one write fails, sibling
//     writes that have not started are skipped; writes already in
//     flight run to completion before the snapshot is restored.
//   - id: The changeset to apply. Must be in status approved.
//
// # Outputs
//
//   - error: Non-nil on unknown id, wrong status, or write failure. A
//     write failure names the failing path.
func (m *Manager) Apply(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.sets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !cs.Status.CanTransitionTo(StatusApplied) {
		return fmt.Errorf("%w: cannot apply changeset in status %s", ErrInvalidTransition, cs.Status)
	}

	// Snapshot every file before any write. Creations simply have no
	// prior content to record.
	snapshot := make(map[string]snapshotEntry, len(cs.Files))
	for _, fd := range cs.Files {
		entry := snapshotEntry{}
		if text, err := m.source.Read(fd.FilePath); err == nil {
			entry = snapshotEntry{content: text, existed: true}
		} else if !content.IsNotFound(err) {
			return fmt.Errorf("snapshotting %s: %w", fd.FilePath, err)
		}
		snapshot[fd.FilePath] = entry
	}
	cs.snapshot = snapshot

	g, gctx := errgroup.WithContext(ctx)
	for _, fd := range cs.Files {
		fd := fd
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if fd.ChangeType == diff.ChangeDelete {
				if err := m.source.Delete(fd.FilePath); err != nil {
					return fmt.Errorf("deleting %s: %w", fd.FilePath, err)
				}
				return nil
			}
			if err := m.source.Write(fd.FilePath, fd.NewContent); err != nil {
				return fmt.Errorf("writing %s: %w", fd.FilePath, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		m.restoreSnapshot(cs)
		m.logger.Error("changeset apply failed, snapshot restored",
			"changeset_id", id,
			"error", err.Error(),
		)
		return fmt.Errorf("applying changeset %s: %w", id, err)
	}

	cs.Status = StatusApplied
	cs.AppliedAt = time.Now().UTC()

	m.metrics.ObserveTransition(string(StatusApplied))
	m.logger.Info("changeset applied", "changeset_id", id, "files", len(cs.Files))
	m.notifier.Publish(events.Event{
		Type:        events.ChangeSetApplied,
		ChangeSetID: id,
	})
	return nil
}

// Rollback restores every file of an applied changeset from its snapshot.
//
// # Description
//
// Files that existed before apply get their prior content back; files
// created by the apply are deleted. The snapshot is retained afterwards
// for audit. Rolled_back is terminal.
func (m *Manager) Rollback(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.sets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !cs.Status.CanTransitionTo(StatusRolledBack) {
		return fmt.Errorf("%w: cannot roll back changeset in status %s", ErrInvalidTransition, cs.Status)
	}
	if cs.snapshot == nil {
		return fmt.Errorf("%w: changeset %s", ErrNoSnapshot, id)
	}

	m.restoreSnapshot(cs)
	cs.Status = StatusRolledBack

	m.metrics.ObserveTransition(string(StatusRolledBack))
	m.logger.Info("changeset rolled back", "changeset_id", id)
	m.notifier.Publish(events.Event{
		Type:        events.ChangeSetRolledBack,
		ChangeSetID: id,
	})
	return nil
}

// restoreSnapshot puts every snapshotted file back to its captured state.
// Restore failures are logged and skipped so one bad path never blocks
// the rest of the restore.
func (m *Manager) restoreSnapshot(cs *ChangeSet) {
	for path, entry := range cs.snapshot {
		var err error
		if entry.existed {
			err = m.source.Write(path, entry.content)
		} else {
			err = m.source.Delete(path)
			if content.IsNotFound(err) {
				err = nil
			}
		}
		if err != nil {
			m.logger.Error("snapshot restore failed",
				"changeset_id", cs.ID,
				"path", path,
				"error", err.Error(),
			)
		}
	}
}

// Restore registers a previously serialized changeset with the manager.
//
// # Description
//
// Used by hosts that persist changesets between processes. The restored
// set carries no snapshot, so a restored applied changeset cannot be
// rolled back until the host re-applies it in this process.
func (m *Manager) Restore(cs *ChangeSet) error {
	if cs == nil || cs.ID == "" {
		return fmt.Errorf("changeset: cannot restore changeset without an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sets[cs.ID]; exists {
		return fmt.Errorf("changeset: %s already registered", cs.ID)
	}
	m.sets[cs.ID] = cs
	return nil
}

// FormatUnifiedDiff renders the full changeset as one unified diff.
func (m *Manager) FormatUnifiedDiff(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.sets[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var b strings.Builder
	for _, fd := range cs.Files {
		b.WriteString(diff.FormatUnified(fd))
	}
	return b.String(), nil
}

// Get returns the changeset for id.
func (m *Manager) Get(id string) (*ChangeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.sets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cs, nil
}

// List returns all changesets ordered by creation time, oldest first.
func (m *Manager) List() []*ChangeSet {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*ChangeSet, 0, len(m.sets))
	for _, cs := range m.sets {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
