// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package changeset manages multi-file change proposals through an
// approval lifecycle with transactional apply and rollback.
package changeset

import (
	"errors"
	"time"

	"github.com/AleutianAI/patchforge/diff"
	"github.com/AleutianAI/patchforge/impact"
)

// Sentinel errors for lifecycle operations.
var (
	// ErrNotFound indicates no changeset exists for the id.
	ErrNotFound = errors.New("changeset not found")

	// ErrInvalidTransition indicates the changeset is not in a status
	// from which the requested operation is allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNoSnapshot indicates rollback was requested for a changeset
	// that never captured pre-apply state.
	ErrNoSnapshot = errors.New("no snapshot recorded")
)

// =============================================================================
// Status
// =============================================================================

// Status is the lifecycle state of a ChangeSet.
type Status string

const (
	// StatusPending awaits an approve or reject decision.
	StatusPending Status = "pending"

	// StatusApproved may be applied.
	StatusApproved Status = "approved"

	// StatusRejected is terminal.
	StatusRejected Status = "rejected"

	// StatusApplied has been written to the content source.
	StatusApplied Status = "applied"

	// StatusRolledBack is terminal; the apply was undone.
	StatusRolledBack Status = "rolled_back"
)

// validTransitions is the full lifecycle graph. Anything absent here is
// rejected with ErrInvalidTransition.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusApplied},
	StatusApplied:  {StatusRolledBack},
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// =============================================================================
// ChangeSet
// =============================================================================

// Proposed is one file-level change submitted to Manager.Create.
type Proposed struct {
	// Path is the file the change targets.
	Path string

	// NewContent is the full desired content. Ignored when Delete is set.
	NewContent string

	// Delete removes the file instead of writing content.
	Delete bool
}

// snapshotEntry captures one file's pre-apply state. Files being created
// have existed=false and no content.
type snapshotEntry struct {
	content string
	existed bool
}

// ChangeSet is a reviewed group of file diffs moving through the
// approval lifecycle as one unit.
type ChangeSet struct {
	// ID is the unique changeset identifier.
	ID string `json:"id"`

	// Description is the caller's summary of the change.
	Description string `json:"description"`

	// Files are the per-file diffs, in submission order.
	Files []*diff.FileDiff `json:"files"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Impact is the risk analysis computed at creation.
	Impact *impact.Analysis `json:"impact"`

	// CreatedAt is when the changeset was proposed.
	CreatedAt time.Time `json:"created_at"`

	// ApprovedAt is when the changeset was approved, zero otherwise.
	ApprovedAt time.Time `json:"approved_at,omitempty"`

	// AppliedAt is when the changeset was applied, zero otherwise.
	AppliedAt time.Time `json:"applied_at,omitempty"`

	// Approver is who approved the changeset.
	Approver string `json:"approver,omitempty"`

	// RejectReason is why the changeset was rejected.
	RejectReason string `json:"reject_reason,omitempty"`

	// snapshot holds pre-apply content, captured before any write.
	// Retained after rollback for audit.
	snapshot map[string]snapshotEntry
}
