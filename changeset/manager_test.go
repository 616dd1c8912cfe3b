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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/patchforge/content"
	"github.com/AleutianAI/patchforge/diff"
	"github.com/AleutianAI/patchforge/events"
	"github.com/AleutianAI/patchforge/impact"
)

// faultySource fails writes to one path, for transaction tests.
type faultySource struct {
	*content.MemStore
	failPath string
}

func (f *faultySource) Write(path, text string) error {
	if path == f.failPath {
		return errors.New("disk full")
	}
	return f.MemStore.Write(path, text)
}

func newTestManager(t *testing.T) (*Manager, *content.MemStore) {
	t.Helper()
	source := content.NewMemStore()
	m, err := NewManager(ManagerConfig{Source: source})
	require.NoError(t, err)
	return m, source
}

func TestManager_RequiresSource(t *testing.T) {
	_, err := NewManager(ManagerConfig{})
	require.Error(t, err)
}

func TestManager_Create(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "old a"))

	cs, err := m.Create(context.Background(), "update a, add b", []Proposed{
		{Path: "a.go", NewContent: "new a"},
		{Path: "b.go", NewContent: "fresh b"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, cs.ID)
	assert.Equal(t, StatusPending, cs.Status)
	assert.Equal(t, "update a, add b", cs.Description)
	require.Len(t, cs.Files, 2)
	assert.Equal(t, diff.ChangeModify, cs.Files[0].ChangeType)
	assert.Equal(t, diff.ChangeCreate, cs.Files[1].ChangeType)
	require.NotNil(t, cs.Impact)
	assert.Equal(t, 2, cs.Impact.TotalFiles)
	assert.False(t, cs.CreatedAt.IsZero())

	// Creation itself never touches the source.
	got, err := source.Read("a.go")
	require.NoError(t, err)
	assert.Equal(t, "old a", got)
	assert.False(t, source.Exists("b.go"))
}

func TestManager_CreateRejectsEmptyAndBadDelete(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Create(context.Background(), "empty", nil)
	require.Error(t, err)

	_, err = m.Create(context.Background(), "ghost", []Proposed{
		{Path: "missing.go", Delete: true},
	})
	require.Error(t, err)
}

func TestManager_ApproveRejectLifecycle(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "old"))

	cs, err := m.Create(context.Background(), "change", []Proposed{{Path: "a.go", NewContent: "new"}})
	require.NoError(t, err)

	require.NoError(t, m.Approve(cs.ID, "reviewer"))
	assert.Equal(t, StatusApproved, cs.Status)
	assert.Equal(t, "reviewer", cs.Approver)
	assert.False(t, cs.ApprovedAt.IsZero())

	// Approved is past the decision point; both decisions now fail.
	require.ErrorIs(t, m.Approve(cs.ID, "again"), ErrInvalidTransition)
	require.ErrorIs(t, m.Reject(cs.ID, "late"), ErrInvalidTransition)
}

func TestManager_RejectIsTerminal(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "old"))

	cs, err := m.Create(context.Background(), "change", []Proposed{{Path: "a.go", NewContent: "new"}})
	require.NoError(t, err)

	require.NoError(t, m.Reject(cs.ID, "not wanted"))
	assert.Equal(t, StatusRejected, cs.Status)
	assert.Equal(t, "not wanted", cs.RejectReason)

	require.ErrorIs(t, m.Approve(cs.ID, "reviewer"), ErrInvalidTransition)
	require.ErrorIs(t, m.Apply(context.Background(), cs.ID), ErrInvalidTransition)
	require.ErrorIs(t, m.Rollback(context.Background(), cs.ID), ErrInvalidTransition)

	// No side effects from the refused operations.
	got, err := source.Read("a.go")
	require.NoError(t, err)
	assert.Equal(t, "old", got)
}

func TestManager_ApplyRequiresApproval(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "old"))

	cs, err := m.Create(context.Background(), "change", []Proposed{{Path: "a.go", NewContent: "new"}})
	require.NoError(t, err)

	require.ErrorIs(t, m.Apply(context.Background(), cs.ID), ErrInvalidTransition)

	got, err := source.Read("a.go")
	require.NoError(t, err)
	assert.Equal(t, "old", got)
}

func TestManager_ApplyWritesCreatesAndDeletes(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "old a"))
	require.NoError(t, source.Write("gone.go", "doomed"))

	cs, err := m.Create(context.Background(), "mixed", []Proposed{
		{Path: "a.go", NewContent: "new a"},
		{Path: "b.go", NewContent: "fresh b"},
		{Path: "gone.go", Delete: true},
	})
	require.NoError(t, err)
	require.NoError(t, m.Approve(cs.ID, "reviewer"))
	require.NoError(t, m.Apply(context.Background(), cs.ID))

	assert.Equal(t, StatusApplied, cs.Status)
	assert.False(t, cs.AppliedAt.IsZero())

	a, err := source.Read("a.go")
	require.NoError(t, err)
	assert.Equal(t, "new a", a)
	b, err := source.Read("b.go")
	require.NoError(t, err)
	assert.Equal(t, "fresh b", b)
	assert.False(t, source.Exists("gone.go"))

	// Applied twice is refused.
	require.ErrorIs(t, m.Apply(context.Background(), cs.ID), ErrInvalidTransition)
}

func TestManager_ApplyFailureRestoresSnapshot(t *testing.T) {
	mem := content.NewMemStore()
	source := &faultySource{MemStore: mem, failPath: "b.go"}
	m, err := NewManager(ManagerConfig{Source: source})
	require.NoError(t, err)

	require.NoError(t, mem.Write("a.go", "old a"))
	require.NoError(t, mem.Write("b.go", "old b"))

	cs, err := m.Create(context.Background(), "two files", []Proposed{
		{Path: "a.go", NewContent: "new a"},
		{Path: "b.go", NewContent: "new b"},
	})
	require.NoError(t, err)
	require.NoError(t, m.Approve(cs.ID, "reviewer"))

	err = m.Apply(context.Background(), cs.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.go")

	// The first file is back to its pre-apply content and the changeset
	// stays approved so the caller can retry.
	a, err := mem.Read("a.go")
	require.NoError(t, err)
	assert.Equal(t, "old a", a)
	b, err := mem.Read("b.go")
	require.NoError(t, err)
	assert.Equal(t, "old b", b)
	assert.Equal(t, StatusApproved, cs.Status)
}

func TestManager_ApplyCancelledContextDoesNotMutate(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "old a"))

	cs, err := m.Create(context.Background(), "cancelled", []Proposed{
		{Path: "a.go", NewContent: "new a"},
		{Path: "b.go", NewContent: "fresh b"},
	})
	require.NoError(t, err)
	require.NoError(t, m.Approve(cs.ID, "reviewer"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = m.Apply(ctx, cs.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	a, err := source.Read("a.go")
	require.NoError(t, err)
	assert.Equal(t, "old a", a)
	assert.False(t, source.Exists("b.go"))
	assert.Equal(t, StatusApproved, cs.Status)

	// A retry with a live context succeeds.
	require.NoError(t, m.Apply(context.Background(), cs.ID))
	assert.Equal(t, StatusApplied, cs.Status)
}

func TestManager_RollbackInvertsApply(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "old a"))

	cs, err := m.Create(context.Background(), "modify and create", []Proposed{
		{Path: "a.go", NewContent: "new a"},
		{Path: "b.go", NewContent: "fresh b"},
	})
	require.NoError(t, err)
	require.NoError(t, m.Approve(cs.ID, "reviewer"))
	require.NoError(t, m.Apply(context.Background(), cs.ID))

	require.NoError(t, m.Rollback(context.Background(), cs.ID))
	assert.Equal(t, StatusRolledBack, cs.Status)

	a, err := source.Read("a.go")
	require.NoError(t, err)
	assert.Equal(t, "old a", a)
	// The created file is deleted on rollback.
	assert.False(t, source.Exists("b.go"))

	// Rolled_back is terminal.
	require.ErrorIs(t, m.Rollback(context.Background(), cs.ID), ErrInvalidTransition)
}

func TestManager_RollbackWithoutSnapshot(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "old"))

	cs, err := m.Create(context.Background(), "change", []Proposed{{Path: "a.go", NewContent: "new"}})
	require.NoError(t, err)
	require.NoError(t, m.Approve(cs.ID, "reviewer"))
	require.NoError(t, m.Apply(context.Background(), cs.ID))

	cs.snapshot = nil
	require.ErrorIs(t, m.Rollback(context.Background(), cs.ID), ErrNoSnapshot)
}

func TestManager_Events(t *testing.T) {
	source := content.NewMemStore()
	notifier := events.NewNotifier()

	var mu sync.Mutex
	var seen []string
	notifier.Subscribe(func(e events.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	m, err := NewManager(ManagerConfig{Source: source, Notifier: notifier})
	require.NoError(t, err)
	require.NoError(t, source.Write("a.go", "old"))

	cs, err := m.Create(context.Background(), "change", []Proposed{{Path: "a.go", NewContent: "new"}})
	require.NoError(t, err)
	require.NoError(t, m.Approve(cs.ID, "reviewer"))
	require.NoError(t, m.Apply(context.Background(), cs.ID))
	require.NoError(t, m.Rollback(context.Background(), cs.ID))
	notifier.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{
		events.ChangeSetCreated,
		events.ChangeSetApproved,
		events.ChangeSetApplied,
		events.ChangeSetRolledBack,
	}, seen)
}

func TestManager_RiskEventForSensitiveChange(t *testing.T) {
	source := content.NewMemStore()
	notifier := events.NewNotifier()

	var mu sync.Mutex
	var risks []events.Event
	notifier.Subscribe(func(e events.Event) {
		if e.Type == events.ChangeSetRisk {
			mu.Lock()
			risks = append(risks, e)
			mu.Unlock()
		}
	})

	m, err := NewManager(ManagerConfig{Source: source, Notifier: notifier})
	require.NoError(t, err)
	require.NoError(t, source.Write(".env", "KEY=old"))

	cs, err := m.Create(context.Background(), "rotate", []Proposed{{Path: ".env", NewContent: "KEY=new"}})
	require.NoError(t, err)
	notifier.Flush()

	assert.NotEqual(t, impact.RiskLow, cs.Impact.RiskLevel)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, risks, 1)
	assert.Equal(t, cs.ID, risks[0].ChangeSetID)
	assert.Contains(t, risks[0].Detail, "risk")
}

func TestManager_FormatUnifiedDiff(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "line 1\nline 2"))

	cs, err := m.Create(context.Background(), "both kinds", []Proposed{
		{Path: "a.go", NewContent: "line 1\nchanged"},
		{Path: "b.go", NewContent: "brand new"},
	})
	require.NoError(t, err)

	out, err := m.FormatUnifiedDiff(cs.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "--- a/a.go")
	assert.Contains(t, out, "+++ b/a.go")
	assert.Contains(t, out, "+changed")
	assert.Contains(t, out, "--- /dev/null")
	assert.Contains(t, out, "+brand new")
}

func TestManager_GetAndList(t *testing.T) {
	m, source := newTestManager(t)
	require.NoError(t, source.Write("a.go", "old"))

	_, err := m.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)

	first, err := m.Create(context.Background(), "first", []Proposed{{Path: "a.go", NewContent: "1"}})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := m.Create(context.Background(), "second", []Proposed{{Path: "a.go", NewContent: "2"}})
	require.NoError(t, err)

	got, err := m.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	all := m.List()
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusApplied, false},
		{StatusApproved, StatusApplied, true},
		{StatusApproved, StatusRejected, false},
		{StatusApplied, StatusRolledBack, true},
		{StatusApplied, StatusApproved, false},
		{StatusRejected, StatusApproved, false},
		{StatusRolledBack, StatusApplied, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusRolledBack.IsTerminal())
}
