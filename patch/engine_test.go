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
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/patchforge/content"
	"github.com/AleutianAI/patchforge/events"
)

func newTestEngine(t *testing.T) (*Engine, *content.MemStore, *BackupStore) {
	t.Helper()
	source := content.NewMemStore()
	backups, err := NewBackupStore(t.TempDir())
	require.NoError(t, err)
	eng, err := NewEngine(EngineConfig{Source: source, Backups: backups})
	require.NoError(t, err)
	return eng, source, backups
}

func tenLines() string {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestEngine_RequiredConfig(t *testing.T) {
	_, err := NewEngine(EngineConfig{})
	require.Error(t, err)

	_, err = NewEngine(EngineConfig{Source: content.NewMemStore()})
	require.Error(t, err)
}

func TestEngine_ApplyReplaceMiddle(t *testing.T) {
	eng, source, _ := newTestEngine(t)
	original := tenLines()
	require.NoError(t, source.Write("main.go", original))

	edit := NewEdit("main.go", []Hunk{{
		StartLine:       3,
		EndLine:         5,
		OriginalContent: "line 3\nline 4\nline 5",
		NewContent:      "replacement",
	}})

	result, err := eng.Apply(context.Background(), edit)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, edit.ID, result.EditID)
	assert.Equal(t, 4, result.LinesChanged)

	got, err := source.Read("main.go")
	require.NoError(t, err)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "line 2", lines[1])
	assert.Equal(t, "replacement", lines[2])
	assert.Equal(t, "line 6", lines[3])

	// The backup holds the pre-mutation content exactly.
	data, err := os.ReadFile(result.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestEngine_RollbackInvertsApply(t *testing.T) {
	eng, source, _ := newTestEngine(t)
	original := tenLines()
	require.NoError(t, source.Write("main.go", original))

	edit := NewEdit("main.go", []Hunk{{StartLine: 3, EndLine: 5, NewContent: "replacement"}})
	result, err := eng.Apply(context.Background(), edit)
	require.NoError(t, err)
	require.True(t, result.Success)

	require.NoError(t, eng.Rollback(context.Background(), edit.ID))

	got, err := source.Read("main.go")
	require.NoError(t, err)
	assert.Equal(t, original, got)

	// The history entry is consumed: a second rollback fails.
	err = eng.Rollback(context.Background(), edit.ID)
	require.ErrorIs(t, err, ErrNoHistory)
}

func TestEngine_ValidationFailureDoesNotMutate(t *testing.T) {
	eng, source, backups := newTestEngine(t)
	original := tenLines()
	require.NoError(t, source.Write("main.go", original))

	edit := NewEdit("main.go", []Hunk{
		{StartLine: 2, EndLine: 5, NewContent: "a"},
		{StartLine: 4, EndLine: 7, NewContent: "b"},
	})

	result, err := eng.Apply(context.Background(), edit)
	require.ErrorIs(t, err, ErrValidationFailed)
	assert.False(t, result.Success)

	got, err := source.Read("main.go")
	require.NoError(t, err)
	assert.Equal(t, original, got)

	// No backup was taken and no history recorded.
	entries, err := os.ReadDir(backups.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".bak"), "unexpected backup %s", e.Name())
	}
	assert.Empty(t, eng.History())
}

func TestEngine_MissingFileFailsValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	edit := NewEdit("absent.go", []Hunk{{StartLine: 1, EndLine: 1, NewContent: "x"}})
	_, err := eng.Apply(context.Background(), edit)
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestEngine_MultiHunkOrderInvariance(t *testing.T) {
	ascending := []Hunk{
		{StartLine: 2, EndLine: 2, NewContent: "two"},
		{StartLine: 5, EndLine: 6, NewContent: "five-six"},
	}
	descending := []Hunk{ascending[1], ascending[0]}

	var outputs []string
	for _, hunks := range [][]Hunk{ascending, descending} {
		eng, source, _ := newTestEngine(t)
		require.NoError(t, source.Write("main.go", tenLines()))

		result, err := eng.Apply(context.Background(), NewEdit("main.go", hunks))
		require.NoError(t, err)
		require.True(t, result.Success)

		got, err := source.Read("main.go")
		require.NoError(t, err)
		outputs = append(outputs, got)
	}

	assert.Equal(t, outputs[0], outputs[1])
	lines := strings.Split(outputs[0], "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "two", lines[1])
	assert.Equal(t, "five-six", lines[4])
	assert.Equal(t, "line 7", lines[5])
}

func TestEngine_MismatchWarningStillApplies(t *testing.T) {
	eng, source, _ := newTestEngine(t)
	require.NoError(t, source.Write("main.go", tenLines()))

	edit := NewEdit("main.go", []Hunk{{
		StartLine:       3,
		EndLine:         3,
		OriginalContent: "something else entirely",
		NewContent:      "patched",
	}})

	result, err := eng.Apply(context.Background(), edit)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "do not match")

	got, err := source.Read("main.go")
	require.NoError(t, err)
	assert.Equal(t, "patched", strings.Split(got, "\n")[2])
}

func TestEngine_StrictModeBlocksMismatch(t *testing.T) {
	source := content.NewMemStore()
	backups, err := NewBackupStore(t.TempDir())
	require.NoError(t, err)
	eng, err := NewEngine(EngineConfig{Source: source, Backups: backups, Strict: true})
	require.NoError(t, err)

	original := tenLines()
	require.NoError(t, source.Write("main.go", original))

	edit := NewEdit("main.go", []Hunk{{
		StartLine:       3,
		EndLine:         3,
		OriginalContent: "something else entirely",
		NewContent:      "patched",
	}})

	_, err = eng.Apply(context.Background(), edit)
	require.ErrorIs(t, err, ErrValidationFailed)

	got, err := source.Read("main.go")
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestEngine_PublishesEvents(t *testing.T) {
	source := content.NewMemStore()
	backups, err := NewBackupStore(t.TempDir())
	require.NoError(t, err)

	notifier := events.NewNotifier()
	var mu sync.Mutex
	var seen []string
	notifier.Subscribe(func(e events.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	eng, err := NewEngine(EngineConfig{Source: source, Backups: backups, Notifier: notifier})
	require.NoError(t, err)
	require.NoError(t, source.Write("main.go", tenLines()))

	edit := NewEdit("main.go", []Hunk{{StartLine: 1, EndLine: 1, NewContent: "top"}})
	_, err = eng.Apply(context.Background(), edit)
	require.NoError(t, err)
	require.NoError(t, eng.Rollback(context.Background(), edit.ID))
	notifier.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{events.EditApplied, events.EditRolledBack}, seen)
}

func TestEngine_CleanupBackups(t *testing.T) {
	eng, source, _ := newTestEngine(t)
	require.NoError(t, source.Write("main.go", tenLines()))

	edit := NewEdit("main.go", []Hunk{{StartLine: 1, EndLine: 1, NewContent: "top"}})
	result, err := eng.Apply(context.Background(), edit)
	require.NoError(t, err)

	// Young backups survive a long-window sweep.
	removed, err := eng.CleanupBackups(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.FileExists(t, result.BackupPath)

	// A zero-window sweep removes everything older than now.
	time.Sleep(5 * time.Millisecond)
	removed, err = eng.CleanupBackups(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, result.BackupPath)

	// The swept entry is gone from history, so rollback now fails.
	err = eng.Rollback(context.Background(), edit.ID)
	require.ErrorIs(t, err, ErrNoHistory)
}

func TestEngine_DeleteWholeSpanShrinksFile(t *testing.T) {
	eng, source, _ := newTestEngine(t)
	require.NoError(t, source.Write("main.go", tenLines()))

	edit := NewEdit("main.go", []Hunk{{StartLine: 8, EndLine: 10, NewContent: ""}})
	result, err := eng.Apply(context.Background(), edit)
	require.NoError(t, err)
	assert.Equal(t, 3, result.LinesChanged)

	got, err := source.Read("main.go")
	require.NoError(t, err)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "line 7", lines[6])
}
