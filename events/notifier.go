// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides fire-and-forget notifications for patch and
// change-set state changes.
//
// # Description
//
// The engine and the workflow manager publish events after state changes.
// Listeners are invoked asynchronously; a slow or panicking listener never
// blocks or fails the operation that produced the event.
//
// # Thread Safety
//
// Notifier is safe for concurrent use.
package events

import (
	"sync"
	"time"
)

// Event types published by the patch core and the workflow manager.
const (
	EditApplied         = "edit.applied"
	EditRolledBack      = "edit.rolled_back"
	ChangeSetCreated    = "changeset.created"
	ChangeSetApproved   = "changeset.approved"
	ChangeSetRejected   = "changeset.rejected"
	ChangeSetApplied    = "changeset.applied"
	ChangeSetRolledBack = "changeset.rolled_back"
	ChangeSetRisk       = "changeset.risk"
)

// Event describes a single state change.
type Event struct {
	// Type is one of the event type constants.
	Type string

	// EditID identifies the edit, for edit.* events.
	EditID string

	// ChangeSetID identifies the change set, for changeset.* events.
	ChangeSetID string

	// Path is the affected file, when a single file is relevant.
	Path string

	// Detail carries free-form context (reject reason, risk level, error).
	Detail string

	// At is when the event was published.
	At time.Time
}

// Listener receives published events.
type Listener func(Event)

// Notifier delivers events to registered listeners.
//
// # Description
//
// Publish never blocks on listener completion: each publish runs its
// listeners on a separate goroutine. Flush waits for in-flight deliveries,
// which tests use to assert on received events.
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener
	wg        sync.WaitGroup
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a listener for all subsequent events.
func (n *Notifier) Subscribe(l Listener) {
	if l == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Publish delivers the event to all current listeners asynchronously.
//
// A nil Notifier is a valid no-op publisher, so callers never need to
// guard event emission.
func (n *Notifier) Publish(e Event) {
	if n == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	n.mu.RLock()
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for _, l := range listeners {
			func() {
				defer func() { _ = recover() }()
				l(e)
			}()
		}
	}()
}

// Flush blocks until all in-flight deliveries complete.
func (n *Notifier) Flush() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
