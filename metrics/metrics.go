// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics provides Prometheus instrumentation for the patch engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the patch engine and the
// change-set workflow.
//
// Thread Safety: Safe for concurrent use (Prometheus metrics are thread-safe).
type Metrics struct {
	// EditApplies counts apply attempts by outcome (success, validation_failed, io_error).
	EditApplies *prometheus.CounterVec

	// EditRollbacks counts rollback attempts by outcome (success, no_history, io_error).
	EditRollbacks *prometheus.CounterVec

	// ValidationConflicts counts conflicts by type.
	ValidationConflicts *prometheus.CounterVec

	// ContentMismatchWarnings counts stale-content warnings that did not block.
	ContentMismatchWarnings prometheus.Counter

	// ChangeSetTransitions counts change-set status transitions by target status.
	ChangeSetTransitions *prometheus.CounterVec

	// DiffDuration measures line-diff computation latency.
	DiffDuration prometheus.Histogram

	// BackupsCleaned counts backups removed by cleanup sweeps.
	BackupsCleaned prometheus.Counter
}

// New creates and registers all patch engine metrics.
//
// # Description
//
//	Uses promauto bound to the given registerer. Passing nil registers on
//	the default registerer.
//
// # Outputs
//
//   - *Metrics: The created metrics. Never nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EditApplies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patchforge_edit_applies_total",
			Help: "Edit apply attempts by outcome.",
		}, []string{"outcome"}),

		EditRollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patchforge_edit_rollbacks_total",
			Help: "Edit rollback attempts by outcome.",
		}, []string{"outcome"}),

		ValidationConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patchforge_validation_conflicts_total",
			Help: "Validation conflicts by conflict type.",
		}, []string{"type"}),

		ContentMismatchWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "patchforge_content_mismatch_warnings_total",
			Help: "Content mismatch warnings emitted during validation.",
		}),

		ChangeSetTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patchforge_changeset_transitions_total",
			Help: "Change-set status transitions by target status.",
		}, []string{"to"}),

		DiffDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "patchforge_diff_duration_seconds",
			Help:    "Line-diff computation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),

		BackupsCleaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "patchforge_backup_cleanup_removed_total",
			Help: "Backups removed by cleanup sweeps.",
		}),
	}
}

// ObserveApply records an apply outcome. Nil-safe.
func (m *Metrics) ObserveApply(outcome string) {
	if m == nil {
		return
	}
	m.EditApplies.WithLabelValues(outcome).Inc()
}

// ObserveRollback records a rollback outcome. Nil-safe.
func (m *Metrics) ObserveRollback(outcome string) {
	if m == nil {
		return
	}
	m.EditRollbacks.WithLabelValues(outcome).Inc()
}

// ObserveConflict records a validation conflict. Nil-safe.
func (m *Metrics) ObserveConflict(conflictType string) {
	if m == nil {
		return
	}
	m.ValidationConflicts.WithLabelValues(conflictType).Inc()
}

// ObserveMismatch records a content mismatch warning. Nil-safe.
func (m *Metrics) ObserveMismatch() {
	if m == nil {
		return
	}
	m.ContentMismatchWarnings.Inc()
}

// ObserveTransition records a change-set transition. Nil-safe.
func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.ChangeSetTransitions.WithLabelValues(to).Inc()
}

// ObserveDiffSeconds records diff latency. Nil-safe.
func (m *Metrics) ObserveDiffSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.DiffDuration.Observe(seconds)
}

// ObserveCleanup records removed backups. Nil-safe.
func (m *Metrics) ObserveCleanup(removed int) {
	if m == nil {
		return
	}
	m.BackupsCleaned.Add(float64(removed))
}
