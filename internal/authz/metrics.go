// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthzDecisionsTotal counts point and batch decisions by object type,
	// relation, and outcome.
	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"object_type", "relation", "outcome"},
	)

	// AuthzDecisionDuration tracks the latency of point checks.
	AuthzDecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authz_decision_duration_seconds",
			Help:    "Duration of authorization decisions in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	// AuthzDeniedTotal tracks denials for alerting.
	AuthzDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_denied_total",
			Help: "Total number of authorization denials (for alerting)",
		},
		[]string{"object_type", "relation"},
	)

	// AuthzAssignmentWritesTotal counts checked assignment writes.
	AuthzAssignmentWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_assignment_writes_total",
			Help: "Total number of checked assignment writes by outcome",
		},
		[]string{"object_type", "outcome"},
	)

	// AuthzAssignmentTuples counts tuples written or deleted by assignment writes.
	AuthzAssignmentTuples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_assignment_tuples_total",
			Help: "Total number of assignment tuples applied",
		},
		[]string{"op"},
	)

	// AuthzManagedAccessChanges counts managed-access toggles that changed state.
	AuthzManagedAccessChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_managed_access_changes_total",
			Help: "Total number of managed-access state changes",
		},
		[]string{"object_type", "enabled"},
	)

	// AuthzLifecycleHooks counts lifecycle hook runs.
	AuthzLifecycleHooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_lifecycle_hooks_total",
			Help: "Total number of graph lifecycle hook runs by outcome",
		},
		[]string{"hook", "outcome"},
	)

	// AuthzHookRetries counts background retries of failed lifecycle hooks.
	AuthzHookRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_hook_retries_total",
			Help: "Lifecycle hook retry queue transitions (queued, recovered, failed, dropped, evicted)",
		},
		[]string{"hook", "outcome"},
	)

	// AuthzHookRetryPending tracks graph updates waiting for a retry.
	AuthzHookRetryPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authz_hook_retry_pending",
			Help: "Current number of lifecycle hook graph updates waiting for a retry",
		},
	)

	// AuthzErrorsTotal counts errors by type.
	AuthzErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_errors_total",
			Help: "Total number of authorization errors by type",
		},
		[]string{"error_type"},
	)

	// Audit Metrics

	// AuthzAuditEventsTotal counts audit events by outcome.
	AuthzAuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_audit_events_total",
			Help: "Total number of authorization audit events",
		},
		[]string{"outcome"},
	)

	// AuthzAuditDroppedTotal counts dropped audit events (buffer full).
	AuthzAuditDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_audit_dropped_total",
			Help: "Total number of dropped audit events due to buffer overflow",
		},
	)

	// AuthzAuditBufferUsage tracks audit buffer utilization.
	AuthzAuditBufferUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authz_audit_buffer_usage_percent",
			Help: "Current audit log buffer utilization percentage",
		},
	)
)

// RecordDecision records one decision.
func RecordDecision(objectType, relation string, outcome Outcome) {
	AuthzDecisionsTotal.WithLabelValues(objectType, relation, outcome.String()).Inc()
	if outcome != Allowed {
		AuthzDeniedTotal.WithLabelValues(objectType, relation).Inc()
	}
}

// ObserveDecisionDuration records latency for a point ("point") or batch
// ("batch") evaluation.
func ObserveDecisionDuration(kind string, d time.Duration) {
	AuthzDecisionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordAssignmentWrite records a checked write outcome.
func RecordAssignmentWrite(objectType string, writes, deletes int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errorType(err)
	} else {
		AuthzAssignmentTuples.WithLabelValues("write").Add(float64(writes))
		AuthzAssignmentTuples.WithLabelValues("delete").Add(float64(deletes))
	}
	AuthzAssignmentWritesTotal.WithLabelValues(objectType, outcome).Inc()
}

// RecordManagedAccessChange records a managed-access toggle.
func RecordManagedAccessChange(objectType string, enabled bool) {
	label := "false"
	if enabled {
		label = "true"
	}
	AuthzManagedAccessChanges.WithLabelValues(objectType, label).Inc()
}

// RecordLifecycleHook records a lifecycle hook run.
func RecordLifecycleHook(hook string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AuthzLifecycleHooks.WithLabelValues(hook, outcome).Inc()
}

// RecordHookRetry records a retry queue transition for hook.
func RecordHookRetry(hook, outcome string) {
	AuthzHookRetries.WithLabelValues(hook, outcome).Inc()
}

// SetHookRetryPending sets the retry queue depth.
func SetHookRetryPending(n int) {
	AuthzHookRetryPending.Set(float64(n))
}

// RecordAuthzError records an authorization error.
func RecordAuthzError(err error) {
	AuthzErrorsTotal.WithLabelValues(errorType(err)).Inc()
}

// RecordAuditEvent records an audit event by outcome.
func RecordAuditEvent(outcome string) {
	AuthzAuditEventsTotal.WithLabelValues(outcome).Inc()
}

// RecordAuditDropped records a dropped audit event.
func RecordAuditDropped() {
	AuthzAuditDroppedTotal.Inc()
}

// UpdateAuditBufferUsage updates the audit buffer usage percentage.
func UpdateAuditBufferUsage(usedPercent float64) {
	AuthzAuditBufferUsage.Set(usedPercent)
}
