// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tuple Store Metrics
	TupleStoreRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuplestore_requests_total",
			Help: "Total number of tuple store requests",
		},
		[]string{"operation", "outcome"}, // outcome: "ok", "error", "breaker_open"
	)

	TupleStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tuplestore_request_duration_seconds",
			Help:    "Duration of tuple store requests in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	TupleStoreRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tuplestore_write_retries_total",
			Help: "Total number of write chunks retried after a concurrent update",
		},
	)

	TupleStoreBatchItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tuplestore_batch_check_items",
			Help:    "Number of tuples per batch check call",
			Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 5000},
		},
	)

	TupleStoreBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tuplestore_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Catalog Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_query_duration_seconds",
			Help:    "Duration of metadata store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_query_errors_total",
			Help: "Total number of metadata store query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	CatalogCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of catalog cache hits",
		},
		[]string{"cache"}, // "warehouse", "namespace"
	)

	CatalogCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of catalog cache misses",
		},
		[]string{"cache", "reason"}, // reason: "absent", "stale", "skip"
	)

	CatalogCacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_cache_entries",
			Help: "Current number of entries in a catalog cache",
		},
		[]string{"cache"},
	)

	// Batch Permission Check Metrics
	BatchCheckRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_check_requests_total",
			Help: "Total number of batch permission check requests",
		},
		[]string{"outcome"},
	)

	BatchCheckSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "permission_check_items",
			Help:    "Number of checks per batch permission request",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	BatchCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "permission_check_duration_seconds",
			Help:    "Duration of batch permission requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// Event Metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_emitted_total",
			Help: "Total number of events handed to sinks",
		},
		[]string{"sink", "kind", "outcome"}, // outcome: "ok", "error"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// RecordTupleStoreRequest records one tuple store call.
func RecordTupleStoreRequest(operation, outcome string, duration time.Duration) {
	TupleStoreRequests.WithLabelValues(operation, outcome).Inc()
	TupleStoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetBreakerState publishes a circuit breaker state (0 closed, 1 half-open, 2 open).
func SetBreakerState(name string, state int) {
	TupleStoreBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordDBQuery records a metadata store query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordCacheLookup records a catalog cache hit or a miss with its reason.
func RecordCacheLookup(cache string, hit bool, reason string) {
	if hit {
		CatalogCacheHits.WithLabelValues(cache).Inc()
		return
	}
	CatalogCacheMisses.WithLabelValues(cache, reason).Inc()
}

// RecordBatchCheck records a finished batch permission request.
func RecordBatchCheck(items int, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	BatchCheckRequests.WithLabelValues(outcome).Inc()
	BatchCheckSize.Observe(float64(items))
	BatchCheckDuration.Observe(duration.Seconds())
}

// RecordEvent records an event delivery attempt.
func RecordEvent(sink, kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, ErrDropped) {
			outcome = "dropped"
		}
	}
	EventsEmitted.WithLabelValues(sink, kind, outcome).Inc()
}

// ErrDropped marks an event a sink discarded under back-pressure.
var ErrDropped = errors.New("event dropped")

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
