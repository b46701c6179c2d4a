// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

/*
Package metrics provides Prometheus metrics collection and export for observability.

Collectors are registered with the default registry through promauto and are
exposed by the HTTP server at /metrics.

# Available Metrics

Tuple Store Metrics:
  - tuplestore_requests_total: calls by operation and outcome (counter)
  - tuplestore_request_duration_seconds: call latency (histogram)
  - tuplestore_write_retries_total: chunks retried after ErrConcurrentUpdate
  - tuplestore_batch_check_items: tuples per BatchCheck (histogram)
  - tuplestore_circuit_breaker_state: 0 closed, 1 half-open, 2 open (gauge)

Catalog Metrics:
  - catalog_query_duration_seconds, catalog_query_errors_total
  - catalog_cache_hits_total, catalog_cache_misses_total (reason: absent, stale, skip)
  - catalog_cache_entries

Batch Permission Check Metrics:
  - permission_check_requests_total, permission_check_items,
    permission_check_duration_seconds

Event Metrics:
  - events_emitted_total: by sink, kind and outcome

HTTP Metrics:
  - api_requests_total, api_request_duration_seconds, api_active_requests

Authorization decision counters live with the engine in package authz.
*/
package metrics
