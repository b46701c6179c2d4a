// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecordDBQuery tests metadata query metric recording
func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		table     string
		err       error
		wantErrs  float64
	}{
		{"successful select", "select", "warehouse", nil, 0},
		{"failed insert", "insert", "namespace", errors.New("constraint violation"), 1},
		{
			name:      "long error truncated",
			operation: "update",
			table:     "tabular",
			err:       errors.New("this is a very long error message that exceeds fifty characters and should be truncated"),
			wantErrs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordDBQuery(tt.operation, tt.table, time.Millisecond, tt.err)
			if tt.err == nil {
				return
			}
			label := tt.err.Error()
			if len(label) > 50 {
				label = label[:50]
			}
			got := testutil.ToFloat64(DBQueryErrors.WithLabelValues(tt.operation, tt.table, label))
			if got != tt.wantErrs {
				t.Errorf("error counter = %v, want %v", got, tt.wantErrs)
			}
		})
	}
}

func TestRecordCacheLookup(t *testing.T) {
	beforeHit := testutil.ToFloat64(CatalogCacheHits.WithLabelValues("warehouse"))
	beforeStale := testutil.ToFloat64(CatalogCacheMisses.WithLabelValues("warehouse", "stale"))

	RecordCacheLookup("warehouse", true, "")
	RecordCacheLookup("warehouse", false, "stale")

	if got := testutil.ToFloat64(CatalogCacheHits.WithLabelValues("warehouse")); got != beforeHit+1 {
		t.Errorf("hits = %v, want %v", got, beforeHit+1)
	}
	if got := testutil.ToFloat64(CatalogCacheMisses.WithLabelValues("warehouse", "stale")); got != beforeStale+1 {
		t.Errorf("stale misses = %v, want %v", got, beforeStale+1)
	}
}

func TestRecordEventOutcomes(t *testing.T) {
	tests := []struct {
		err     error
		outcome string
	}{
		{nil, "ok"},
		{errors.New("nats down"), "error"},
		{fmt.Errorf("audit buffer full: %w", ErrDropped), "dropped"},
	}
	for _, tt := range tests {
		before := testutil.ToFloat64(EventsEmitted.WithLabelValues("test", "authz", tt.outcome))
		RecordEvent("test", "authz", tt.err)
		if got := testutil.ToFloat64(EventsEmitted.WithLabelValues("test", "authz", tt.outcome)); got != before+1 {
			t.Errorf("%s: counter = %v, want %v", tt.outcome, got, before+1)
		}
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active requests = %v, want %v", got, before+1)
	}
}

func TestRecordBatchCheck(t *testing.T) {
	before := testutil.ToFloat64(BatchCheckRequests.WithLabelValues("error"))
	RecordBatchCheck(3, time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(BatchCheckRequests.WithLabelValues("error")); got != before+1 {
		t.Errorf("error requests = %v, want %v", got, before+1)
	}
}
