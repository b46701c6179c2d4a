// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"

	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

func getCounterValue(counter prometheus.Counter) float64 {
	var m io_prometheus_client.Metric
	if err := counter.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func TestRecordDecision(t *testing.T) {
	allowed := AuthzDecisionsTotal.WithLabelValues("table", "can_drop", "allowed")
	denied := AuthzDeniedTotal.WithLabelValues("table", "can_drop")
	beforeAllowed, beforeDenied := getCounterValue(allowed), getCounterValue(denied)

	RecordDecision("table", "can_drop", Allowed)
	RecordDecision("table", "can_drop", CannotSee)

	if getCounterValue(allowed) != beforeAllowed+1 {
		t.Error("allowed decision not counted")
	}
	if getCounterValue(denied) != beforeDenied+1 {
		t.Error("cannot-see decision not counted as denial")
	}
}

func TestRecordAssignmentWrite(t *testing.T) {
	ok := AuthzAssignmentWritesTotal.WithLabelValues("role", "ok")
	unauthorized := AuthzAssignmentWritesTotal.WithLabelValues("role", "unauthorized")
	written := AuthzAssignmentTuples.WithLabelValues("write")
	before := []float64{getCounterValue(ok), getCounterValue(unauthorized), getCounterValue(written)}

	RecordAssignmentWrite("role", 3, 1, nil)
	RecordAssignmentWrite("role", 5, 0, &UnauthorizedError{Relation: "can_grant_assignee", Object: "role:x"})

	if getCounterValue(ok) != before[0]+1 || getCounterValue(unauthorized) != before[1]+1 {
		t.Error("outcomes not counted")
	}
	if getCounterValue(written) != before[2]+3 {
		t.Error("failed writes must not count tuples")
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrAuthenticationRequired, "authentication_required"},
		{fmt.Errorf("wrapped: %w", &UnauthorizedError{Relation: "r", Object: "o"}), "unauthorized"},
		{&CannotSeeError{Object: "o"}, "cannot_see"},
		{ErrSelfAssignment, "self_assignment"},
		{ErrGrantRoleWithAssumedRole, "assumed_role"},
		{ErrConflict, "conflict"},
		{&tuplestore.BackendError{Op: "check", Err: errors.New("boom")}, "backend"},
		{ErrInvalidAction, "invalid"},
		{errors.New("other"), "other"},
	}
	for _, tt := range tests {
		if got := errorType(tt.err); got != tt.want {
			t.Errorf("errorType(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
