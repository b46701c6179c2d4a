// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/timoguin/lakekeeper-sub000/internal/auth"
	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/check"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
	"github.com/timoguin/lakekeeper-sub000/internal/validation"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"too many checks", fmt.Errorf("wrap: %w", check.ErrTooManyChecks), http.StatusBadRequest, ErrCodeTooManyChecks},
		{"validation", &validation.RequestValidationError{}, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown relation", entity.ErrUnknownRelation, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad assumed role", auth.ErrInvalidAssumedRole, http.StatusBadRequest, ErrCodeBadRequest},
		{"anonymous", authz.ErrAuthenticationRequired, http.StatusUnauthorized, ErrCodeAuthenticationRequired},
		{"expired", auth.ErrExpiredCredentials, http.StatusUnauthorized, ErrCodeAuthenticationRequired},
		{"assumed role grant", authz.ErrGrantRoleWithAssumedRole, http.StatusForbidden, ErrCodeGrantRoleWithAssumedRole},
		{"self assignment", authz.ErrSelfAssignment, http.StatusForbidden, ErrCodeSelfAssignment},
		{"unauthorized", &authz.UnauthorizedError{Relation: "can_drop", Object: "table:x"}, http.StatusForbidden, ErrCodeForbidden},
		{"role not assumable", auth.ErrRoleNotAssumable, http.StatusForbidden, ErrCodeForbidden},
		{"cannot see", &authz.CannotSeeError{Object: "warehouse:x"}, http.StatusNotFound, ErrCodeNotFound},
		{"catalog not found", &catalog.NotFoundError{Kind: "namespace", ID: "x"}, http.StatusNotFound, ErrCodeNotFound},
		{"bootstrapped", authz.ErrAlreadyBootstrapped, http.StatusConflict, ErrCodeConflict},
		{"backend", &tuplestore.BackendError{Op: "check", Err: errors.New("io")}, http.StatusServiceUnavailable, ErrCodeBackendUnavailable},
		{"breaker open", gobreaker.ErrOpenState, http.StatusServiceUnavailable, ErrCodeBackendUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, ErrCodeBackendUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := classify(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}

func TestClassifyHidesExistence(t *testing.T) {
	_, _, hidden := classify(&authz.CannotSeeError{Object: "namespace:secret"})
	_, _, missing := classify(&catalog.NotFoundError{Kind: "namespace", ID: "ghost"})
	if hidden != missing || hidden != notFoundMessage {
		t.Errorf("messages differ: %q vs %q", hidden, missing)
	}
	_, _, internal := classify(errors.New("dsn=secret"))
	if internal != "Internal server error" {
		t.Errorf("internal message leaked: %q", internal)
	}
}
