// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/timoguin/lakekeeper-sub000/internal/auth"
	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/check"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
	"github.com/timoguin/lakekeeper-sub000/internal/validation"
)

// Error types returned in ErrorModel.Type.
const (
	ErrCodeBadRequest               = "BAD_REQUEST"
	ErrCodeTooManyChecks            = "TOO_MANY_CHECKS"
	ErrCodeValidationFailed         = "VALIDATION_FAILED"
	ErrCodeAuthenticationRequired   = "AUTHENTICATION_REQUIRED"
	ErrCodeForbidden                = "FORBIDDEN"
	ErrCodeGrantRoleWithAssumedRole = "GRANT_ROLE_WITH_ASSUMED_ROLE"
	ErrCodeSelfAssignment           = "SELF_ASSIGNMENT"
	ErrCodeNotFound                 = "NOT_FOUND"
	ErrCodeConflict                 = "CONFLICT"
	ErrCodeInternalError            = "INTERNAL_ERROR"
	ErrCodeBackendUnavailable       = "BACKEND_UNAVAILABLE"
)

// notFoundMessage is shared by absent and invisible objects.
const notFoundMessage = "The requested resource does not exist or is not visible to the caller"

// errBadRequest marks malformed input found by the API layer itself.
var errBadRequest = errors.New("bad request")

// ErrorModel is the body of every failed request.
type ErrorModel struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	RequestID string `json:"request-id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// ErrorResponse wraps ErrorModel.
type ErrorResponse struct {
	Error ErrorModel `json:"error"`
}

// respondJSON writes v as the response body.
func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// classify maps an error to its status, type and client-facing message.
func classify(err error) (int, string, string) {
	var (
		unauthorized *authz.UnauthorizedError
		verr         *validation.RequestValidationError
	)
	switch {
	case errors.Is(err, check.ErrTooManyChecks):
		return http.StatusBadRequest, ErrCodeTooManyChecks, err.Error()
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrCodeValidationFailed, verr.Error()
	case errors.Is(err, errBadRequest),
		errors.Is(err, check.ErrBadRequest),
		errors.Is(err, entity.ErrInvalidID),
		errors.Is(err, authz.ErrInvalidAction),
		errors.Is(err, authz.ErrInvalidObject),
		errors.Is(err, tuplestore.ErrInvalidTuple),
		errors.Is(err, catalog.ErrInvalidIdentifier),
		errors.Is(err, auth.ErrInvalidAssumedRole):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()

	case errors.Is(err, authz.ErrAuthenticationRequired),
		errors.Is(err, auth.ErrNoCredentials),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrExpiredCredentials):
		return http.StatusUnauthorized, ErrCodeAuthenticationRequired, err.Error()

	case errors.Is(err, authz.ErrGrantRoleWithAssumedRole):
		return http.StatusForbidden, ErrCodeGrantRoleWithAssumedRole, err.Error()
	case errors.Is(err, authz.ErrSelfAssignment):
		return http.StatusForbidden, ErrCodeSelfAssignment, err.Error()
	case errors.As(err, &unauthorized), errors.Is(err, auth.ErrRoleNotAssumable):
		return http.StatusForbidden, ErrCodeForbidden, err.Error()

	case authz.IsCannotSee(err), catalog.IsNotFound(err):
		return http.StatusNotFound, ErrCodeNotFound, notFoundMessage

	case errors.Is(err, authz.ErrConflict),
		errors.Is(err, authz.ErrAlreadyBootstrapped),
		errors.Is(err, tuplestore.ErrConcurrentUpdate),
		errors.Is(err, catalog.ErrAlreadyExists):
		return http.StatusConflict, ErrCodeConflict, err.Error()

	case tuplestore.IsBackendError(err),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, tuplestore.ErrAssemble),
		errors.Is(err, check.ErrResultCountMismatch),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrCodeBackendUnavailable, "The authorization backend is unavailable"
	}
	return http.StatusInternalServerError, ErrCodeInternalError, "Internal server error"
}

// writeError renders err. It is the only place errors become statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	requestID := logging.RequestIDFromContext(r.Context())

	event := logging.Ctx(r.Context()).Debug()
	if status >= http.StatusInternalServerError {
		event = logging.Ctx(r.Context()).Error()
	}
	event.Err(err).
		Int("status", status).
		Str("code", code).
		Str("path", r.URL.Path).
		Msg("Request failed")

	resp := ErrorResponse{Error: ErrorModel{Message: message, Type: code, Code: status, RequestID: requestID}}
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		resp.Error.Details = verr.Fields
	}
	respondJSON(w, status, resp)
}
