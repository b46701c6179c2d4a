// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"errors"
	"fmt"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

var (
	// ErrAuthenticationRequired is returned when an anonymous actor attempts
	// an operation that needs an identity.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrSelfAssignment is returned when a role would become its own assignee.
	ErrSelfAssignment = errors.New("a role cannot be assigned to itself")

	// ErrGrantRoleWithAssumedRole is returned for assignment writes on
	// namespaces, tables and views by an actor that assumed a role. The
	// caller may retry as the principal.
	ErrGrantRoleWithAssumedRole = errors.New("assignments on this object cannot be written while assuming a role")

	// ErrConflict is returned when a write lost concurrent updates on every
	// retry.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrInvalidAction is returned when an action does not belong to the
	// object's type.
	ErrInvalidAction = errors.New("action not defined for object type")

	// ErrInvalidObject is returned when an operation does not support the
	// object's type.
	ErrInvalidObject = errors.New("operation not supported for object type")

	// ErrAlreadyBootstrapped is returned by Bootstrap once a server admin exists.
	ErrAlreadyBootstrapped = errors.New("server already bootstrapped")
)

// UnauthorizedError means the actor lacks Relation on Object.
type UnauthorizedError struct {
	Relation string
	Object   string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("forbidden: missing %s on %s", e.Relation, e.Object)
}

// CannotSeeError is a denial on an object the actor may not know exists.
// It surfaces as not found.
type CannotSeeError struct {
	Object string
}

func (e *CannotSeeError) Error() string {
	return fmt.Sprintf("%s not found", e.Object)
}

// IsUnauthorized reports whether err is or wraps an *UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// IsCannotSee reports whether err is or wraps a *CannotSeeError.
func IsCannotSee(err error) bool {
	var ce *CannotSeeError
	return errors.As(err, &ce)
}

// errorType is a low-cardinality metric label for err.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		return "authentication_required"
	case IsUnauthorized(err):
		return "unauthorized"
	case IsCannotSee(err):
		return "cannot_see"
	case errors.Is(err, ErrSelfAssignment):
		return "self_assignment"
	case errors.Is(err, ErrGrantRoleWithAssumedRole):
		return "assumed_role"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case tuplestore.IsBackendError(err):
		return "backend"
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrInvalidObject),
		errors.Is(err, entity.ErrInvalidID), errors.Is(err, tuplestore.ErrInvalidTuple):
		return "invalid"
	}
	return "other"
}
