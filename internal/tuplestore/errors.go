// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package tuplestore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAssemble means a batch response lacked a correlation id.
	ErrAssemble = errors.New("batch check response incomplete")

	// ErrConcurrentUpdate is returned when a write transaction lost a race.
	// The Client retries it.
	ErrConcurrentUpdate = errors.New("concurrent tuple update")

	// ErrInvalidTuple is returned for malformed tuples or subjects the model
	// does not allow on the relation.
	ErrInvalidTuple = errors.New("invalid tuple")

	// ErrDepthExceeded is returned when evaluation follows too many hops.
	ErrDepthExceeded = errors.New("resolution depth exceeded")
)

// BackendError wraps transport and storage failures. These are retryable by
// the caller.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("tuple store %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsBackendError reports whether err is or wraps a *BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

func backendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsBackendError(err) || isDomainError(err) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrConcurrentUpdate) ||
		errors.Is(err, ErrInvalidTuple) ||
		errors.Is(err, ErrDepthExceeded) ||
		errors.Is(err, ErrAssemble)
}
