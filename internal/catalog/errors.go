// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrProtected is returned when dropping a protected entity without force.
	ErrProtected = errors.New("entity is protected")

	// ErrAlreadyExists is returned on a uniqueness violation.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidIdentifier is returned for malformed namespace or tabular names.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNamespaceDepth is returned when a namespace path is too deep.
	ErrNamespaceDepth = errors.New("namespace exceeds maximum depth")

	// ErrNamespaceNotEmpty is returned when dropping a namespace that still
	// has children without recursive.
	ErrNamespaceNotEmpty = errors.New("namespace is not empty")

	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("transaction already finished")

	// ErrReadOnlyTx is returned when a write runs on a read transaction.
	ErrReadOnlyTx = errors.New("read-only transaction")

	// ErrConflict is returned when a concurrent transaction changed the same
	// rows. The caller may retry.
	ErrConflict = errors.New("concurrent catalog update")
)

// NotFoundError reports an absent entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
