// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

// Package check answers batches of permission questions. Each batch is
// grouped by target kind and warehouse, resolved against the catalog with
// read-your-writes version floors, and evaluated with one authorization call
// per group. Results come back in request order.
package check

import (
	"errors"

	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

// MaxChecks bounds the size of a single request.
const MaxChecks = 1000

var (
	// ErrTooManyChecks is returned before any lookup when a request holds
	// more than MaxChecks items.
	ErrTooManyChecks = errors.New("too many checks in one request")

	// ErrBadRequest is returned for checks that cannot be evaluated as sent.
	ErrBadRequest = errors.New("invalid check request")

	// ErrResultCountMismatch means the authorizer answered a group with the
	// wrong number of results.
	ErrResultCountMismatch = errors.New("authorizer returned an unexpected number of results")
)

// Kind names the target type of an operation.
type Kind string

const (
	KindServer    Kind = "server"
	KindProject   Kind = "project"
	KindWarehouse Kind = "warehouse"
	KindNamespace Kind = "namespace"
	KindTable     Kind = "table"
	KindView      Kind = "view"
)

// Operation is one action on one target. It is implemented by ServerOp,
// ProjectOp, WarehouseOp, NamespaceOp, TableOp and ViewOp.
type Operation interface {
	Kind() Kind
}

type ServerOp struct {
	Action entity.ServerAction
}

// ProjectOp targets Project, or the request's preferred project when nil.
type ProjectOp struct {
	Action  entity.ProjectAction
	Project *entity.ProjectID
}

type WarehouseOp struct {
	Action    entity.WarehouseAction
	Warehouse entity.WarehouseID
}

// NamespaceOp addresses a namespace by ID or, when ID is nil, by Ident.
type NamespaceOp struct {
	Action    entity.NamespaceAction
	Warehouse entity.WarehouseID
	ID        *entity.NamespaceID
	Ident     catalog.NamespaceIdent
}

// TabularRef addresses a table or view by ID or, when ID is nil, by name.
type TabularRef struct {
	Warehouse entity.WarehouseID
	ID        *uuid.UUID
	Ident     catalog.TabularIdent
}

type TableOp struct {
	Action entity.TableAction
	Table  TabularRef
}

type ViewOp struct {
	Action entity.ViewAction
	View   TabularRef
}

func (ServerOp) Kind() Kind    { return KindServer }
func (ProjectOp) Kind() Kind   { return KindProject }
func (WarehouseOp) Kind() Kind { return KindWarehouse }
func (NamespaceOp) Kind() Kind { return KindNamespace }
func (TableOp) Kind() Kind     { return KindTable }
func (ViewOp) Kind() Kind      { return KindView }

// CheckItem is one question. Identity, when set to someone other than the
// caller, asks on that principal's behalf.
type CheckItem struct {
	ID        *string
	Identity  *entity.UserOrRole
	Operation Operation
}

// CheckRequest is a batch of checks. With ErrorOnNotFound, a missing
// warehouse, namespace or tabular fails the whole batch instead of
// answering false.
type CheckRequest struct {
	Checks          []CheckItem `json:"checks"`
	ErrorOnNotFound bool        `json:"error-on-not-found"`
}

// CheckResult echoes the item id next to its answer.
type CheckResult struct {
	ID      *string `json:"id,omitempty"`
	Allowed bool    `json:"allowed"`
}

// CheckResponse holds one result per request item, in request order.
type CheckResponse struct {
	Results []CheckResult `json:"results"`
}
