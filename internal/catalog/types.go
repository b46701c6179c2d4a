// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

// WarehouseStatus is the activation state of a warehouse.
type WarehouseStatus string

const (
	WarehouseActive   WarehouseStatus = "active"
	WarehouseInactive WarehouseStatus = "inactive"
)

// ActiveOnly is the status filter most lookups use.
var ActiveOnly = []WarehouseStatus{WarehouseActive}

// AnyStatus matches every warehouse.
var AnyStatus = []WarehouseStatus{WarehouseActive, WarehouseInactive}

// Warehouse is a warehouse row.
type Warehouse struct {
	ID        entity.WarehouseID
	ProjectID entity.ProjectID
	Name      string
	Status    WarehouseStatus
	Protected bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the warehouse accepts requests.
func (w *Warehouse) Active() bool { return w != nil && w.Status == WarehouseActive }

func statusAllowed(s WarehouseStatus, filter []WarehouseStatus) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == s {
			return true
		}
	}
	return false
}

// NamespaceIdent is the ordered segment path of a namespace.
type NamespaceIdent []string

// ParseNamespaceIdent splits a dotted path. Segments may not be empty.
func ParseNamespaceIdent(s string) (NamespaceIdent, error) {
	ident := NamespaceIdent(strings.Split(s, "."))
	return ident, ident.Validate(0)
}

// Validate rejects empty paths, empty segments, and paths deeper than
// maxDepth. A zero maxDepth skips the depth check.
func (n NamespaceIdent) Validate(maxDepth int) error {
	if len(n) == 0 {
		return fmt.Errorf("%w: empty namespace", ErrInvalidIdentifier)
	}
	for _, seg := range n {
		if seg == "" {
			return fmt.Errorf("%w: empty namespace segment in %q", ErrInvalidIdentifier, n.String())
		}
		if strings.ContainsRune(seg, '\x1f') {
			return fmt.Errorf("%w: control character in namespace segment", ErrInvalidIdentifier)
		}
	}
	if maxDepth > 0 && len(n) > maxDepth {
		return fmt.Errorf("%w: %d > %d", ErrNamespaceDepth, len(n), maxDepth)
	}
	return nil
}

func (n NamespaceIdent) String() string { return strings.Join(n, ".") }

// Key is the case-insensitive uniqueness key of the path.
func (n NamespaceIdent) Key() string {
	return strings.ToLower(strings.Join(n, "\x1f"))
}

// Parent returns the parent path, or nil for a top-level namespace.
func (n NamespaceIdent) Parent() NamespaceIdent {
	if len(n) <= 1 {
		return nil
	}
	return n[:len(n)-1]
}

// Equal compares case-insensitively.
func (n NamespaceIdent) Equal(o NamespaceIdent) bool { return n.Key() == o.Key() }

// Namespace is a namespace row.
type Namespace struct {
	ID          entity.NamespaceID
	WarehouseID entity.WarehouseID
	Ident       NamespaceIdent
	ParentID    *entity.NamespaceID
	Properties  map[string]string
	Protected   bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NamespaceHierarchy is a namespace with its ancestors, nearest first.
type NamespaceHierarchy struct {
	Namespace Namespace
	Parents   []Namespace
}

// Root returns the top-level ancestor, or the namespace itself.
func (h NamespaceHierarchy) Root() Namespace {
	if len(h.Parents) == 0 {
		return h.Namespace
	}
	return h.Parents[len(h.Parents)-1]
}

// BuildHierarchy walks ParentID links through byID. A missing or cyclic
// link stops the walk and reports false.
func BuildHierarchy(ns Namespace, byID map[entity.NamespaceID]Namespace) (NamespaceHierarchy, bool) {
	h := NamespaceHierarchy{Namespace: ns}
	seen := map[entity.NamespaceID]bool{ns.ID: true}
	cur := ns
	for cur.ParentID != nil {
		parent, ok := byID[*cur.ParentID]
		if !ok || seen[parent.ID] {
			return h, false
		}
		seen[parent.ID] = true
		h.Parents = append(h.Parents, parent)
		cur = parent
	}
	return h, true
}

// TabularIdent is a namespace path plus a table or view name.
type TabularIdent struct {
	Namespace NamespaceIdent
	Name      string
}

func (t TabularIdent) String() string { return t.Namespace.String() + "." + t.Name }

// Key is the case-insensitive uniqueness key.
func (t TabularIdent) Key() string { return t.Namespace.Key() + "\x1e" + strings.ToLower(t.Name) }

// TabularState is the lifecycle state of a table or view.
type TabularState string

const (
	TabularActive  TabularState = "active"
	TabularStaged  TabularState = "staged"
	TabularDeleted TabularState = "deleted"
)

// TabularListFlags selects which lifecycle states a lookup returns.
type TabularListFlags struct {
	IncludeActive  bool
	IncludeStaged  bool
	IncludeDeleted bool
}

// OnlyActive returns the default lookup flags.
func OnlyActive() TabularListFlags { return TabularListFlags{IncludeActive: true} }

// AllTabulars includes every state.
func AllTabulars() TabularListFlags {
	return TabularListFlags{IncludeActive: true, IncludeStaged: true, IncludeDeleted: true}
}

func (f TabularListFlags) states() []TabularState {
	var out []TabularState
	if f.IncludeActive {
		out = append(out, TabularActive)
	}
	if f.IncludeStaged {
		out = append(out, TabularStaged)
	}
	if f.IncludeDeleted {
		out = append(out, TabularDeleted)
	}
	return out
}

// Matches reports whether a row in state s passes the flags.
func (f TabularListFlags) Matches(s TabularState) bool {
	switch s {
	case TabularActive:
		return f.IncludeActive
	case TabularStaged:
		return f.IncludeStaged
	case TabularDeleted:
		return f.IncludeDeleted
	}
	return false
}

// TabularInfo is a resolved table or view. WarehouseVersion and
// NamespaceVersion are the versions the row was read at; later reads in the
// same request must observe at least these.
type TabularInfo struct {
	WarehouseID      entity.WarehouseID
	NamespaceID      entity.NamespaceID
	TabularID        uuid.UUID
	Ident            TabularIdent
	Kind             entity.TabularKind
	State            TabularState
	Protected        bool
	WarehouseVersion int64
	NamespaceVersion int64
}

// TableRef returns the compound table key. Only valid for tables.
func (t TabularInfo) TableRef() entity.TableRef {
	return entity.TableRef{Warehouse: t.WarehouseID, Table: entity.TableID{UUID: t.TabularID}}
}

// ViewRef returns the compound view key. Only valid for views.
func (t TabularInfo) ViewRef() entity.ViewRef {
	return entity.ViewRef{Warehouse: t.WarehouseID, View: entity.ViewID{UUID: t.TabularID}}
}

// Object returns the authorization object for the tabular.
func (t TabularInfo) Object() entity.Object {
	if t.Kind == entity.KindView {
		return t.ViewRef()
	}
	return t.TableRef()
}
