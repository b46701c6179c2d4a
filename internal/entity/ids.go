// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package entity

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/schema"
)

// Object type names as they appear in tuple strings.
const (
	TypeUser      schema.TypeName = "user"
	TypeRole      schema.TypeName = "role"
	TypeServer    schema.TypeName = "server"
	TypeProject   schema.TypeName = "project"
	TypeWarehouse schema.TypeName = "warehouse"
	TypeNamespace schema.TypeName = "namespace"
	TypeTable     schema.TypeName = "lakekeeper_table"
	TypeView      schema.TypeName = "lakekeeper_view"
)

// ErrInvalidID is returned when an identifier or tuple string cannot be parsed.
var ErrInvalidID = errors.New("invalid identifier")

// Object is anything that has a stable tuple-string form.
type Object interface {
	Object() string
	ObjectType() schema.TypeName
}

// ServerID identifies the deployment.
type ServerID struct{ uuid.UUID }

// ProjectID identifies a project.
type ProjectID struct{ uuid.UUID }

// WarehouseID identifies a warehouse.
type WarehouseID struct{ uuid.UUID }

// NamespaceID identifies a namespace.
type NamespaceID struct{ uuid.UUID }

// TableID identifies a table within its warehouse.
type TableID struct{ uuid.UUID }

// ViewID identifies a view within its warehouse.
type ViewID struct{ uuid.UUID }

// RoleID identifies a role.
type RoleID struct{ uuid.UUID }

// UserID is the compound IdP subject, e.g. "oidc~6f1d".
type UserID string

func newV7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

func NewProjectID() ProjectID     { return ProjectID{newV7()} }
func NewWarehouseID() WarehouseID { return WarehouseID{newV7()} }
func NewNamespaceID() NamespaceID { return NamespaceID{newV7()} }
func NewTableID() TableID         { return TableID{newV7()} }
func NewViewID() ViewID           { return ViewID{newV7()} }
func NewRoleID() RoleID           { return RoleID{newV7()} }

func parseUUID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidID, kind, s, err)
	}
	return id, nil
}

// ParseProjectID parses a project UUID.
func ParseProjectID(s string) (ProjectID, error) {
	id, err := parseUUID("project", s)
	return ProjectID{id}, err
}

// ParseWarehouseID parses a warehouse UUID.
func ParseWarehouseID(s string) (WarehouseID, error) {
	id, err := parseUUID("warehouse", s)
	return WarehouseID{id}, err
}

// ParseNamespaceID parses a namespace UUID.
func ParseNamespaceID(s string) (NamespaceID, error) {
	id, err := parseUUID("namespace", s)
	return NamespaceID{id}, err
}

// ParseTableID parses a table UUID.
func ParseTableID(s string) (TableID, error) {
	id, err := parseUUID("table", s)
	return TableID{id}, err
}

// ParseViewID parses a view UUID.
func ParseViewID(s string) (ViewID, error) {
	id, err := parseUUID("view", s)
	return ViewID{id}, err
}

// ParseRoleID parses a role UUID.
func ParseRoleID(s string) (RoleID, error) {
	id, err := parseUUID("role", s)
	return RoleID{id}, err
}

// ParseUserID validates an IdP subject.
func ParseUserID(s string) (UserID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidID)
	}
	return UserID(s), nil
}

func (id ServerID) Object() string    { return string(TypeServer) + ":" + id.String() }
func (id ProjectID) Object() string   { return string(TypeProject) + ":" + id.String() }
func (id WarehouseID) Object() string { return string(TypeWarehouse) + ":" + id.String() }
func (id NamespaceID) Object() string { return string(TypeNamespace) + ":" + id.String() }
func (id RoleID) Object() string      { return string(TypeRole) + ":" + id.String() }
func (id UserID) Object() string      { return string(TypeUser) + ":" + url.QueryEscape(string(id)) }

func (ServerID) ObjectType() schema.TypeName    { return TypeServer }
func (ProjectID) ObjectType() schema.TypeName   { return TypeProject }
func (WarehouseID) ObjectType() schema.TypeName { return TypeWarehouse }
func (NamespaceID) ObjectType() schema.TypeName { return TypeNamespace }
func (RoleID) ObjectType() schema.TypeName      { return TypeRole }
func (UserID) ObjectType() schema.TypeName      { return TypeUser }

// TableRef is the compound key of a table: tabular ids are only unique within
// a warehouse.
type TableRef struct {
	Warehouse WarehouseID
	Table     TableID
}

// ViewRef is the compound key of a view.
type ViewRef struct {
	Warehouse WarehouseID
	View      ViewID
}

func (r TableRef) Object() string {
	return string(TypeTable) + ":" + r.Warehouse.String() + "/" + r.Table.String()
}

func (r ViewRef) Object() string {
	return string(TypeView) + ":" + r.Warehouse.String() + "/" + r.View.String()
}

func (TableRef) ObjectType() schema.TypeName { return TypeTable }
func (ViewRef) ObjectType() schema.TypeName  { return TypeView }

// ObjectRef is a parsed tuple object string.
type ObjectRef struct {
	Type schema.TypeName
	ID   string
}

func (o ObjectRef) String() string {
	return string(o.Type) + ":" + o.ID
}

// IsWildcard reports whether the reference is type:*.
func (o ObjectRef) IsWildcard() bool {
	return o.ID == "*"
}

// ParseObject splits "type:id" into its parts. Only the first colon separates
// type from id.
func ParseObject(s string) (ObjectRef, error) {
	t, id, ok := strings.Cut(s, ":")
	if !ok || t == "" || id == "" {
		return ObjectRef{}, fmt.Errorf("%w: object %q", ErrInvalidID, s)
	}
	return ObjectRef{Type: schema.TypeName(t), ID: id}, nil
}

// ParseTableRef reverses TableRef.Object.
func ParseTableRef(s string) (TableRef, error) {
	wh, tab, err := parseTabularObject(TypeTable, s)
	return TableRef{Warehouse: WarehouseID{wh}, Table: TableID{tab}}, err
}

// ParseViewRef reverses ViewRef.Object.
func ParseViewRef(s string) (ViewRef, error) {
	wh, v, err := parseTabularObject(TypeView, s)
	return ViewRef{Warehouse: WarehouseID{wh}, View: ViewID{v}}, err
}

func parseTabularObject(t schema.TypeName, s string) (uuid.UUID, uuid.UUID, error) {
	ref, err := ParseObject(s)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if ref.Type != t {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidID, t, ref.Type)
	}
	whPart, tabPart, ok := strings.Cut(ref.ID, "/")
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: tabular %q lacks warehouse prefix", ErrInvalidID, s)
	}
	wh, err := parseUUID("warehouse", whPart)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	tab, err := parseUUID(string(t), tabPart)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return wh, tab, nil
}

// TabularKind distinguishes tables from views.
type TabularKind int

const (
	KindTable TabularKind = iota
	KindView
)

func (k TabularKind) String() string {
	if k == KindView {
		return "view"
	}
	return "table"
}
