// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package entity

import (
	"fmt"

	"github.com/timoguin/lakekeeper-sub000/internal/schema"
)

// Structural relations. These are written by lifecycle hooks only.
const (
	RelServer                   = "server"
	RelProject                  = "project"
	RelParent                   = "parent"
	RelChild                    = "child"
	RelManagedAccess            = "managed_access"
	RelManagedAccessInheritance = "managed_access_inheritance"
)

// Assignable relations.
const (
	RelAdmin         = "admin"
	RelOperator      = "operator"
	RelProjectAdmin  = "project_admin"
	RelSecurityAdmin = "security_admin"
	RelDataAdmin     = "data_admin"
	RelRoleCreator   = "role_creator"
	RelAssignee      = "assignee"
	RelOwnership     = "ownership"
	RelManageGrants  = "manage_grants"
	RelDescribe      = "describe"
	RelSelect        = "select"
	RelCreate        = "create"
	RelModify        = "modify"
)

// ErrUnknownRelation is wrapped when a relation is not assignable on a type.
var ErrUnknownRelation = fmt.Errorf("%w: relation not assignable", ErrInvalidID)

type grantEntry struct {
	relation string
	grant    string
}

// grantRelations lists, per type and in enumeration order, every assignable
// relation with the relation an actor must hold to grant or revoke it.
var grantRelations = map[schema.TypeName][]grantEntry{
	TypeServer: {
		{RelAdmin, ServerGrantAdmin.Relation()},
		{RelOperator, ServerGrantOperator.Relation()},
	},
	TypeProject: {
		{RelProjectAdmin, ProjectGrantProjectAdmin.Relation()},
		{RelSecurityAdmin, ProjectGrantSecurityAdmin.Relation()},
		{RelDataAdmin, ProjectGrantDataAdmin.Relation()},
		{RelRoleCreator, ProjectGrantRoleCreator.Relation()},
		{RelDescribe, ProjectGrantDescribe.Relation()},
		{RelSelect, ProjectGrantSelect.Relation()},
		{RelCreate, ProjectGrantCreate.Relation()},
		{RelModify, ProjectGrantModify.Relation()},
	},
	TypeRole: {
		{RelAssignee, RoleGrantAssignee.Relation()},
		{RelOwnership, RoleChangeOwnership.Relation()},
	},
	TypeWarehouse: {
		{RelOwnership, WarehouseChangeOwnership.Relation()},
		{RelManageGrants, RelManageGrants},
		{RelDescribe, RelManageGrants},
		{RelSelect, RelManageGrants},
		{RelCreate, RelManageGrants},
		{RelModify, RelManageGrants},
	},
	TypeNamespace: {
		{RelOwnership, NamespaceChangeOwnership.Relation()},
		{RelManageGrants, RelManageGrants},
		{RelDescribe, RelManageGrants},
		{RelSelect, RelManageGrants},
		{RelCreate, RelManageGrants},
		{RelModify, RelManageGrants},
	},
	TypeTable: {
		{RelOwnership, TableChangeOwnership.Relation()},
		{RelManageGrants, RelManageGrants},
		{RelDescribe, RelManageGrants},
		{RelSelect, RelManageGrants},
		{RelModify, RelManageGrants},
	},
	TypeView: {
		{RelOwnership, ViewChangeOwnership.Relation()},
		{RelManageGrants, RelManageGrants},
		{RelDescribe, RelManageGrants},
		{RelModify, RelManageGrants},
	},
}

// GrantRelation returns the relation required on an object of type t to grant
// or revoke rel there.
func GrantRelation(t schema.TypeName, rel string) (string, error) {
	for _, e := range grantRelations[t] {
		if e.relation == rel {
			return e.grant, nil
		}
	}
	return "", fmt.Errorf("%w: %s#%s", ErrUnknownRelation, t, rel)
}

// AssignableRelations lists the relations that may be granted on type t.
func AssignableRelations(t schema.TypeName) []string {
	entries := grantRelations[t]
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.relation
	}
	return out
}

// IsAssignable reports whether rel may be granted on type t.
func IsAssignable(t schema.TypeName, rel string) bool {
	_, err := GrantRelation(t, rel)
	return err == nil
}
