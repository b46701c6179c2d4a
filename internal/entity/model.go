// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package entity

import (
	"sync"

	s "github.com/timoguin/lakekeeper-sub000/internal/schema"
)

var (
	modelOnce sync.Once
	model     *s.Schema
)

// CatalogModel returns the authorization model of the catalog. The result is
// shared and must not be mutated.
func CatalogModel() *s.Schema {
	modelOnce.Do(func() { model = buildCatalogModel() })
	return model
}

func buildCatalogModel() *s.Schema {
	d := func() s.Userset {
		return s.Direct(s.Ref(TypeUser), s.RefWithRelation(TypeRole, RelAssignee))
	}
	c := s.Computed
	can := func(rel s.RelationName, us ...s.Userset) *s.Relation {
		return s.Define(rel, us...)
	}
	actions := func(target s.RelationName, names ...string) []*s.Relation {
		out := make([]*s.Relation, len(names))
		for i, n := range names {
			out[i] = can(s.RelationName("can_"+n), c(target))
		}
		return out
	}
	typ := func(name s.TypeName, groups ...[]*s.Relation) *s.ObjectType {
		var all []*s.Relation
		for _, g := range groups {
			all = append(all, g...)
		}
		return s.NewType(name, all...)
	}
	rels := func(r ...*s.Relation) []*s.Relation { return r }

	server := typ(TypeServer,
		rels(
			can(RelAdmin, d()),
			can(RelOperator, d(), c(RelAdmin)),
		),
		actions(RelAdmin, "create_project", "update_users", "delete_users",
			"provision_users", "grant_admin", "grant_operator"),
		actions(RelOperator, "list_users", "read_assignments", "list_all_projects"),
	)

	project := typ(TypeProject,
		rels(
			can(RelServer, s.Direct(s.Ref(TypeServer))),
			can(RelProjectAdmin, d(), s.Arrow(RelServer, RelAdmin)),
			can(RelSecurityAdmin, d(), c(RelProjectAdmin)),
			can(RelDataAdmin, d(), c(RelProjectAdmin)),
			can(RelRoleCreator, d(), c(RelSecurityAdmin)),
			can(RelModify, d(), c(RelDataAdmin)),
			can(RelCreate, d(), c(RelModify)),
			can(RelSelect, d(), c(RelModify)),
			can(RelDescribe, d(), c(RelSelect), c(RelCreate), c(RelSecurityAdmin)),
		),
		actions(RelDataAdmin, "create_warehouse"),
		actions(RelProjectAdmin, "delete", "rename", "get_endpoint_statistics",
			"grant_project_admin", "grant_data_admin"),
		actions(RelDescribe, "get_metadata", "list_warehouses", "include_in_list",
			"list_roles", "search_roles"),
		actions(RelRoleCreator, "create_role"),
		actions(RelSecurityAdmin, "read_assignments", "grant_security_admin", "grant_role_creator"),
		rels(
			can("can_grant_describe", c(RelSecurityAdmin), c(RelDataAdmin)),
			can("can_grant_select", c(RelSecurityAdmin), c(RelDataAdmin)),
			can("can_grant_create", c(RelSecurityAdmin), c(RelDataAdmin)),
			can("can_grant_modify", c(RelSecurityAdmin), c(RelDataAdmin)),
		),
	)

	role := typ(TypeRole,
		rels(
			can(RelProject, s.Direct(s.Ref(TypeProject))),
			can(RelAssignee, d()),
			can(RelOwnership, d()),
			can("can_assume", c(RelAssignee)),
			can("can_grant_assignee", c(RelOwnership), s.Arrow(RelProject, RelSecurityAdmin)),
			can("can_read", c(RelAssignee), c("can_grant_assignee"), s.Arrow(RelProject, RelDescribe)),
		),
		actions("can_grant_assignee", "change_ownership", "delete", "update", "read_assignments"),
	)

	managedAccess := s.Direct(s.Wildcard(TypeUser), s.Wildcard(TypeRole))
	ownerGrants := s.ButNot(c(RelOwnership), c(RelManagedAccessInheritance))

	warehouse := typ(TypeWarehouse,
		rels(
			can(RelProject, s.Direct(s.Ref(TypeProject))),
			can(RelManagedAccess, managedAccess),
			can(RelManagedAccessInheritance, c(RelManagedAccess)),
			can(RelOwnership, d()),
			can(RelManageGrants, d(), ownerGrants, s.Arrow(RelProject, RelSecurityAdmin)),
			can(RelModify, d(), c(RelOwnership), s.Arrow(RelProject, RelModify)),
			can(RelCreate, d(), c(RelModify), s.Arrow(RelProject, RelCreate)),
			can(RelSelect, d(), c(RelModify), s.Arrow(RelProject, RelSelect)),
			can(RelDescribe, d(), c(RelSelect), c(RelCreate), c(RelManageGrants),
				s.Arrow(RelProject, RelDescribe)),
			can("can_read_assignments", c(RelManageGrants), c(RelOwnership)),
		),
		actions(RelCreate, "create_namespace"),
		actions(RelModify, "delete", "update_storage", "update_storage_credential",
			"modify_soft_deletion", "deactivate", "activate", "rename",
			"modify_task_queue_config", "control_all_tasks", "set_protection"),
		actions(RelDescribe, "get_metadata", "get_config", "list_namespaces", "list_everything",
			"use", "include_in_list", "list_deleted_tabulars", "get_task_queue_config",
			"get_all_tasks", "get_endpoint_statistics"),
		actions(RelManageGrants, "grant_create", "grant_describe", "grant_modify", "grant_select",
			"grant_manage_grants", "change_ownership", "set_managed_access"),
	)

	namespace := typ(TypeNamespace,
		rels(
			can(RelParent, s.Direct(s.Ref(TypeWarehouse), s.Ref(TypeNamespace))),
			can(RelChild, s.Direct(s.Ref(TypeNamespace), s.Ref(TypeTable), s.Ref(TypeView))),
			can(RelManagedAccess, managedAccess),
			can(RelManagedAccessInheritance, c(RelManagedAccess),
				s.Arrow(RelParent, RelManagedAccessInheritance)),
			can(RelOwnership, d()),
			can(RelManageGrants, d(), ownerGrants, s.Arrow(RelParent, RelManageGrants)),
			can(RelModify, d(), c(RelOwnership), s.Arrow(RelParent, RelModify)),
			can(RelCreate, d(), c(RelModify), s.Arrow(RelParent, RelCreate)),
			can(RelSelect, d(), c(RelModify), s.Arrow(RelParent, RelSelect)),
			can(RelDescribe, d(), c(RelSelect), c(RelCreate), c(RelManageGrants),
				s.Arrow(RelParent, RelDescribe)),
			can("can_read_assignments", c(RelManageGrants), c(RelOwnership)),
		),
		actions(RelCreate, "create_table", "create_view", "create_namespace"),
		actions(RelModify, "delete", "update_properties", "set_protection"),
		actions(RelDescribe, "get_metadata", "list_tables", "list_views", "list_namespaces",
			"list_everything", "include_in_list"),
		actions(RelManageGrants, "grant_create", "grant_describe", "grant_modify", "grant_select",
			"grant_manage_grants", "change_ownership", "set_managed_access"),
	)

	tabular := func(name s.TypeName, withSelect bool) *s.ObjectType {
		base := rels(
			can(RelParent, s.Direct(s.Ref(TypeNamespace))),
			can(RelManagedAccessInheritance, s.Arrow(RelParent, RelManagedAccessInheritance)),
			can(RelOwnership, d()),
			can(RelManageGrants, d(), ownerGrants, s.Arrow(RelParent, RelManageGrants)),
			can(RelModify, d(), c(RelOwnership), s.Arrow(RelParent, RelModify)),
			can("can_read_assignments", c(RelManageGrants), c(RelOwnership)),
		)
		modifyActions := []string{"drop", "commit", "rename", "undrop", "control_tasks", "set_protection"}
		grantActions := []string{"grant_describe", "grant_modify", "grant_manage_grants", "change_ownership"}
		if withSelect {
			base = append(base,
				can(RelSelect, d(), c(RelModify), s.Arrow(RelParent, RelSelect)),
				can(RelDescribe, d(), c(RelSelect), c(RelManageGrants), s.Arrow(RelParent, RelDescribe)),
			)
			modifyActions = append(modifyActions, "write_data")
			grantActions = append(grantActions, "grant_select")
		} else {
			base = append(base,
				can(RelDescribe, d(), c(RelModify), c(RelManageGrants), s.Arrow(RelParent, RelDescribe)))
		}
		groups := [][]*s.Relation{
			base,
			actions(RelModify, modifyActions...),
			actions(RelDescribe, "get_metadata", "include_in_list", "get_tasks"),
			actions(RelManageGrants, grantActions...),
		}
		if withSelect {
			groups = append(groups, actions(RelSelect, "read_data"))
		}
		return typ(name, groups...)
	}

	return s.New(
		s.NewType(TypeUser),
		server,
		project,
		role,
		warehouse,
		namespace,
		tabular(TypeTable, true),
		tabular(TypeView, false),
	)
}
