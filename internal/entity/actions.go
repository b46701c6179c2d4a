// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package entity

import (
	"fmt"
	"slices"

	"github.com/timoguin/lakekeeper-sub000/internal/schema"
)

// Action is a checkable operation on one object type. The string value is the
// snake_case API name; the tuple relation is "can_" + name.
type Action interface {
	~string
	Relation() string
}

// ErrUnknownAction is wrapped when an action name does not belong to its type.
var ErrUnknownAction = fmt.Errorf("%w: unknown action", ErrInvalidID)

func parseAction[A ~string](text []byte, all []A, dst *A) error {
	a := A(text)
	if !slices.Contains(all, a) {
		return fmt.Errorf("%w %q", ErrUnknownAction, string(text))
	}
	*dst = a
	return nil
}

func relationsOf[A Action](all []A) []string {
	out := make([]string, len(all))
	for i, a := range all {
		out[i] = a.Relation()
	}
	return out
}

type ServerAction string

const (
	ServerCreateProject   ServerAction = "create_project"
	ServerUpdateUsers     ServerAction = "update_users"
	ServerDeleteUsers     ServerAction = "delete_users"
	ServerListUsers       ServerAction = "list_users"
	ServerProvisionUsers  ServerAction = "provision_users"
	ServerReadAssignments ServerAction = "read_assignments"
	ServerGrantAdmin      ServerAction = "grant_admin"
	ServerGrantOperator   ServerAction = "grant_operator"
	ServerListAllProjects ServerAction = "list_all_projects"
)

var serverActions = []ServerAction{
	ServerCreateProject, ServerUpdateUsers, ServerDeleteUsers, ServerListUsers,
	ServerProvisionUsers, ServerReadAssignments, ServerGrantAdmin, ServerGrantOperator,
	ServerListAllProjects,
}

func (a ServerAction) Relation() string { return "can_" + string(a) }

func (a *ServerAction) UnmarshalText(b []byte) error { return parseAction(b, serverActions, a) }

// ServerActions returns every server action in enumeration order.
func ServerActions() []ServerAction { return slices.Clone(serverActions) }

type ProjectAction string

const (
	ProjectCreateWarehouse       ProjectAction = "create_warehouse"
	ProjectDelete                ProjectAction = "delete"
	ProjectRename                ProjectAction = "rename"
	ProjectGetMetadata           ProjectAction = "get_metadata"
	ProjectListWarehouses        ProjectAction = "list_warehouses"
	ProjectIncludeInList         ProjectAction = "include_in_list"
	ProjectCreateRole            ProjectAction = "create_role"
	ProjectListRoles             ProjectAction = "list_roles"
	ProjectSearchRoles           ProjectAction = "search_roles"
	ProjectReadAssignments       ProjectAction = "read_assignments"
	ProjectGrantRoleCreator      ProjectAction = "grant_role_creator"
	ProjectGrantCreate           ProjectAction = "grant_create"
	ProjectGrantDescribe         ProjectAction = "grant_describe"
	ProjectGrantModify           ProjectAction = "grant_modify"
	ProjectGrantSelect           ProjectAction = "grant_select"
	ProjectGrantProjectAdmin     ProjectAction = "grant_project_admin"
	ProjectGrantSecurityAdmin    ProjectAction = "grant_security_admin"
	ProjectGrantDataAdmin        ProjectAction = "grant_data_admin"
	ProjectGetEndpointStatistics ProjectAction = "get_endpoint_statistics"
)

var projectActions = []ProjectAction{
	ProjectCreateWarehouse, ProjectDelete, ProjectRename, ProjectGetMetadata,
	ProjectListWarehouses, ProjectIncludeInList, ProjectCreateRole, ProjectListRoles,
	ProjectSearchRoles, ProjectReadAssignments, ProjectGrantRoleCreator, ProjectGrantCreate,
	ProjectGrantDescribe, ProjectGrantModify, ProjectGrantSelect, ProjectGrantProjectAdmin,
	ProjectGrantSecurityAdmin, ProjectGrantDataAdmin, ProjectGetEndpointStatistics,
}

func (a ProjectAction) Relation() string { return "can_" + string(a) }

func (a *ProjectAction) UnmarshalText(b []byte) error { return parseAction(b, projectActions, a) }

// ProjectActions returns every project action in enumeration order.
func ProjectActions() []ProjectAction { return slices.Clone(projectActions) }

type WarehouseAction string

const (
	WarehouseCreateNamespace         WarehouseAction = "create_namespace"
	WarehouseDelete                  WarehouseAction = "delete"
	WarehouseUpdateStorage           WarehouseAction = "update_storage"
	WarehouseUpdateStorageCredential WarehouseAction = "update_storage_credential"
	WarehouseGetMetadata             WarehouseAction = "get_metadata"
	WarehouseGetConfig               WarehouseAction = "get_config"
	WarehouseListNamespaces          WarehouseAction = "list_namespaces"
	WarehouseListEverything          WarehouseAction = "list_everything"
	WarehouseModifySoftDeletion      WarehouseAction = "modify_soft_deletion"
	WarehouseUse                     WarehouseAction = "use"
	WarehouseIncludeInList           WarehouseAction = "include_in_list"
	WarehouseDeactivate              WarehouseAction = "deactivate"
	WarehouseActivate                WarehouseAction = "activate"
	WarehouseRename                  WarehouseAction = "rename"
	WarehouseListDeletedTabulars     WarehouseAction = "list_deleted_tabulars"
	WarehouseReadAssignments         WarehouseAction = "read_assignments"
	WarehouseGrantCreate             WarehouseAction = "grant_create"
	WarehouseGrantDescribe           WarehouseAction = "grant_describe"
	WarehouseGrantModify             WarehouseAction = "grant_modify"
	WarehouseGrantSelect             WarehouseAction = "grant_select"
	WarehouseGrantManageGrants       WarehouseAction = "grant_manage_grants"
	WarehouseChangeOwnership         WarehouseAction = "change_ownership"
	WarehouseSetManagedAccess        WarehouseAction = "set_managed_access"
	WarehouseGetTaskQueueConfig      WarehouseAction = "get_task_queue_config"
	WarehouseModifyTaskQueueConfig   WarehouseAction = "modify_task_queue_config"
	WarehouseGetAllTasks             WarehouseAction = "get_all_tasks"
	WarehouseControlAllTasks         WarehouseAction = "control_all_tasks"
	WarehouseSetProtection           WarehouseAction = "set_protection"
	WarehouseGetEndpointStatistics   WarehouseAction = "get_endpoint_statistics"
)

var warehouseActions = []WarehouseAction{
	WarehouseCreateNamespace, WarehouseDelete, WarehouseUpdateStorage,
	WarehouseUpdateStorageCredential, WarehouseGetMetadata, WarehouseGetConfig,
	WarehouseListNamespaces, WarehouseListEverything, WarehouseModifySoftDeletion,
	WarehouseUse, WarehouseIncludeInList, WarehouseDeactivate, WarehouseActivate,
	WarehouseRename, WarehouseListDeletedTabulars, WarehouseReadAssignments,
	WarehouseGrantCreate, WarehouseGrantDescribe, WarehouseGrantModify, WarehouseGrantSelect,
	WarehouseGrantManageGrants, WarehouseChangeOwnership, WarehouseSetManagedAccess,
	WarehouseGetTaskQueueConfig, WarehouseModifyTaskQueueConfig, WarehouseGetAllTasks,
	WarehouseControlAllTasks, WarehouseSetProtection, WarehouseGetEndpointStatistics,
}

func (a WarehouseAction) Relation() string { return "can_" + string(a) }

func (a *WarehouseAction) UnmarshalText(b []byte) error { return parseAction(b, warehouseActions, a) }

// WarehouseActions returns every warehouse action in enumeration order.
func WarehouseActions() []WarehouseAction { return slices.Clone(warehouseActions) }

type NamespaceAction string

const (
	NamespaceCreateTable       NamespaceAction = "create_table"
	NamespaceCreateView        NamespaceAction = "create_view"
	NamespaceCreateNamespace   NamespaceAction = "create_namespace"
	NamespaceDelete            NamespaceAction = "delete"
	NamespaceUpdateProperties  NamespaceAction = "update_properties"
	NamespaceGetMetadata       NamespaceAction = "get_metadata"
	NamespaceListTables        NamespaceAction = "list_tables"
	NamespaceListViews         NamespaceAction = "list_views"
	NamespaceListNamespaces    NamespaceAction = "list_namespaces"
	NamespaceListEverything    NamespaceAction = "list_everything"
	NamespaceIncludeInList     NamespaceAction = "include_in_list"
	NamespaceReadAssignments   NamespaceAction = "read_assignments"
	NamespaceGrantCreate       NamespaceAction = "grant_create"
	NamespaceGrantDescribe     NamespaceAction = "grant_describe"
	NamespaceGrantModify       NamespaceAction = "grant_modify"
	NamespaceGrantSelect       NamespaceAction = "grant_select"
	NamespaceGrantManageGrants NamespaceAction = "grant_manage_grants"
	NamespaceChangeOwnership   NamespaceAction = "change_ownership"
	NamespaceSetManagedAccess  NamespaceAction = "set_managed_access"
	NamespaceSetProtection     NamespaceAction = "set_protection"
)

var namespaceActions = []NamespaceAction{
	NamespaceCreateTable, NamespaceCreateView, NamespaceCreateNamespace, NamespaceDelete,
	NamespaceUpdateProperties, NamespaceGetMetadata, NamespaceListTables, NamespaceListViews,
	NamespaceListNamespaces, NamespaceListEverything, NamespaceIncludeInList,
	NamespaceReadAssignments, NamespaceGrantCreate, NamespaceGrantDescribe,
	NamespaceGrantModify, NamespaceGrantSelect, NamespaceGrantManageGrants,
	NamespaceChangeOwnership, NamespaceSetManagedAccess, NamespaceSetProtection,
}

func (a NamespaceAction) Relation() string { return "can_" + string(a) }

func (a *NamespaceAction) UnmarshalText(b []byte) error { return parseAction(b, namespaceActions, a) }

// NamespaceActions returns every namespace action in enumeration order.
func NamespaceActions() []NamespaceAction { return slices.Clone(namespaceActions) }

type TableAction string

const (
	TableDrop              TableAction = "drop"
	TableWriteData         TableAction = "write_data"
	TableReadData          TableAction = "read_data"
	TableGetMetadata       TableAction = "get_metadata"
	TableCommit            TableAction = "commit"
	TableRename            TableAction = "rename"
	TableIncludeInList     TableAction = "include_in_list"
	TableReadAssignments   TableAction = "read_assignments"
	TableGrantDescribe     TableAction = "grant_describe"
	TableGrantSelect       TableAction = "grant_select"
	TableGrantModify       TableAction = "grant_modify"
	TableGrantManageGrants TableAction = "grant_manage_grants"
	TableChangeOwnership   TableAction = "change_ownership"
	TableUndrop            TableAction = "undrop"
	TableGetTasks          TableAction = "get_tasks"
	TableControlTasks      TableAction = "control_tasks"
	TableSetProtection     TableAction = "set_protection"
)

var tableActions = []TableAction{
	TableDrop, TableWriteData, TableReadData, TableGetMetadata, TableCommit, TableRename,
	TableIncludeInList, TableReadAssignments, TableGrantDescribe, TableGrantSelect,
	TableGrantModify, TableGrantManageGrants, TableChangeOwnership, TableUndrop,
	TableGetTasks, TableControlTasks, TableSetProtection,
}

func (a TableAction) Relation() string { return "can_" + string(a) }

func (a *TableAction) UnmarshalText(b []byte) error { return parseAction(b, tableActions, a) }

// TableActions returns every table action in enumeration order.
func TableActions() []TableAction { return slices.Clone(tableActions) }

type ViewAction string

const (
	ViewDrop              ViewAction = "drop"
	ViewGetMetadata       ViewAction = "get_metadata"
	ViewCommit            ViewAction = "commit"
	ViewRename            ViewAction = "rename"
	ViewIncludeInList     ViewAction = "include_in_list"
	ViewReadAssignments   ViewAction = "read_assignments"
	ViewGrantDescribe     ViewAction = "grant_describe"
	ViewGrantModify       ViewAction = "grant_modify"
	ViewGrantManageGrants ViewAction = "grant_manage_grants"
	ViewChangeOwnership   ViewAction = "change_ownership"
	ViewUndrop            ViewAction = "undrop"
	ViewGetTasks          ViewAction = "get_tasks"
	ViewControlTasks      ViewAction = "control_tasks"
	ViewSetProtection     ViewAction = "set_protection"
)

var viewActions = []ViewAction{
	ViewDrop, ViewGetMetadata, ViewCommit, ViewRename, ViewIncludeInList,
	ViewReadAssignments, ViewGrantDescribe, ViewGrantModify, ViewGrantManageGrants,
	ViewChangeOwnership, ViewUndrop, ViewGetTasks, ViewControlTasks, ViewSetProtection,
}

func (a ViewAction) Relation() string { return "can_" + string(a) }

func (a *ViewAction) UnmarshalText(b []byte) error { return parseAction(b, viewActions, a) }

// ViewActions returns every view action in enumeration order.
func ViewActions() []ViewAction { return slices.Clone(viewActions) }

type RoleAction string

const (
	RoleAssume          RoleAction = "assume"
	RoleGrantAssignee   RoleAction = "grant_assignee"
	RoleChangeOwnership RoleAction = "change_ownership"
	RoleDelete          RoleAction = "delete"
	RoleUpdate          RoleAction = "update"
	RoleRead            RoleAction = "read"
	RoleReadAssignments RoleAction = "read_assignments"
)

var roleActions = []RoleAction{
	RoleAssume, RoleGrantAssignee, RoleChangeOwnership, RoleDelete, RoleUpdate,
	RoleRead, RoleReadAssignments,
}

func (a RoleAction) Relation() string { return "can_" + string(a) }

func (a *RoleAction) UnmarshalText(b []byte) error { return parseAction(b, roleActions, a) }

// RoleActions returns every role action in enumeration order.
func RoleActions() []RoleAction { return slices.Clone(roleActions) }

// ActionRelations lists the action relations of an object type in
// enumeration order. Unknown types yield nil.
func ActionRelations(t schema.TypeName) []string {
	switch t {
	case TypeServer:
		return relationsOf(serverActions)
	case TypeProject:
		return relationsOf(projectActions)
	case TypeWarehouse:
		return relationsOf(warehouseActions)
	case TypeNamespace:
		return relationsOf(namespaceActions)
	case TypeTable:
		return relationsOf(tableActions)
	case TypeView:
		return relationsOf(viewActions)
	case TypeRole:
		return relationsOf(roleActions)
	}
	return nil
}

// VisibilityRelation is the action an actor needs to learn that an object
// exists. The server has none.
func VisibilityRelation(t schema.TypeName) (string, bool) {
	switch t {
	case TypeServer:
		return "", false
	case TypeRole:
		return RoleRead.Relation(), true
	default:
		return "can_get_metadata", true
	}
}
