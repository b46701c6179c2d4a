// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/schema"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

// ProjectCheck is one project action to evaluate.
type ProjectCheck struct {
	Project entity.ProjectID
	Action  entity.ProjectAction
}

// WarehouseCheck is one warehouse action to evaluate.
type WarehouseCheck struct {
	Warehouse entity.WarehouseID
	Action    entity.WarehouseAction
}

// NamespaceCheck is one namespace action to evaluate.
type NamespaceCheck struct {
	Namespace entity.NamespaceID
	Action    entity.NamespaceAction
}

// TableCheck is one table action on a resolved table.
type TableCheck struct {
	Table  catalog.TabularInfo
	Action entity.TableAction
}

// ViewCheck is one view action on a resolved view.
type ViewCheck struct {
	View   catalog.TabularInfo
	Action entity.ViewAction
}

// RoleCheck is one role action to evaluate.
type RoleCheck struct {
	Role   entity.RoleID
	Action entity.RoleAction
}

// pending is a check in type-erased form. Checks that fail a structural
// precondition are marked skip and report false without a tuple query.
type pending struct {
	typ      schema.TypeName
	object   string
	relation string
	skip     bool
}

// AreAllowedServerActions evaluates server actions in order.
func (e *Engine) AreAllowedServerActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, actions []entity.ServerAction) ([]bool, error) {
	checks := make([]pending, len(actions))
	for i, a := range actions {
		checks[i] = pending{typ: entity.TypeServer, object: e.serverID.Object(), relation: a.Relation()}
	}
	return e.batch(ctx, meta, forUser, checks)
}

// AreAllowedProjectActions evaluates project actions in order.
func (e *Engine) AreAllowedProjectActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, items []ProjectCheck) ([]bool, error) {
	checks := make([]pending, len(items))
	for i, it := range items {
		checks[i] = pending{typ: entity.TypeProject, object: it.Project.Object(), relation: it.Action.Relation()}
	}
	return e.batch(ctx, meta, forUser, checks)
}

// AreAllowedWarehouseActions evaluates warehouse actions in order.
func (e *Engine) AreAllowedWarehouseActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, items []WarehouseCheck) ([]bool, error) {
	checks := make([]pending, len(items))
	for i, it := range items {
		checks[i] = pending{typ: entity.TypeWarehouse, object: it.Warehouse.Object(), relation: it.Action.Relation()}
	}
	return e.batch(ctx, meta, forUser, checks)
}

// AreAllowedNamespaceActions evaluates namespace actions inside one resolved
// warehouse. A namespace missing from namespaces, or belonging to another
// warehouse, or any namespace of an inactive warehouse, is not allowed.
func (e *Engine) AreAllowedNamespaceActions(
	ctx context.Context,
	meta entity.RequestMetadata,
	forUser *entity.UserOrRole,
	warehouse *catalog.Warehouse,
	namespaces map[entity.NamespaceID]catalog.NamespaceHierarchy,
	items []NamespaceCheck,
) ([]bool, error) {
	checks := make([]pending, len(items))
	for i, it := range items {
		h, ok := namespaces[it.Namespace]
		checks[i] = pending{
			typ:      entity.TypeNamespace,
			object:   it.Namespace.Object(),
			relation: it.Action.Relation(),
			skip:     !ok || !warehouse.Active() || h.Namespace.WarehouseID != warehouse.ID,
		}
	}
	return e.batch(ctx, meta, forUser, checks)
}

// AreAllowedTableActions evaluates table actions inside one resolved
// warehouse, with the same preconditions as namespaces.
func (e *Engine) AreAllowedTableActions(
	ctx context.Context,
	meta entity.RequestMetadata,
	forUser *entity.UserOrRole,
	warehouse *catalog.Warehouse,
	namespaces map[entity.NamespaceID]catalog.NamespaceHierarchy,
	items []TableCheck,
) ([]bool, error) {
	checks := make([]pending, len(items))
	for i, it := range items {
		checks[i] = pending{
			typ:      entity.TypeTable,
			object:   it.Table.TableRef().Object(),
			relation: it.Action.Relation(),
			skip:     !tabularVisible(it.Table, entity.KindTable, warehouse, namespaces),
		}
	}
	return e.batch(ctx, meta, forUser, checks)
}

// AreAllowedViewActions evaluates view actions inside one resolved warehouse.
func (e *Engine) AreAllowedViewActions(
	ctx context.Context,
	meta entity.RequestMetadata,
	forUser *entity.UserOrRole,
	warehouse *catalog.Warehouse,
	namespaces map[entity.NamespaceID]catalog.NamespaceHierarchy,
	items []ViewCheck,
) ([]bool, error) {
	checks := make([]pending, len(items))
	for i, it := range items {
		checks[i] = pending{
			typ:      entity.TypeView,
			object:   it.View.ViewRef().Object(),
			relation: it.Action.Relation(),
			skip:     !tabularVisible(it.View, entity.KindView, warehouse, namespaces),
		}
	}
	return e.batch(ctx, meta, forUser, checks)
}

// AreAllowedRoleActions evaluates role actions in order.
func (e *Engine) AreAllowedRoleActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, items []RoleCheck) ([]bool, error) {
	checks := make([]pending, len(items))
	for i, it := range items {
		checks[i] = pending{typ: entity.TypeRole, object: it.Role.Object(), relation: it.Action.Relation()}
	}
	return e.batch(ctx, meta, forUser, checks)
}

func tabularVisible(t catalog.TabularInfo, kind entity.TabularKind, wh *catalog.Warehouse, namespaces map[entity.NamespaceID]catalog.NamespaceHierarchy) bool {
	if t.Kind != kind || !wh.Active() || t.WarehouseID != wh.ID {
		return false
	}
	h, ok := namespaces[t.NamespaceID]
	return ok && h.Namespace.WarehouseID == wh.ID
}

// batch evaluates checks with one BatchCheck, preserving order. When forUser
// names someone other than the actor, the actor first needs
// can_read_assignments on every distinct object.
func (e *Engine) batch(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, checks []pending) ([]bool, error) {
	start := time.Now()
	defer func() { ObserveDecisionDuration("batch", time.Since(start)) }()

	results := make([]bool, len(checks))
	if len(checks) == 0 {
		return results, nil
	}

	forUser = normalizeFor(meta.Actor, forUser)
	if forUser != nil {
		if meta.Actor.IsAnonymous() {
			return nil, ErrAuthenticationRequired
		}
		if err := e.requireReadAssignments(ctx, meta.Actor.Subject(), checks); err != nil {
			return nil, err
		}
	}

	var (
		tuples []tuplestore.TupleKey
		slots  []int
	)
	for i, c := range checks {
		if c.skip {
			continue
		}
		if !isActionOf(c.typ, c.relation) {
			return nil, fmt.Errorf("%w: %s on %s", ErrInvalidAction, c.relation, c.typ)
		}
		var subject string
		switch {
		case forUser != nil:
			subject = forUser.Subject()
		case meta.Actor.IsAnonymous() && !e.anon.Permits(c.typ, c.relation):
			continue
		default:
			subject = meta.Actor.Subject()
		}
		tuples = append(tuples, tupleKey(subject, c.relation, c.object))
		slots = append(slots, i)
	}

	if len(tuples) > 0 {
		out, err := e.client.BatchCheck(ctx, tuples)
		if err != nil {
			RecordAuthzError(err)
			return nil, fmt.Errorf("batch check: %w", err)
		}
		if len(out) != len(tuples) {
			return nil, fmt.Errorf("%w: %d results for %d checks", tuplestore.ErrAssemble, len(out), len(tuples))
		}
		for j, ok := range out {
			results[slots[j]] = ok
		}
	}

	for i, c := range checks {
		outcome := Allowed
		if !results[i] {
			outcome = Denied
		}
		RecordDecision(string(c.typ), c.relation, outcome)
	}
	return results, nil
}

func (e *Engine) requireReadAssignments(ctx context.Context, actorSubject string, checks []pending) error {
	var (
		objects []string
		seen    = make(map[string]bool)
	)
	for _, c := range checks {
		if c.skip || seen[c.object] {
			continue
		}
		seen[c.object] = true
		objects = append(objects, c.object)
	}
	if len(objects) == 0 {
		return nil
	}

	tuples := make([]tuplestore.TupleKey, len(objects))
	for i, obj := range objects {
		tuples[i] = tupleKey(actorSubject, relReadAssignments, obj)
	}
	out, err := e.client.BatchCheck(ctx, tuples)
	if err != nil {
		return fmt.Errorf("check read assignments: %w", err)
	}
	for i, ok := range out {
		if !ok {
			return &UnauthorizedError{Relation: relReadAssignments, Object: objects[i]}
		}
	}
	return nil
}
