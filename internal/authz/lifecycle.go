// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"context"
	"fmt"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

// Lifecycle hooks run after the metadata store committed the matching
// change. They are idempotent. A failed graph update is logged, queued on
// the engine's HookRetrier and returned; the committed row is never rolled
// back and the caller is not expected to retry.

// CreateProject links a new project to the server and makes the actor its
// project admin.
func (e *Engine) CreateProject(ctx context.Context, meta entity.RequestMetadata, project entity.ProjectID) error {
	obj := project.Object()
	writes := []tuplestore.TupleKey{tupleKey(e.serverID.Object(), entity.RelServer, obj)}
	writes = appendOwner(writes, meta.Actor, entity.RelProjectAdmin, obj)
	return e.runHook(ctx, "create_project", obj, func(ctx context.Context) error {
		return e.client.Write(ctx, writes, nil)
	})
}

// DeleteProject removes every tuple on the project and every edge that
// points at it.
func (e *Engine) DeleteProject(ctx context.Context, project entity.ProjectID) error {
	return e.deleteObject(ctx, "delete_project", project.Object())
}

// CreateRole links a role to its project and makes the actor its owner.
func (e *Engine) CreateRole(ctx context.Context, meta entity.RequestMetadata, role entity.RoleID, project entity.ProjectID) error {
	obj := role.Object()
	writes := []tuplestore.TupleKey{tupleKey(project.Object(), entity.RelProject, obj)}
	writes = appendOwner(writes, meta.Actor, entity.RelOwnership, obj)
	return e.runHook(ctx, "create_role", obj, func(ctx context.Context) error {
		return e.client.Write(ctx, writes, nil)
	})
}

// DeleteRole removes the role and every grant made to its assignees.
func (e *Engine) DeleteRole(ctx context.Context, role entity.RoleID) error {
	return e.deleteObject(ctx, "delete_role", role.Object(), entity.ForRole(role).Subject())
}

// CreateWarehouse links a warehouse to its project and makes the actor its
// owner.
func (e *Engine) CreateWarehouse(ctx context.Context, meta entity.RequestMetadata, warehouse entity.WarehouseID, project entity.ProjectID) error {
	obj := warehouse.Object()
	writes := []tuplestore.TupleKey{tupleKey(project.Object(), entity.RelProject, obj)}
	writes = appendOwner(writes, meta.Actor, entity.RelOwnership, obj)
	return e.runHook(ctx, "create_warehouse", obj, func(ctx context.Context) error {
		return e.client.Write(ctx, writes, nil)
	})
}

// DeleteWarehouse removes the warehouse tuples. Descendants lose inherited
// rights with the parent edge; their own tuples go with their delete hooks.
func (e *Engine) DeleteWarehouse(ctx context.Context, warehouse entity.WarehouseID) error {
	return e.deleteObject(ctx, "delete_warehouse", warehouse.Object())
}

// CreateNamespace links a namespace under a warehouse or a parent namespace.
func (e *Engine) CreateNamespace(ctx context.Context, meta entity.RequestMetadata, ns entity.NamespaceID, parent entity.Object) error {
	obj := ns.Object()
	writes := []tuplestore.TupleKey{tupleKey(parent.Object(), entity.RelParent, obj)}
	switch parent.ObjectType() {
	case entity.TypeNamespace:
		writes = append(writes, tupleKey(obj, entity.RelChild, parent.Object()))
	case entity.TypeWarehouse:
	default:
		return fmt.Errorf("%w: namespace parent %s", ErrInvalidObject, parent.ObjectType())
	}
	writes = appendOwner(writes, meta.Actor, entity.RelOwnership, obj)
	return e.runHook(ctx, "create_namespace", obj, func(ctx context.Context) error {
		return e.client.Write(ctx, writes, nil)
	})
}

// DeleteNamespace removes the namespace tuples including the parent's child
// edge.
func (e *Engine) DeleteNamespace(ctx context.Context, ns entity.NamespaceID) error {
	return e.deleteObject(ctx, "delete_namespace", ns.Object())
}

// CreateTable links a table to its namespace and makes the actor its owner.
func (e *Engine) CreateTable(ctx context.Context, meta entity.RequestMetadata, table entity.TableRef, ns entity.NamespaceID) error {
	return e.createTabular(ctx, meta, "create_table", table, ns)
}

// DeleteTable removes the table tuples.
func (e *Engine) DeleteTable(ctx context.Context, table entity.TableRef) error {
	return e.deleteObject(ctx, "delete_table", table.Object())
}

// CreateView links a view to its namespace and makes the actor its owner.
func (e *Engine) CreateView(ctx context.Context, meta entity.RequestMetadata, view entity.ViewRef, ns entity.NamespaceID) error {
	return e.createTabular(ctx, meta, "create_view", view, ns)
}

// DeleteView removes the view tuples.
func (e *Engine) DeleteView(ctx context.Context, view entity.ViewRef) error {
	return e.deleteObject(ctx, "delete_view", view.Object())
}

func (e *Engine) createTabular(ctx context.Context, meta entity.RequestMetadata, hook string, tabular entity.Object, ns entity.NamespaceID) error {
	obj := tabular.Object()
	writes := []tuplestore.TupleKey{
		tupleKey(ns.Object(), entity.RelParent, obj),
		tupleKey(obj, entity.RelChild, ns.Object()),
	}
	writes = appendOwner(writes, meta.Actor, entity.RelOwnership, obj)
	return e.runHook(ctx, hook, obj, func(ctx context.Context) error {
		return e.client.Write(ctx, writes, nil)
	})
}

// Bootstrap makes user the first server admin. It fails once any admin
// exists.
func (e *Engine) Bootstrap(ctx context.Context, user entity.UserID) error {
	server := e.serverID.Object()
	admins, err := e.client.ReadAll(ctx, tuplestore.ReadKey{Object: server, Relation: entity.RelAdmin})
	if err != nil {
		return fmt.Errorf("read server admins: %w", err)
	}
	if len(admins) > 0 {
		return ErrAlreadyBootstrapped
	}
	err = e.client.Write(ctx, []tuplestore.TupleKey{tupleKey(user.Object(), entity.RelAdmin, server)}, nil)
	RecordLifecycleHook("bootstrap", err)
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", server, err)
	}
	return nil
}

// appendOwner adds the owning tuple for the actor. Anonymous creators own
// nothing.
func appendOwner(writes []tuplestore.TupleKey, actor entity.Actor, relation, obj string) []tuplestore.TupleKey {
	owner, ok := actor.AsUserOrRole()
	if !ok {
		return writes
	}
	return append(writes, tupleKey(owner.Subject(), relation, obj))
}

// deleteObject removes all tuples on obj and all tuples whose user is obj or
// one of the extra usersets.
func (e *Engine) deleteObject(ctx context.Context, hook, obj string, extraUsers ...string) error {
	return e.runHook(ctx, hook, obj, func(ctx context.Context) error {
		deletes, err := e.client.ReadAll(ctx, tuplestore.ReadKey{Object: obj})
		if err != nil {
			return err
		}
		for _, user := range append([]string{obj}, extraUsers...) {
			incoming, err := e.client.ReadAll(ctx, tuplestore.ReadKey{User: user})
			if err != nil {
				return err
			}
			deletes = append(deletes, incoming...)
		}
		if len(deletes) == 0 {
			return nil
		}
		return e.client.Write(ctx, nil, dedupe(deletes))
	})
}

func dedupe(tuples []tuplestore.TupleKey) []tuplestore.TupleKey {
	seen := make(map[tuplestore.TupleKey]bool, len(tuples))
	out := tuples[:0]
	for _, t := range tuples {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// runHook applies a graph update. fn must only use the context it is given:
// a failed update is re-run later by the HookRetrier, after the request
// context is gone.
func (e *Engine) runHook(ctx context.Context, hook, obj string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	RecordLifecycleHook(hook, err)
	if err == nil {
		e.retries.forget(obj)
		return nil
	}

	event := logging.Ctx(ctx).Error().
		Err(err).
		Str("hook", hook).
		Str("object", obj)
	if retryable(err) {
		e.retries.enqueue(hook, obj, fn, err)
		event.Msg("Authorization graph update failed; metadata change stays committed, queued for retry")
	} else {
		event.Msg("Authorization graph update rejected; metadata change stays committed")
	}
	return fmt.Errorf("%s %s: %w", hook, obj, err)
}
