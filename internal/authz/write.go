// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/schema"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

// CheckedWrite applies assignment writes and deletes on object. The actor
// must hold the grant relation of every touched relation on that object.
// Either everything is written or nothing is.
func (e *Engine) CheckedWrite(ctx context.Context, meta entity.RequestMetadata, object entity.Object, writes, deletes []entity.Assignment) (err error) {
	typ := object.ObjectType()
	defer func() { RecordAssignmentWrite(string(typ), len(writes), len(deletes), err) }()

	actor := meta.Actor
	if actor.IsAnonymous() {
		return ErrAuthenticationRequired
	}
	if actor.Kind == entity.ActorRole && grantNeedsPrincipal(typ) {
		return ErrGrantRoleWithAssumedRole
	}
	if len(writes) == 0 && len(deletes) == 0 {
		return nil
	}

	obj := object.Object()
	grants, err := grantRelationsFor(typ, writes, deletes)
	if err != nil {
		return err
	}
	if err := e.requireGrants(ctx, actor.Subject(), obj, grants); err != nil {
		return err
	}

	if typ == entity.TypeRole {
		for _, w := range writes {
			if w.Relation == entity.RelAssignee && w.Subject.IsRole() && w.Subject.Role.Object() == obj {
				return ErrSelfAssignment
			}
		}
	}

	wt, err := assignmentTuples(obj, writes)
	if err != nil {
		return err
	}
	dt, err := assignmentTuples(obj, deletes)
	if err != nil {
		return err
	}
	if err := e.client.Write(ctx, wt, dt); err != nil {
		if errors.Is(err, tuplestore.ErrConcurrentUpdate) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("write assignments on %s: %w", obj, err)
	}

	logging.Ctx(ctx).Info().
		Str("actor", actor.String()).
		Str("object", obj).
		Int("writes", len(writes)).
		Int("deletes", len(deletes)).
		Msg("Assignments updated")
	return nil
}

// grantNeedsPrincipal lists the types whose grant relations cannot be
// evaluated for an assumed role.
func grantNeedsPrincipal(t schema.TypeName) bool {
	return t == entity.TypeNamespace || t == entity.TypeTable || t == entity.TypeView
}

// grantRelationsFor returns the distinct grant relations, in first-seen order.
func grantRelationsFor(t schema.TypeName, lists ...[]entity.Assignment) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, a := range list {
			g, err := entity.GrantRelation(t, a.Relation)
			if err != nil {
				return nil, err
			}
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	return out, nil
}

func (e *Engine) requireGrants(ctx context.Context, subject, obj string, grants []string) error {
	tuples := make([]tuplestore.TupleKey, len(grants))
	for i, g := range grants {
		tuples[i] = tupleKey(subject, g, obj)
	}
	out, err := e.client.BatchCheck(ctx, tuples)
	if err != nil {
		return fmt.Errorf("check grant relations on %s: %w", obj, err)
	}
	for i, ok := range out {
		if !ok {
			return &UnauthorizedError{Relation: grants[i], Object: obj}
		}
	}
	return nil
}

func assignmentTuples(obj string, list []entity.Assignment) ([]tuplestore.TupleKey, error) {
	out := make([]tuplestore.TupleKey, 0, len(list))
	for _, a := range list {
		if a.Subject.IsZero() {
			return nil, fmt.Errorf("%w: assignment %s without subject", entity.ErrInvalidID, a.Relation)
		}
		out = append(out, tupleKey(a.Subject.Subject(), a.Relation, obj))
	}
	return out, nil
}

// NamespaceManagedAccess is the managed-access state of a namespace.
type NamespaceManagedAccess struct {
	// ManagedAccess is set on the namespace itself.
	ManagedAccess bool `json:"managed-access"`
	// Inherited is true when the namespace or any ancestor (including the
	// warehouse) has managed access.
	Inherited bool `json:"managed-access-inherited"`
}

func managedAccessTuples(obj string) []tuplestore.TupleKey {
	return []tuplestore.TupleKey{
		tupleKey(string(entity.TypeUser)+":*", entity.RelManagedAccess, obj),
		tupleKey(string(entity.TypeRole)+":*", entity.RelManagedAccess, obj),
	}
}

func managedAccessTarget(object entity.Object) (Action, error) {
	switch object.ObjectType() {
	case entity.TypeWarehouse:
		return entity.WarehouseSetManagedAccess, nil
	case entity.TypeNamespace:
		return entity.NamespaceSetManagedAccess, nil
	}
	return nil, fmt.Errorf("%w: managed access on %s", ErrInvalidObject, object.ObjectType())
}

// managedAccessState returns which of the wildcard pair is stored.
func (e *Engine) managedAccessState(ctx context.Context, obj string) (map[tuplestore.TupleKey]bool, error) {
	stored, err := e.client.ReadAll(ctx, tuplestore.ReadKey{Object: obj, Relation: entity.RelManagedAccess})
	if err != nil {
		return nil, fmt.Errorf("read managed access of %s: %w", obj, err)
	}
	present := make(map[tuplestore.TupleKey]bool, len(stored))
	for _, t := range stored {
		present[t] = true
	}
	return present, nil
}

// GetManagedAccess reports whether managed access is set directly on a
// warehouse or namespace. Either wildcard tuple counts: a half-written pair
// already restricts the subjects it names, and the next SetManagedAccess
// completes or clears it.
func (e *Engine) GetManagedAccess(ctx context.Context, object entity.Object) (bool, error) {
	if _, err := managedAccessTarget(object); err != nil {
		return false, err
	}
	present, err := e.managedAccessState(ctx, object.Object())
	if err != nil {
		return false, err
	}
	for _, t := range managedAccessTuples(object.Object()) {
		if present[t] {
			return true, nil
		}
	}
	return false, nil
}

// SetManagedAccess enables or disables managed access. The wildcard pair is
// always written or removed together, and nothing is written when the state
// already matches.
func (e *Engine) SetManagedAccess(ctx context.Context, meta entity.RequestMetadata, object entity.Object, enabled bool) error {
	action, err := managedAccessTarget(object)
	if err != nil {
		return err
	}
	if err := e.Require(ctx, meta, object, action); err != nil {
		return err
	}

	obj := object.Object()
	present, err := e.managedAccessState(ctx, obj)
	if err != nil {
		return err
	}
	var writes, deletes []tuplestore.TupleKey
	for _, t := range managedAccessTuples(obj) {
		switch {
		case enabled && !present[t]:
			writes = append(writes, t)
		case !enabled && present[t]:
			deletes = append(deletes, t)
		}
	}
	if len(writes) == 0 && len(deletes) == 0 {
		return nil
	}

	if err := e.client.Write(ctx, writes, deletes); err != nil {
		if errors.Is(err, tuplestore.ErrConcurrentUpdate) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("set managed access on %s: %w", obj, err)
	}
	RecordManagedAccessChange(string(object.ObjectType()), enabled)
	logging.Ctx(ctx).Info().
		Str("actor", meta.Actor.String()).
		Str("object", obj).
		Bool("managed_access", enabled).
		Msg("Managed access changed")
	return nil
}

// GetNamespaceManagedAccess returns the direct and inherited managed-access
// state of a namespace.
func (e *Engine) GetNamespaceManagedAccess(ctx context.Context, ns entity.NamespaceID) (NamespaceManagedAccess, error) {
	direct, err := e.GetManagedAccess(ctx, ns)
	if err != nil {
		return NamespaceManagedAccess{}, err
	}
	inherited, err := e.client.Check(ctx, tupleKey(string(entity.TypeUser)+":*", entity.RelManagedAccessInheritance, ns.Object()))
	if err != nil {
		return NamespaceManagedAccess{}, fmt.Errorf("check managed access inheritance of %s: %w", ns.Object(), err)
	}
	return NamespaceManagedAccess{ManagedAccess: direct, Inherited: inherited}, nil
}
