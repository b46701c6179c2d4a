// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/schema"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

// relReadAssignments is defined on every object type.
const relReadAssignments = "can_read_assignments"

// TupleClient is the tuple store surface the engine uses.
// *tuplestore.Client implements it.
type TupleClient interface {
	Check(ctx context.Context, tuple tuplestore.TupleKey) (bool, error)
	BatchCheck(ctx context.Context, tuples []tuplestore.TupleKey) ([]bool, error)
	ReadAll(ctx context.Context, key tuplestore.ReadKey) ([]tuplestore.TupleKey, error)
	Write(ctx context.Context, writes, deletes []tuplestore.TupleKey) error
}

// Action is any typed action from the entity package.
type Action interface {
	Relation() string
}

// Options configures an Engine.
type Options struct {
	// Anonymous lists what unauthenticated callers may check. Nil permits
	// nothing.
	Anonymous *AnonymousPolicy

	// HookRetry tunes the background retry of failed lifecycle hooks. Zero
	// values take the defaults.
	HookRetry HookRetryConfig
}

// Engine answers authorization questions about catalog entities and writes
// assignment tuples under the grant discipline.
type Engine struct {
	client   TupleClient
	serverID entity.ServerID
	anon     *AnonymousPolicy
	retries  *HookRetrier
}

// NewEngine creates an engine for one server.
func NewEngine(client TupleClient, serverID entity.ServerID, opts Options) *Engine {
	return &Engine{
		client:   client,
		serverID: serverID,
		anon:     opts.Anonymous,
		retries:  NewHookRetrier(opts.HookRetry),
	}
}

// HookRetrier returns the queue of failed lifecycle hooks. Run it under a
// supervisor so queued graph updates are re-driven.
func (e *Engine) HookRetrier() *HookRetrier { return e.retries }

// ServerID returns the deployment's server id.
func (e *Engine) ServerID() entity.ServerID { return e.serverID }

// Server returns the server object.
func (e *Engine) Server() entity.Object { return e.serverID }

func tupleKey(user, relation, object string) tuplestore.TupleKey {
	return tuplestore.TupleKey{User: user, Relation: relation, Object: object}
}

func isActionOf(t schema.TypeName, relation string) bool {
	return slices.Contains(entity.ActionRelations(t), relation)
}

// subjectFor returns the tuple user that checks relation on type t for the
// actor. Anonymous actors are limited to the anonymous policy.
func (e *Engine) subjectFor(actor entity.Actor, t schema.TypeName, relation string) (string, error) {
	if !actor.IsAnonymous() {
		return actor.Subject(), nil
	}
	if e.anon.Permits(t, relation) {
		return actor.Subject(), nil
	}
	return "", ErrAuthenticationRequired
}

// RequireAction checks one action on one object for the request's actor.
// A denial on an object the actor may not see is reported as CannotSee.
func (e *Engine) RequireAction(ctx context.Context, meta entity.RequestMetadata, object entity.Object, action Action) (Decision, error) {
	start := time.Now()
	defer func() { ObserveDecisionDuration("point", time.Since(start)) }()

	typ := object.ObjectType()
	rel := action.Relation()
	obj := object.Object()
	if !isActionOf(typ, rel) {
		return Decision{}, fmt.Errorf("%w: %s on %s", ErrInvalidAction, rel, typ)
	}

	subject, err := e.subjectFor(meta.Actor, typ, rel)
	if err != nil {
		RecordAuthzError(err)
		return Decision{}, err
	}

	ok, err := e.client.Check(ctx, tupleKey(subject, rel, obj))
	if err != nil {
		RecordAuthzError(err)
		return Decision{}, fmt.Errorf("check %s on %s: %w", rel, obj, err)
	}

	d := Decision{Outcome: Allowed, Object: obj, Relation: rel}
	if !ok {
		d.Outcome, err = e.deniedOutcome(ctx, subject, typ, rel, obj)
		if err != nil {
			return Decision{}, err
		}
	}
	RecordDecision(string(typ), rel, d.Outcome)

	logging.Ctx(ctx).Debug().
		Str("actor", meta.Actor.String()).
		Str("object", obj).
		Str("relation", rel).
		Str("outcome", d.Outcome.String()).
		Msg("Authorization decision")
	return d, nil
}

// deniedOutcome distinguishes Denied from CannotSee.
func (e *Engine) deniedOutcome(ctx context.Context, subject string, typ schema.TypeName, rel, obj string) (Outcome, error) {
	vis, ok := entity.VisibilityRelation(typ)
	if !ok {
		return Denied, nil
	}
	if vis == rel {
		return CannotSee, nil
	}
	visible, err := e.client.Check(ctx, tupleKey(subject, vis, obj))
	if err != nil {
		return Denied, fmt.Errorf("check visibility of %s: %w", obj, err)
	}
	if visible {
		return Denied, nil
	}
	return CannotSee, nil
}

// Require is RequireAction folded into a single error.
func (e *Engine) Require(ctx context.Context, meta entity.RequestMetadata, object entity.Object, action Action) error {
	d, err := e.RequireAction(ctx, meta, object, action)
	if err != nil {
		return err
	}
	return d.Err()
}

// GetAllowedActions returns the action names (e.g. "create_table") that the
// actor, or forPrincipal when set, holds on object, in enumeration order.
// Introspecting another principal requires can_read_assignments.
func (e *Engine) GetAllowedActions(ctx context.Context, meta entity.RequestMetadata, object entity.Object, forPrincipal *entity.UserOrRole) ([]string, error) {
	if meta.Actor.IsAnonymous() {
		return []string{}, nil
	}
	forPrincipal = normalizeFor(meta.Actor, forPrincipal)

	subject := meta.Actor.Subject()
	if forPrincipal != nil {
		if err := e.Require(ctx, meta, object, readAssignments{}); err != nil {
			return nil, err
		}
		subject = forPrincipal.Subject()
	}

	relations := entity.ActionRelations(object.ObjectType())
	obj := object.Object()
	tuples := make([]tuplestore.TupleKey, len(relations))
	for i, rel := range relations {
		tuples[i] = tupleKey(subject, rel, obj)
	}
	results, err := e.client.BatchCheck(ctx, tuples)
	if err != nil {
		return nil, fmt.Errorf("list allowed actions on %s: %w", obj, err)
	}

	allowed := make([]string, 0, len(relations))
	for i, ok := range results {
		if ok {
			allowed = append(allowed, strings.TrimPrefix(relations[i], "can_"))
		}
	}
	return allowed, nil
}

// GetRelations lists the direct assignments on object, optionally limited to
// the given relations. It requires can_read_assignments.
func (e *Engine) GetRelations(ctx context.Context, meta entity.RequestMetadata, object entity.Object, relations []string) ([]entity.Assignment, error) {
	if err := e.Require(ctx, meta, object, readAssignments{}); err != nil {
		return nil, err
	}
	typ := object.ObjectType()
	for _, rel := range relations {
		if !entity.IsAssignable(typ, rel) {
			return nil, fmt.Errorf("%w: %s#%s", entity.ErrUnknownRelation, typ, rel)
		}
	}

	tuples, err := e.client.ReadAll(ctx, tuplestore.ReadKey{Object: object.Object()})
	if err != nil {
		return nil, fmt.Errorf("read assignments of %s: %w", object.Object(), err)
	}

	out := make([]entity.Assignment, 0, len(tuples))
	for _, t := range tuples {
		if !entity.IsAssignable(typ, t.Relation) {
			continue
		}
		if len(relations) > 0 && !slices.Contains(relations, t.Relation) {
			continue
		}
		a, err := entity.AssignmentFromTuple(t.Relation, t.User)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("tuple", t.String()).Msg("Skipping unparsable assignment")
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// readAssignments is can_read_assignments for any type.
type readAssignments struct{}

func (readAssignments) Relation() string { return relReadAssignments }

// normalizeFor drops an introspection target that is the actor itself.
func normalizeFor(actor entity.Actor, forUser *entity.UserOrRole) *entity.UserOrRole {
	if forUser == nil || forUser.IsZero() {
		return nil
	}
	if self, ok := actor.AsUserOrRole(); ok && self == *forUser {
		return nil
	}
	return forUser
}
