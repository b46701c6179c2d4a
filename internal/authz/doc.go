// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

// Package authz is the authorization engine for catalog entities.
//
// The Engine translates entity-level questions into tuple store queries:
//
//	Handler -> Engine.RequireAction -> tuplestore.Client.Check
//	BPRP    -> Engine.AreAllowed*Actions -> tuplestore.Client.BatchCheck
//
// # Decisions
//
// Point checks return a Decision with one of three outcomes. Denied turns
// into CannotSee when the actor also lacks the type's visibility action
// (can_get_metadata, or can_read on roles), so that callers answer 404 and
// do not leak existence:
//
//	d, err := engine.RequireAction(ctx, meta, nsID, entity.NamespaceCreateTable)
//	if err != nil {
//	    return err
//	}
//	if err := d.Err(); err != nil {
//	    return err // *UnauthorizedError or *CannotSeeError
//	}
//
// # Assignments
//
// CheckedWrite is the only way to write assignment tuples from a request.
// For every touched relation the actor must hold that relation's grant
// relation on the same object (entity.GrantRelation). Ownership of a
// warehouse, namespace, table or view implies manage_grants unless managed
// access is in effect there or on an ancestor.
//
// # Anonymous Access
//
// Anonymous actors are refused with ErrAuthenticationRequired unless the
// casbin AnonymousPolicy lists the (type, relation) pair. Permitted checks
// run as the public wildcard user:*.
//
// # Lifecycle
//
// Create and delete hooks keep structural tuples (parent, child, project,
// server, ownership) in step with the metadata store. They run after the
// metadata commit, are idempotent, and never roll the commit back.
//
// # Audit
//
// AuditLogger writes decisions to the log asynchronously; the events package
// feeds it. Metrics are recorded for every decision.
package authz
