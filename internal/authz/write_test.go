// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"errors"
	"testing"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

func assignmentSet(list []entity.Assignment) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, a := range list {
		out[a.Relation+"@"+a.Subject.Subject()] = true
	}
	return out
}

func TestCheckedWriteRoleAssignees(t *testing.T) {
	f := newFixture(t, Options{})
	r1, r2 := entity.NewRoleID(), entity.NewRoleID()
	f.must(f.engine.CreateRole(f.ctx, meta("u"), r1, f.project))
	f.must(f.engine.CreateRole(f.ctx, meta(adminUser), r2, f.project))

	err := f.engine.CheckedWrite(f.ctx, meta("u"), r1, []entity.Assignment{
		{Relation: entity.RelAssignee, Subject: user("u")},
		{Relation: entity.RelAssignee, Subject: entity.ForRole(r2)},
	}, nil)
	if err != nil {
		t.Fatalf("CheckedWrite: %v", err)
	}

	got, err := f.engine.GetRelations(f.ctx, meta("u"), r1, nil)
	if err != nil {
		t.Fatalf("GetRelations: %v", err)
	}
	want := []string{"ownership@user:u", "assignee@user:u", "assignee@" + entity.ForRole(r2).Subject()}
	if len(got) != len(want) {
		t.Fatalf("got %d assignments %v, want %d", len(got), got, len(want))
	}
	have := assignmentSet(got)
	for _, k := range want {
		if !have[k] {
			t.Errorf("missing assignment %s in %v", k, got)
		}
	}

	filtered, err := f.engine.GetRelations(f.ctx, meta("u"), r1, []string{entity.RelOwnership})
	if err != nil || len(filtered) != 1 {
		t.Errorf("filtered = %v, %v", filtered, err)
	}
	if _, err := f.engine.GetRelations(f.ctx, meta("u"), r1, []string{entity.RelParent}); !errors.Is(err, entity.ErrUnknownRelation) {
		t.Errorf("structural relation filter: %v", err)
	}

	before := f.backend.count()
	err = f.engine.CheckedWrite(f.ctx, meta("u"), r1, []entity.Assignment{
		{Relation: entity.RelAssignee, Subject: entity.ForRole(r1)},
	}, nil)
	if !errors.Is(err, ErrSelfAssignment) {
		t.Fatalf("expected ErrSelfAssignment, got %v", err)
	}
	if f.backend.count() != before {
		t.Error("self assignment reached the store")
	}
}

func TestCheckedWriteProjectRoles(t *testing.T) {
	f := newFixture(t, Options{})
	project := entity.NewProjectID()
	role := entity.NewRoleID()
	f.must(f.engine.CreateProject(f.ctx, meta("u1"), project))
	f.must(f.engine.CreateRole(f.ctx, meta("u1"), role, project))

	err := f.engine.CheckedWrite(f.ctx, meta("u1"), project, []entity.Assignment{
		{Relation: entity.RelDataAdmin, Subject: user("u1")},
		{Relation: entity.RelDataAdmin, Subject: user("u2")},
		{Relation: entity.RelDataAdmin, Subject: entity.ForRole(role)},
	}, nil)
	if err != nil {
		t.Fatalf("CheckedWrite: %v", err)
	}

	got, err := f.engine.GetRelations(f.ctx, meta("u1"), project, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("got %d assignments: %v", len(got), got)
	}
	if !assignmentSet(got)["project_admin@user:u1"] {
		t.Errorf("creator is not project admin: %v", got)
	}

	if _, err := f.engine.GetRelations(f.ctx, meta("u2"), project, nil); !IsUnauthorized(err) {
		t.Errorf("data admin must not read assignments: %v", err)
	}
}

func TestManagedAccessBlocksOwnerGrants(t *testing.T) {
	f := newFixture(t, Options{})
	ns := f.namespace("a")

	err := f.engine.CheckedWrite(f.ctx, meta("a"), ns, []entity.Assignment{{Relation: entity.RelSelect, Subject: user("b")}}, nil)
	if err != nil {
		t.Fatalf("owner grant before managed access: %v", err)
	}

	f.must(f.engine.SetManagedAccess(f.ctx, meta(adminUser), f.warehouse, true))

	state, err := f.engine.GetNamespaceManagedAccess(f.ctx, ns)
	if err != nil {
		t.Fatal(err)
	}
	if state.ManagedAccess || !state.Inherited {
		t.Errorf("namespace state = %+v, want inherited only", state)
	}

	before := f.backend.count()
	err = f.engine.CheckedWrite(f.ctx, meta("a"), ns, []entity.Assignment{{Relation: entity.RelSelect, Subject: user("c")}}, nil)
	var ue *UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	if ue.Relation != entity.RelManageGrants || ue.Object != ns.Object() {
		t.Errorf("error = %+v", ue)
	}
	if f.backend.count() != before {
		t.Error("rejected grant reached the store")
	}

	// The security admin path through the project still works.
	err = f.engine.CheckedWrite(f.ctx, meta(adminUser), ns, []entity.Assignment{{Relation: entity.RelSelect, Subject: user("c")}}, nil)
	if err != nil {
		t.Errorf("admin grant under managed access: %v", err)
	}
}

func TestCheckedWriteRejections(t *testing.T) {
	f := newFixture(t, Options{})
	ns := f.namespace(adminUser)
	role := entity.NewRoleID()
	f.must(f.engine.CreateRole(f.ctx, meta(adminUser), role, f.project))
	grant := []entity.Assignment{{Relation: entity.RelDescribe, Subject: user("x")}}

	tests := []struct {
		name   string
		meta   entity.RequestMetadata
		object entity.Object
		writes []entity.Assignment
		check  func(error) bool
	}{
		{"anonymous", entity.RequestMetadata{Actor: entity.Anonymous()}, ns, grant,
			func(err error) bool { return errors.Is(err, ErrAuthenticationRequired) }},
		{"assumed role on namespace", entity.RequestMetadata{Actor: entity.AssumingRole(adminUser, role)}, ns, grant,
			func(err error) bool { return errors.Is(err, ErrGrantRoleWithAssumedRole) }},
		{"stranger", meta("stranger"), ns, grant, IsUnauthorized},
		{"not assignable", meta(adminUser), ns, []entity.Assignment{{Relation: entity.RelParent, Subject: user("x")}},
			func(err error) bool { return errors.Is(err, entity.ErrUnknownRelation) }},
		{"missing subject", meta(adminUser), ns, []entity.Assignment{{Relation: entity.RelDescribe}},
			func(err error) bool { return errors.Is(err, entity.ErrInvalidID) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.backend.count()
			err := f.engine.CheckedWrite(f.ctx, tt.meta, tt.object, tt.writes, nil)
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
			if f.backend.count() != before {
				t.Error("rejected write reached the store")
			}
		})
	}
}

func TestCheckedWriteEmptyIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	before := f.backend.count()
	if err := f.engine.CheckedWrite(f.ctx, meta("stranger"), f.warehouse, nil, nil); err != nil {
		t.Errorf("empty write: %v", err)
	}
	if f.backend.count() != before {
		t.Error("empty write reached the store")
	}
}

func TestCheckedWriteDeletesAndConflicts(t *testing.T) {
	f := newFixture(t, Options{})
	grant := []entity.Assignment{{Relation: entity.RelSelect, Subject: user("x")}}
	f.must(f.engine.CheckedWrite(f.ctx, meta(adminUser), f.warehouse, grant, nil))
	f.must(f.engine.CheckedWrite(f.ctx, meta(adminUser), f.warehouse, nil, grant))

	d, err := f.engine.RequireAction(f.ctx, meta("x"), f.warehouse, entity.WarehouseGetMetadata)
	if err != nil || d.Allowed() {
		t.Errorf("revoked user still sees warehouse: %v, %v", d.Outcome, err)
	}

	f.backend.mu.Lock()
	f.backend.writeErr = tuplestore.ErrConcurrentUpdate
	f.backend.mu.Unlock()
	before := f.backend.count()

	err = f.engine.CheckedWrite(f.ctx, meta(adminUser), f.warehouse, grant, nil)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if n := f.backend.count() - before; n != 3 {
		t.Errorf("write attempts = %d, want 3", n)
	}
}

func TestSetManagedAccess(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := f.ctx

	on, err := f.engine.GetManagedAccess(ctx, f.warehouse)
	if err != nil || on {
		t.Fatalf("initial managed access = %v, %v", on, err)
	}

	f.must(f.engine.SetManagedAccess(ctx, meta(adminUser), f.warehouse, true))
	before := f.backend.count()
	f.must(f.engine.SetManagedAccess(ctx, meta(adminUser), f.warehouse, true))
	if f.backend.count() != before {
		t.Error("unchanged managed access wrote tuples")
	}

	stored, err := f.graph.Read(ctx, tuplestore.ReadKey{Object: f.warehouse.Object(), Relation: entity.RelManagedAccess}, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Tuples) != 2 {
		t.Fatalf("stored pair = %v", stored.Tuples)
	}

	// A half-written pair reads as enabled, and the next set completes it.
	f.must(f.graph.Write(ctx, nil, stored.Tuples[:1]))
	on, _ = f.engine.GetManagedAccess(ctx, f.warehouse)
	if !on {
		t.Error("partial pair reported as disabled")
	}
	before = f.backend.count()
	f.must(f.engine.SetManagedAccess(ctx, meta(adminUser), f.warehouse, true))
	if f.backend.count() != before+1 {
		t.Error("partial pair not repaired")
	}
	stored, _ = f.graph.Read(ctx, tuplestore.ReadKey{Object: f.warehouse.Object(), Relation: entity.RelManagedAccess}, 10, "")
	if len(stored.Tuples) != 2 {
		t.Errorf("repaired pair = %v", stored.Tuples)
	}

	// Disabling a half-written pair clears the remaining tuple.
	f.must(f.graph.Write(ctx, nil, stored.Tuples[:1]))
	f.must(f.engine.SetManagedAccess(ctx, meta(adminUser), f.warehouse, false))
	on, _ = f.engine.GetManagedAccess(ctx, f.warehouse)
	if on {
		t.Error("partial pair still enabled after disable")
	}
	f.must(f.engine.SetManagedAccess(ctx, meta(adminUser), f.warehouse, true))

	f.must(f.engine.SetManagedAccess(ctx, meta(adminUser), f.warehouse, false))
	stored, _ = f.graph.Read(ctx, tuplestore.ReadKey{Object: f.warehouse.Object(), Relation: entity.RelManagedAccess}, 10, "")
	if len(stored.Tuples) != 0 {
		t.Errorf("disable left %v", stored.Tuples)
	}

	if err := f.engine.SetManagedAccess(ctx, meta("stranger"), f.warehouse, true); !IsCannotSee(err) {
		t.Errorf("stranger set managed access: %v", err)
	}
	if err := f.engine.SetManagedAccess(ctx, meta(adminUser), f.project, true); !errors.Is(err, ErrInvalidObject) {
		t.Errorf("managed access on project: %v", err)
	}
}
