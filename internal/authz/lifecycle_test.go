// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

func (f *fixture) tuplesOn(obj string) []tuplestore.TupleKey {
	f.t.Helper()
	page, err := f.graph.Read(f.ctx, tuplestore.ReadKey{Object: obj}, 1000, "")
	if err != nil {
		f.t.Fatalf("read %s: %v", obj, err)
	}
	return page.Tuples
}

func (f *fixture) tuplesFor(user string) []tuplestore.TupleKey {
	f.t.Helper()
	page, err := f.graph.Read(f.ctx, tuplestore.ReadKey{User: user}, 1000, "")
	if err != nil {
		f.t.Fatalf("read for %s: %v", user, err)
	}
	return page.Tuples
}

func TestBootstrapOnce(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.engine.Bootstrap(f.ctx, "second"); !errors.Is(err, ErrAlreadyBootstrapped) {
		t.Errorf("expected ErrAlreadyBootstrapped, got %v", err)
	}
	d, err := f.engine.RequireAction(f.ctx, meta("second"), f.engine.Server(), entity.ServerCreateProject)
	if err != nil || d.Allowed() {
		t.Errorf("second bootstrap granted admin: %v, %v", d.Outcome, err)
	}
}

func TestCreateHooksAreIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ns := f.namespace("alice")
	table := entity.TableRef{Warehouse: f.warehouse, Table: entity.NewTableID()}
	view := entity.ViewRef{Warehouse: f.warehouse, View: entity.NewViewID()}

	for i := 0; i < 2; i++ {
		f.must(f.engine.CreateTable(f.ctx, meta("alice"), table, ns))
		f.must(f.engine.CreateView(f.ctx, meta("alice"), view, ns))
		f.must(f.engine.CreateNamespace(f.ctx, meta("alice"), ns, f.warehouse))
	}

	if got := f.tuplesOn(table.Object()); len(got) != 2 {
		t.Errorf("table tuples = %v, want parent and ownership", got)
	}
	if got := f.tuplesOn(ns.Object()); len(got) != 4 {
		t.Errorf("namespace tuples = %v, want parent, ownership and two children", got)
	}
}

func TestCreateNamespaceParents(t *testing.T) {
	f := newFixture(t, Options{})
	parent := f.namespace("alice")
	child := entity.NewNamespaceID()
	f.must(f.engine.CreateNamespace(f.ctx, meta("bob"), child, parent))

	// Rights flow down the parent edge.
	d, err := f.engine.RequireAction(f.ctx, meta("alice"), child, entity.NamespaceDelete)
	if err != nil || !d.Allowed() {
		t.Errorf("parent owner on child = %v, %v", d.Outcome, err)
	}

	if got := f.tuplesOn(parent.Object()); len(got) != 3 {
		t.Errorf("parent tuples = %v", got)
	}

	err = f.engine.CreateNamespace(f.ctx, meta("bob"), entity.NewNamespaceID(), f.project)
	if !errors.Is(err, ErrInvalidObject) {
		t.Errorf("namespace under project: %v", err)
	}
}

func TestDeleteHooks(t *testing.T) {
	f := newFixture(t, Options{})
	parent := f.namespace("alice")
	child := entity.NewNamespaceID()
	f.must(f.engine.CreateNamespace(f.ctx, meta("alice"), child, parent))
	table := entity.TableRef{Warehouse: f.warehouse, Table: entity.NewTableID()}
	f.must(f.engine.CreateTable(f.ctx, meta("alice"), table, child))
	f.grant(table, entity.RelSelect, user("bob"))

	for i := 0; i < 2; i++ {
		if err := f.engine.DeleteTable(f.ctx, table); err != nil {
			t.Fatalf("DeleteTable #%d: %v", i+1, err)
		}
	}
	if got := f.tuplesOn(table.Object()); len(got) != 0 {
		t.Errorf("table tuples left: %v", got)
	}
	if got := f.tuplesFor(table.Object()); len(got) != 0 {
		t.Errorf("edges to table left: %v", got)
	}

	f.must(f.engine.DeleteNamespace(f.ctx, child))
	for _, tk := range f.tuplesOn(parent.Object()) {
		if tk.Relation == entity.RelChild {
			t.Errorf("child edge survived: %v", tk)
		}
	}
}

func TestDeleteRoleRemovesItsGrants(t *testing.T) {
	f := newFixture(t, Options{})
	role := entity.NewRoleID()
	f.must(f.engine.CreateRole(f.ctx, meta(adminUser), role, f.project))
	f.grant(role, entity.RelAssignee, user("dave"))
	f.grant(f.warehouse, entity.RelModify, entity.ForRole(role))

	d, _ := f.engine.RequireAction(f.ctx, meta("dave"), f.warehouse, entity.WarehouseDelete)
	if !d.Allowed() {
		t.Fatal("role grant not effective")
	}

	f.must(f.engine.DeleteRole(f.ctx, role))
	if got := f.tuplesFor(entity.ForRole(role).Subject()); len(got) != 0 {
		t.Errorf("grants to deleted role left: %v", got)
	}
	d, _ = f.engine.RequireAction(f.ctx, meta("dave"), f.warehouse, entity.WarehouseDelete)
	if d.Allowed() {
		t.Error("deleted role still grants modify")
	}
}

func TestDeleteProjectAndWarehouse(t *testing.T) {
	f := newFixture(t, Options{})
	f.must(f.engine.DeleteWarehouse(f.ctx, f.warehouse))
	if got := f.tuplesOn(f.warehouse.Object()); len(got) != 0 {
		t.Errorf("warehouse tuples left: %v", got)
	}
	f.must(f.engine.DeleteProject(f.ctx, f.project))
	if got := f.tuplesOn(f.project.Object()); len(got) != 0 {
		t.Errorf("project tuples left: %v", got)
	}
}

func (f *fixture) setWriteErr(err error) {
	f.backend.mu.Lock()
	f.backend.writeErr = err
	f.backend.mu.Unlock()
}

func fastHookRetry() HookRetryConfig {
	return HookRetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Interval:       2 * time.Millisecond,
		RandomSeed:     1,
	}
}

func TestHookFailureIsReported(t *testing.T) {
	f := newFixture(t, Options{HookRetry: fastHookRetry()})
	f.setWriteErr(errors.New("disk full"))

	warehouse := entity.NewWarehouseID()
	err := f.engine.CreateWarehouse(f.ctx, meta(adminUser), warehouse, f.project)
	if err == nil {
		t.Fatal("expected hook error")
	}
	if !tuplestore.IsBackendError(err) {
		t.Errorf("expected backend error, got %v", err)
	}

	retrier := f.engine.HookRetrier()
	pending := retrier.Pending()
	if len(pending) != 1 || pending[0].Object != warehouse.Object() || pending[0].Hook != "create_warehouse" {
		t.Fatalf("pending = %+v, want the create_warehouse update", pending)
	}

	// The store recovers; the background worker finishes the hook.
	f.setWriteErr(nil)
	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() { done <- retrier.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for len(retrier.Pending()) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hook still pending: %+v", retrier.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}

	owner := tuplestore.TupleKey{User: user(adminUser).Subject(), Relation: entity.RelOwnership, Object: warehouse.Object()}
	if !slices.Contains(f.tuplesOn(warehouse.Object()), owner) {
		t.Errorf("ownership tuple missing after retry: %v", f.tuplesOn(warehouse.Object()))
	}
	d, err := f.engine.RequireAction(f.ctx, meta(adminUser), warehouse, entity.WarehouseDelete)
	if err != nil || !d.Allowed() {
		t.Errorf("owner after retry = %v, %v", d.Outcome, err)
	}
}

func TestLaterHookSupersedesPendingRetry(t *testing.T) {
	f := newFixture(t, Options{HookRetry: fastHookRetry()})
	f.setWriteErr(errors.New("disk full"))

	warehouse := entity.NewWarehouseID()
	if err := f.engine.CreateWarehouse(f.ctx, meta(adminUser), warehouse, f.project); err == nil {
		t.Fatal("expected hook error")
	}
	f.setWriteErr(nil)

	// The warehouse is dropped before the retry runs. The delete clears the
	// queued create so the retry cannot resurrect the tuples.
	f.must(f.engine.DeleteWarehouse(f.ctx, warehouse))
	if got := f.engine.HookRetrier().Pending(); len(got) != 0 {
		t.Fatalf("pending after delete = %+v", got)
	}
	time.Sleep(5 * time.Millisecond)
	f.engine.HookRetrier().RetryDue(f.ctx)
	if got := f.tuplesOn(warehouse.Object()); len(got) != 0 {
		t.Errorf("tuples recreated: %v", got)
	}
}

func TestBootstrapFailureIsNotQueued(t *testing.T) {
	graph, err := tuplestore.OpenGraph(entity.CatalogModel(), tuplestore.GraphOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenGraph: %v", err)
	}
	t.Cleanup(func() { _ = graph.Close() })
	backend := &countingBackend{Backend: graph, writeErr: errors.New("disk full")}
	engine := NewEngine(tuplestore.NewClient(backend, tuplestore.Config{}), entity.ServerID{UUID: uuid.New()}, Options{})

	if err := engine.Bootstrap(context.Background(), adminUser); err == nil {
		t.Fatal("expected bootstrap error")
	}
	if got := engine.HookRetrier().Pending(); len(got) != 0 {
		t.Errorf("bootstrap was queued: %+v", got)
	}
}
