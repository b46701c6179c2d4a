// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package check

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

type authzCall struct {
	kind       Kind
	forUser    *entity.UserOrRole
	checks     int
	warehouse  *catalog.Warehouse
	namespaces map[entity.NamespaceID]catalog.NamespaceHierarchy
}

// fakeAuthorizer allows everything unless answer says otherwise and records
// what each group was evaluated against.
type fakeAuthorizer struct {
	mu     sync.Mutex
	calls  []authzCall
	answer func(kind Kind, n int) []bool
}

func (f *fakeAuthorizer) record(c authzCall) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.answer != nil {
		return f.answer(c.kind, c.checks), nil
	}
	out := make([]bool, c.checks)
	for i := range out {
		out[i] = true
	}
	return out, nil
}

func (f *fakeAuthorizer) callsOf(kind Kind) []authzCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []authzCall
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAuthorizer) AreAllowedServerActions(_ context.Context, _ entity.RequestMetadata, u *entity.UserOrRole, a []entity.ServerAction) ([]bool, error) {
	return f.record(authzCall{kind: KindServer, forUser: u, checks: len(a)})
}

func (f *fakeAuthorizer) AreAllowedProjectActions(_ context.Context, _ entity.RequestMetadata, u *entity.UserOrRole, c []authz.ProjectCheck) ([]bool, error) {
	return f.record(authzCall{kind: KindProject, forUser: u, checks: len(c)})
}

func (f *fakeAuthorizer) AreAllowedWarehouseActions(_ context.Context, _ entity.RequestMetadata, u *entity.UserOrRole, c []authz.WarehouseCheck) ([]bool, error) {
	return f.record(authzCall{kind: KindWarehouse, forUser: u, checks: len(c)})
}

func (f *fakeAuthorizer) AreAllowedNamespaceActions(_ context.Context, _ entity.RequestMetadata, u *entity.UserOrRole, wh *catalog.Warehouse, ns map[entity.NamespaceID]catalog.NamespaceHierarchy, c []authz.NamespaceCheck) ([]bool, error) {
	return f.record(authzCall{kind: KindNamespace, forUser: u, checks: len(c), warehouse: wh, namespaces: ns})
}

func (f *fakeAuthorizer) AreAllowedTableActions(_ context.Context, _ entity.RequestMetadata, u *entity.UserOrRole, wh *catalog.Warehouse, ns map[entity.NamespaceID]catalog.NamespaceHierarchy, c []authz.TableCheck) ([]bool, error) {
	return f.record(authzCall{kind: KindTable, forUser: u, checks: len(c), warehouse: wh, namespaces: ns})
}

func (f *fakeAuthorizer) AreAllowedViewActions(_ context.Context, _ entity.RequestMetadata, u *entity.UserOrRole, wh *catalog.Warehouse, ns map[entity.NamespaceID]catalog.NamespaceHierarchy, c []authz.ViewCheck) ([]bool, error) {
	return f.record(authzCall{kind: KindView, forUser: u, checks: len(c), warehouse: wh, namespaces: ns})
}

func TestCheckObservesTabularVersions(t *testing.T) {
	e := newEnv(t, 10)
	ns := e.addNamespace("a")
	tbl := e.addTabular(ns, "t", entity.KindTable)
	wh := e.warehouse.ID

	// Warm the resolver with version 1 rows.
	if _, err := e.store.GetWarehouse(e.ctx, wh, catalog.AnyStatus, catalog.Use); err != nil {
		t.Fatal(err)
	}
	if _, err := e.store.GetNamespaceByID(e.ctx, wh, ns.ID, catalog.Use); err != nil {
		t.Fatal(err)
	}

	// Bump both rows behind the resolver so its entries go stale.
	e.write(e.db, func(tx catalog.WriteTx) error {
		if _, err := tx.SetWarehouseStatus(e.ctx, wh, catalog.WarehouseInactive); err != nil {
			return err
		}
		_, err := tx.UpdateNamespaceProperties(e.ctx, wh, ns.ID, map[string]string{"owner": "etl"}, nil)
		return err
	})
	if h, _ := e.store.GetNamespaceByID(e.ctx, wh, ns.ID, catalog.Use); h == nil || h.Namespace.Version != 1 {
		t.Fatalf("resolver should still hold version 1, got %+v", h)
	}

	fake := &fakeAuthorizer{}
	store := &recordingStore{Store: e.store}
	checker := NewChecker(fake, store)
	items := []CheckItem{{Operation: TableOp{Action: entity.TableReadData, Table: TabularRef{Warehouse: wh, ID: &tbl.TabularID}}}}
	if _, err := checker.Check(e.ctx, asUser("alice"), CheckRequest{Checks: items}); err != nil {
		t.Fatalf("Check: %v", err)
	}

	calls := fake.callsOf(KindTable)
	if len(calls) != 1 {
		t.Fatalf("table calls = %d, want 1", len(calls))
	}
	if got := calls[0].warehouse; got == nil || got.Version < 2 {
		t.Errorf("warehouse seen at %+v, want version >= 2", got)
	}
	if got := calls[0].namespaces[ns.ID].Namespace; got.Version < 2 || got.Properties["owner"] != "etl" {
		t.Errorf("namespace seen at version %d, want >= 2", got.Version)
	}
	refetch := store.policies[ns.ID]
	if len(refetch) != 1 || refetch[0].MinVersion() != 2 {
		t.Errorf("namespace refetch policies = %v, want one min_version(2)", refetch)
	}
}

func TestCheckResultCountMismatch(t *testing.T) {
	e := newEnv(t, 10)
	fake := &fakeAuthorizer{answer: func(_ Kind, n int) []bool { return make([]bool, n-1) }}
	checker := NewChecker(fake, e.store)

	items := []CheckItem{
		{Operation: WarehouseOp{Action: entity.WarehouseGetMetadata, Warehouse: e.warehouse.ID}},
		{Operation: WarehouseOp{Action: entity.WarehouseDelete, Warehouse: e.warehouse.ID}},
	}
	_, err := checker.Check(e.ctx, asUser("alice"), CheckRequest{Checks: items})
	if !errors.Is(err, ErrResultCountMismatch) {
		t.Errorf("expected ErrResultCountMismatch, got %v", err)
	}
}

func TestCheckGroupsByPrincipal(t *testing.T) {
	e := newEnv(t, 10)
	fake := &fakeAuthorizer{}
	checker := NewChecker(fake, e.store)
	alice, bob := user("alice"), user("bob")

	items := []CheckItem{
		{Operation: ServerOp{Action: entity.ServerCreateProject}},
		{Identity: &alice, Operation: ServerOp{Action: entity.ServerCreateProject}},
		{Identity: &bob, Operation: ServerOp{Action: entity.ServerCreateProject}},
		{Identity: &bob, Operation: WarehouseOp{Action: entity.WarehouseGetMetadata, Warehouse: e.warehouse.ID}},
		{Operation: WarehouseOp{Action: entity.WarehouseGetMetadata, Warehouse: e.warehouse.ID}},
	}
	if _, err := checker.Check(e.ctx, asUser("alice"), CheckRequest{Checks: items}); err != nil {
		t.Fatalf("Check: %v", err)
	}

	tests := []struct {
		kind  Kind
		who   *entity.UserOrRole
		count int
	}{
		{KindServer, nil, 2},
		{KindServer, &bob, 1},
		{KindWarehouse, nil, 1},
		{KindWarehouse, &bob, 1},
	}
	for _, tt := range tests {
		found := false
		for _, c := range fake.callsOf(tt.kind) {
			if (c.forUser == nil) != (tt.who == nil) || (c.forUser != nil && *c.forUser != *tt.who) {
				continue
			}
			found = true
			if c.checks != tt.count {
				t.Errorf("%s group for %v has %d checks, want %d", tt.kind, tt.who, c.checks, tt.count)
			}
		}
		if !found {
			t.Errorf("no %s group for %v", tt.kind, tt.who)
		}
	}
	if n := len(fake.callsOf(KindServer)) + len(fake.callsOf(KindWarehouse)); n != 4 {
		t.Errorf("authorizer calls = %d, want 4", n)
	}
}

func TestCheckInactiveWarehouse(t *testing.T) {
	e := newEnv(t, 10)
	ns := e.addNamespace("a")
	e.write(e.store, func(tx catalog.WriteTx) error {
		_, err := tx.SetWarehouseStatus(e.ctx, e.warehouse.ID, catalog.WarehouseInactive)
		return err
	})

	items := []CheckItem{
		{Operation: WarehouseOp{Action: entity.WarehouseActivate, Warehouse: e.warehouse.ID}},
		{Operation: NamespaceOp{Action: entity.NamespaceGetMetadata, Warehouse: e.warehouse.ID, ID: &ns.ID}},
	}
	resp, err := e.checker.Check(e.ctx, asUser(admin), CheckRequest{Checks: items})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !resp.Results[0].Allowed {
		t.Error("owner cannot act on an inactive warehouse")
	}
	if resp.Results[1].Allowed {
		t.Error("namespace inside an inactive warehouse allowed")
	}
}

func TestCheckItemJSON(t *testing.T) {
	wh := entity.NewWarehouseID()
	ns := entity.NewNamespaceID()
	tbl := uuid.New()

	tests := []struct {
		name    string
		body    string
		want    Operation
		wantErr bool
	}{
		{
			name: "namespace by id",
			body: `{"operation":{"kind":"namespace","action":"create_table","warehouse-id":"` + wh.String() + `","namespace-id":"` + ns.String() + `"}}`,
			want: NamespaceOp{Action: entity.NamespaceCreateTable, Warehouse: wh, ID: &ns},
		},
		{
			name: "namespace by name",
			body: `{"operation":{"kind":"namespace","action":"get_metadata","warehouse-id":"` + wh.String() + `","namespace":["a","b"]}}`,
			want: NamespaceOp{Action: entity.NamespaceGetMetadata, Warehouse: wh, Ident: catalog.NamespaceIdent{"a", "b"}},
		},
		{
			name: "table by name",
			body: `{"operation":{"kind":"table","action":"read_data","warehouse-id":"` + wh.String() + `","namespace":["a"],"table":"t"}}`,
			want: TableOp{Action: entity.TableReadData, Table: TabularRef{Warehouse: wh, Ident: catalog.TabularIdent{Namespace: catalog.NamespaceIdent{"a"}, Name: "t"}}},
		},
		{
			name: "view by id",
			body: `{"operation":{"kind":"view","action":"drop","warehouse-id":"` + wh.String() + `","view-id":"` + tbl.String() + `"}}`,
			want: ViewOp{Action: entity.ViewDrop, View: TabularRef{Warehouse: wh, ID: &tbl}},
		},
		{
			name: "project without id",
			body: `{"operation":{"kind":"project","action":"get_metadata"}}`,
			want: ProjectOp{Action: entity.ProjectGetMetadata},
		},
		{name: "unknown kind", body: `{"operation":{"kind":"catalog","action":"x"}}`, wantErr: true},
		{name: "action of another kind", body: `{"operation":{"kind":"server","action":"read_data"}}`, wantErr: true},
		{name: "table without namespace", body: `{"operation":{"kind":"table","action":"drop","warehouse-id":"` + wh.String() + `","table":"t"}}`, wantErr: true},
		{name: "namespace without warehouse", body: `{"operation":{"kind":"namespace","action":"delete","namespace":["a"]}}`, wantErr: true},
		{name: "missing operation", body: `{"id":"x"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var item CheckItem
			err := item.UnmarshalJSON([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %+v", item.Operation)
				}
				if !errors.Is(err, ErrBadRequest) {
					t.Errorf("error %v does not wrap ErrBadRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !sameOperation(item.Operation, tt.want) {
				t.Errorf("operation = %+v, want %+v", item.Operation, tt.want)
			}
		})
	}
}

func TestCheckItemJSONRoundTrip(t *testing.T) {
	tbl := uuid.New()
	who := user("bob")
	in := CheckItem{
		ID:        ptr("c1"),
		Identity:  &who,
		Operation: TableOp{Action: entity.TableDrop, Table: TabularRef{Warehouse: entity.NewWarehouseID(), ID: &tbl}},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out CheckItem
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal %s: %v", b, err)
	}
	if *out.ID != "c1" || *out.Identity != who || !sameOperation(out.Operation, in.Operation) {
		t.Errorf("round trip = %+v from %s", out, b)
	}
}

// sameOperation compares operations by their wire form, which flattens the
// pointer fields.
func sameOperation(a, b Operation) bool {
	ja, errA := encodeOperation(a)
	jb, errB := encodeOperation(b)
	if errA != nil || errB != nil {
		return false
	}
	ba, _ := json.Marshal(ja)
	bb, _ := json.Marshal(jb)
	return string(ba) == string(bb)
}
