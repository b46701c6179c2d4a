// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

func openTestStore(t *testing.T, mutate ...func(*Config)) *DuckDBStore {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Threads = 1
	cfg.FetchChunkSize = 2
	for _, fn := range mutate {
		fn(&cfg)
	}
	s, err := OpenDuckDB(cfg)
	if err != nil {
		t.Fatalf("OpenDuckDB: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// inTx runs fn in a write transaction and commits it.
func inTx(t *testing.T, store Store, fn func(WriteTx) error) error {
	t.Helper()
	ctx := context.Background()
	tx, err := store.BeginWrite(ctx)
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func seedWarehouse(t *testing.T, store Store, name string) *Warehouse {
	t.Helper()
	w := &Warehouse{ProjectID: entity.NewProjectID(), Name: name}
	if err := inTx(t, store, func(tx WriteTx) error { return tx.CreateWarehouse(context.Background(), w) }); err != nil {
		t.Fatalf("CreateWarehouse %s: %v", name, err)
	}
	return w
}

func seedNamespace(t *testing.T, store Store, warehouse entity.WarehouseID, segments ...string) *Namespace {
	t.Helper()
	ns := &Namespace{WarehouseID: warehouse, Ident: NamespaceIdent(segments)}
	if err := inTx(t, store, func(tx WriteTx) error { return tx.CreateNamespace(context.Background(), ns) }); err != nil {
		t.Fatalf("CreateNamespace %v: %v", segments, err)
	}
	return ns
}

func seedTabular(t *testing.T, store Store, ns *Namespace, name string, kind entity.TabularKind) *TabularInfo {
	t.Helper()
	info := &TabularInfo{WarehouseID: ns.WarehouseID, NamespaceID: ns.ID, Ident: TabularIdent{Name: name}, Kind: kind}
	if err := inTx(t, store, func(tx WriteTx) error { return tx.CreateTabular(context.Background(), info) }); err != nil {
		t.Fatalf("CreateTabular %s: %v", name, err)
	}
	return info
}

func TestWarehouseLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w := seedWarehouse(t, s, "lake")

	got, err := s.GetWarehouse(ctx, w.ID, ActiveOnly, Use)
	if err != nil || got == nil {
		t.Fatalf("GetWarehouse = %v, %v", got, err)
	}
	if got.Name != "lake" || got.Version != 1 || got.ProjectID != w.ProjectID || !got.Active() {
		t.Errorf("warehouse = %+v", got)
	}

	var updated *Warehouse
	err = inTx(t, s, func(tx WriteTx) error {
		var err error
		updated, err = tx.SetWarehouseStatus(ctx, w.ID, WarehouseInactive)
		return err
	})
	if err != nil {
		t.Fatalf("SetWarehouseStatus: %v", err)
	}
	if updated.Version != 2 || updated.Status != WarehouseInactive {
		t.Errorf("updated = %+v", updated)
	}

	if got, _ := s.GetWarehouse(ctx, w.ID, ActiveOnly, Use); got != nil {
		t.Errorf("inactive warehouse passed ActiveOnly: %+v", got)
	}
	if got, _ := s.GetWarehouse(ctx, w.ID, AnyStatus, Use); got == nil || got.Status != WarehouseInactive {
		t.Errorf("AnyStatus lookup = %+v", got)
	}
	if got, err := s.GetWarehouse(ctx, entity.NewWarehouseID(), AnyStatus, Use); got != nil || err != nil {
		t.Errorf("unknown warehouse = %+v, %v", got, err)
	}

	err = inTx(t, s, func(tx WriteTx) error {
		_, err := tx.SetWarehouseStatus(ctx, entity.NewWarehouseID(), WarehouseActive)
		return err
	})
	if !IsNotFound(err) {
		t.Errorf("status on unknown warehouse: %v", err)
	}
}

func TestWarehouseNameIsUniquePerProject(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w := seedWarehouse(t, s, "Lake")

	dup := &Warehouse{ProjectID: w.ProjectID, Name: "lake"}
	if err := inTx(t, s, func(tx WriteTx) error { return tx.CreateWarehouse(ctx, dup) }); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate name: %v", err)
	}
	other := &Warehouse{ProjectID: entity.NewProjectID(), Name: "lake"}
	if err := inTx(t, s, func(tx WriteTx) error { return tx.CreateWarehouse(ctx, other) }); err != nil {
		t.Errorf("same name in another project: %v", err)
	}
	blank := &Warehouse{ProjectID: w.ProjectID, Name: " "}
	if err := inTx(t, s, func(tx WriteTx) error { return tx.CreateWarehouse(ctx, blank) }); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("blank name: %v", err)
	}
}

func TestWarehousesByIDChunks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var ids []entity.WarehouseID
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, seedWarehouse(t, s, name).ID)
	}
	ids = append(ids, entity.NewWarehouseID())

	got, err := s.GetWarehousesByID(ctx, ids, AnyStatus)
	if err != nil {
		t.Fatalf("GetWarehousesByID: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("got %d warehouses, want 5", len(got))
	}
}

func TestNamespaceHierarchy(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w := seedWarehouse(t, s, "lake")
	a := seedNamespace(t, s, w.ID, "a")
	b := seedNamespace(t, s, w.ID, "a", "b")
	c := seedNamespace(t, s, w.ID, "a", "b", "c")

	if c.ParentID == nil || *c.ParentID != b.ID {
		t.Fatalf("c parent = %v, want %v", c.ParentID, b.ID)
	}

	h, err := s.GetNamespaceByIdent(ctx, w.ID, NamespaceIdent{"A", "B", "C"}, Use)
	if err != nil || h == nil {
		t.Fatalf("GetNamespaceByIdent = %v, %v", h, err)
	}
	if h.Namespace.ID != c.ID {
		t.Errorf("resolved %v, want %v", h.Namespace.ID, c.ID)
	}
	if len(h.Parents) != 2 || h.Parents[0].ID != b.ID || h.Parents[1].ID != a.ID {
		t.Errorf("parents = %+v", h.Parents)
	}
	if h.Root().ID != a.ID {
		t.Errorf("root = %v", h.Root().ID)
	}

	all, err := s.GetNamespacesByID(ctx, w.ID, []entity.NamespaceID{c.ID, a.ID, b.ID, entity.NewNamespaceID()}, Use)
	if err != nil {
		t.Fatalf("GetNamespacesByID: %v", err)
	}
	if len(all) != 3 || len(all[b.ID].Parents) != 1 {
		t.Errorf("batch = %+v", all)
	}

	other := seedWarehouse(t, s, "other")
	if h, _ := s.GetNamespaceByID(ctx, other.ID, c.ID, Use); h != nil {
		t.Error("namespace resolved through the wrong warehouse")
	}
}

func TestCreateNamespaceRejections(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, func(c *Config) { c.MaxNamespaceDepth = 2 })
	w := seedWarehouse(t, s, "lake")
	seedNamespace(t, s, w.ID, "a")

	tests := []struct {
		name  string
		ns    Namespace
		check func(error) bool
	}{
		{"duplicate ignoring case", Namespace{WarehouseID: w.ID, Ident: NamespaceIdent{"A"}},
			func(err error) bool { return errors.Is(err, ErrAlreadyExists) }},
		{"missing parent", Namespace{WarehouseID: w.ID, Ident: NamespaceIdent{"x", "y"}}, IsNotFound},
		{"too deep", Namespace{WarehouseID: w.ID, Ident: NamespaceIdent{"a", "b", "c"}},
			func(err error) bool { return errors.Is(err, ErrNamespaceDepth) }},
		{"empty segment", Namespace{WarehouseID: w.ID, Ident: NamespaceIdent{"a", ""}},
			func(err error) bool { return errors.Is(err, ErrInvalidIdentifier) }},
		{"unknown warehouse", Namespace{WarehouseID: entity.NewWarehouseID(), Ident: NamespaceIdent{"z"}}, IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := tt.ns
			err := inTx(t, s, func(tx WriteTx) error { return tx.CreateNamespace(ctx, &ns) })
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNamespaceWritersBumpVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w := seedWarehouse(t, s, "lake")
	ns := seedNamespace(t, s, w.ID, "a")

	var changes []Change
	err := inTx(t, s, func(tx WriteTx) error {
		tx.OnCommit(func(c Change) { changes = append(changes, c) })
		if _, err := tx.UpdateNamespaceProperties(ctx, w.ID, ns.ID, map[string]string{"owner": "x", "tmp": "1"}, nil); err != nil {
			return err
		}
		if _, err := tx.UpdateNamespaceProperties(ctx, w.ID, ns.ID, nil, []string{"tmp"}); err != nil {
			return err
		}
		_, err := tx.SetNamespaceProtection(ctx, w.ID, ns.ID, true)
		return err
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(changes) != 1 || len(changes[0].Namespaces) != 3 {
		t.Errorf("changes = %+v", changes)
	}

	h, err := s.GetNamespaceByID(ctx, w.ID, ns.ID, Use)
	if err != nil || h == nil {
		t.Fatalf("GetNamespaceByID = %v, %v", h, err)
	}
	if h.Namespace.Version != 4 || !h.Namespace.Protected {
		t.Errorf("namespace = %+v", h.Namespace)
	}
	if !reflect.DeepEqual(h.Namespace.Properties, map[string]string{"owner": "x"}) {
		t.Errorf("properties = %v", h.Namespace.Properties)
	}

	err = inTx(t, s, func(tx WriteTx) error {
		_, err := tx.SetNamespaceProtection(ctx, w.ID, entity.NewNamespaceID(), true)
		return err
	})
	if !IsNotFound(err) {
		t.Errorf("protect unknown namespace: %v", err)
	}
}

func TestDropNamespace(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w := seedWarehouse(t, s, "lake")
	parent := seedNamespace(t, s, w.ID, "a")
	child := seedNamespace(t, s, w.ID, "a", "b")
	table := seedTabular(t, s, child, "t", entity.KindTable)

	drop := func(id entity.NamespaceID, force bool) error {
		return inTx(t, s, func(tx WriteTx) error { return tx.DropNamespace(ctx, w.ID, id, force) })
	}

	if err := drop(parent.ID, false); !errors.Is(err, ErrNamespaceNotEmpty) {
		t.Errorf("drop with child namespace: %v", err)
	}
	if err := drop(child.ID, false); !errors.Is(err, ErrNamespaceNotEmpty) {
		t.Errorf("drop with live table: %v", err)
	}

	err := inTx(t, s, func(tx WriteTx) error { return tx.DropTabular(ctx, w.ID, table.TabularID, false) })
	if err != nil {
		t.Fatalf("DropTabular: %v", err)
	}

	err = inTx(t, s, func(tx WriteTx) error {
		_, err := tx.SetNamespaceProtection(ctx, w.ID, child.ID, true)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := drop(child.ID, false); !errors.Is(err, ErrProtected) {
		t.Errorf("drop protected: %v", err)
	}
	if err := drop(child.ID, true); err != nil {
		t.Errorf("forced drop: %v", err)
	}
	if err := drop(child.ID, true); !IsNotFound(err) {
		t.Errorf("second drop: %v", err)
	}

	got, err := s.GetTabularInfosByID(ctx, w.ID, []uuid.UUID{table.TabularID}, AllTabulars())
	if err != nil || len(got) != 0 {
		t.Errorf("deleted tabular survived namespace drop: %v, %v", got, err)
	}
}

func TestTabularLookups(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w := seedWarehouse(t, s, "lake")
	ns := seedNamespace(t, s, w.ID, "sales")
	table := seedTabular(t, s, ns, "Orders", entity.KindTable)
	view := seedTabular(t, s, ns, "orders_v", entity.KindView)

	dup := &TabularInfo{WarehouseID: w.ID, NamespaceID: ns.ID, Ident: TabularIdent{Name: "ORDERS"}, Kind: entity.KindView}
	if err := inTx(t, s, func(tx WriteTx) error { return tx.CreateTabular(ctx, dup) }); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate name across kinds: %v", err)
	}

	byID, err := s.GetTabularInfosByID(ctx, w.ID, []uuid.UUID{table.TabularID, view.TabularID, uuid.New()}, OnlyActive())
	if err != nil {
		t.Fatalf("GetTabularInfosByID: %v", err)
	}
	if len(byID) != 2 {
		t.Fatalf("byID = %+v", byID)
	}
	got := byID[view.TabularID]
	if got.Kind != entity.KindView || got.Ident.String() != "sales.orders_v" {
		t.Errorf("view = %+v", got)
	}
	if got.WarehouseVersion != w.Version || got.NamespaceVersion != ns.Version {
		t.Errorf("versions = %d/%d", got.WarehouseVersion, got.NamespaceVersion)
	}
	if got.Object().Object() != view.ViewRef().Object() {
		t.Errorf("object = %s", got.Object().Object())
	}

	ident := TabularIdent{Namespace: NamespaceIdent{"SALES"}, Name: "orders"}
	byIdent, err := s.GetTabularInfosByIdent(ctx, w.ID, []TabularIdent{ident}, OnlyActive())
	if err != nil || byIdent[ident.Key()].TabularID != table.TabularID {
		t.Fatalf("byIdent = %+v, %v", byIdent, err)
	}

	err = inTx(t, s, func(tx WriteTx) error { return tx.DropTabular(ctx, w.ID, table.TabularID, false) })
	if err != nil {
		t.Fatalf("DropTabular: %v", err)
	}
	if got, _ := s.GetTabularInfosByIdent(ctx, w.ID, []TabularIdent{ident}, OnlyActive()); len(got) != 0 {
		t.Errorf("dropped table still active: %+v", got)
	}
	deleted, _ := s.GetTabularInfosByIdent(ctx, w.ID, []TabularIdent{ident}, AllTabulars())
	if deleted[ident.Key()].State != TabularDeleted {
		t.Errorf("deleted lookup = %+v", deleted)
	}

	// The name is free again and the live row shadows the deleted one.
	again := seedTabular(t, s, ns, "orders", entity.KindTable)
	all, _ := s.GetTabularInfosByIdent(ctx, w.ID, []TabularIdent{ident}, AllTabulars())
	if all[ident.Key()].TabularID != again.TabularID {
		t.Errorf("live row did not win: %+v", all)
	}

	if err := inTx(t, s, func(tx WriteTx) error { return tx.DropTabular(ctx, w.ID, table.TabularID, true) }); !IsNotFound(err) {
		t.Errorf("dropping a deleted tabular: %v", err)
	}
}

func TestProtectedTabular(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w := seedWarehouse(t, s, "lake")
	ns := seedNamespace(t, s, w.ID, "a")
	info := &TabularInfo{WarehouseID: w.ID, NamespaceID: ns.ID, Ident: TabularIdent{Name: "t"}, Kind: entity.KindTable, Protected: true}
	if err := inTx(t, s, func(tx WriteTx) error { return tx.CreateTabular(ctx, info) }); err != nil {
		t.Fatal(err)
	}

	if err := inTx(t, s, func(tx WriteTx) error { return tx.DropTabular(ctx, w.ID, info.TabularID, false) }); !errors.Is(err, ErrProtected) {
		t.Errorf("unforced drop: %v", err)
	}
	if err := inTx(t, s, func(tx WriteTx) error { return tx.DropTabular(ctx, w.ID, info.TabularID, true) }); err != nil {
		t.Errorf("forced drop: %v", err)
	}
}

func TestTransactionStates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rtx, err := s.BeginRead(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wtx, ok := rtx.(WriteTx)
	if !ok {
		t.Fatal("read transaction does not expose the writer surface")
	}
	if err := wtx.CreateWarehouse(ctx, &Warehouse{ProjectID: entity.NewProjectID(), Name: "x"}); !errors.Is(err, ErrReadOnlyTx) {
		t.Errorf("write on read tx: %v", err)
	}
	if err := rtx.Rollback(); err != nil {
		t.Errorf("Rollback: %v", err)
	}

	tx, err := s.BeginWrite(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.CreateWarehouse(ctx, &Warehouse{ProjectID: entity.NewProjectID(), Name: "y"}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, ErrTxDone) {
		t.Errorf("second commit: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("rollback after commit: %v", err)
	}
	if err := tx.CreateWarehouse(ctx, &Warehouse{ProjectID: entity.NewProjectID(), Name: "z"}); !errors.Is(err, ErrTxDone) {
		t.Errorf("write after commit: %v", err)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.BeginWrite(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w := &Warehouse{ProjectID: entity.NewProjectID(), Name: "gone"}
	if err := tx.CreateWarehouse(ctx, w); err != nil {
		t.Fatal(err)
	}
	called := false
	tx.OnCommit(func(Change) { called = true })
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("commit hook ran on rollback")
	}
	if got, _ := s.GetWarehouse(ctx, w.ID, AnyStatus, Use); got != nil {
		t.Errorf("rolled back warehouse visible: %+v", got)
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		size  int
		want  [][]int
	}{
		{"empty", nil, 3, nil},
		{"exact", []int{1, 2, 3, 4}, 2, [][]int{{1, 2}, {3, 4}}},
		{"remainder", []int{1, 2, 3}, 2, [][]int{{1, 2}, {3}}},
		{"zero size", []int{1, 2}, 0, [][]int{{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chunks(tt.items, tt.size); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("chunks = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransactionConflict(t *testing.T) {
	if !isTransactionConflict(errors.New("TransactionContext Error: Transaction conflict: cannot update")) {
		t.Error("conflict not detected")
	}
	if isTransactionConflict(errors.New("Catalog Error: table missing")) {
		t.Error("false positive")
	}
	if !errors.Is(wrapDBError(errors.New("Conflict on update")), ErrConflict) {
		t.Error("wrapDBError did not map to ErrConflict")
	}
}
