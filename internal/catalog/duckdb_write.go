// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

func (t *duckTx) CreateWarehouse(ctx context.Context, w *Warehouse) (err error) {
	if err := t.writable(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observe("insert", "warehouse", start, err) }()

	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: empty warehouse name", ErrInvalidIdentifier)
	}
	var taken int
	err = t.tx.QueryRowContext(ctx,
		`SELECT count(*) FROM warehouse WHERE project_id = ? AND lower(name) = lower(?)`,
		w.ProjectID.String(), w.Name).Scan(&taken)
	if err != nil {
		return fmt.Errorf("failed to check warehouse name: %w", err)
	}
	if taken > 0 {
		return fmt.Errorf("%w: warehouse %q", ErrAlreadyExists, w.Name)
	}

	if w.ID == (entity.WarehouseID{}) {
		w.ID = entity.NewWarehouseID()
	}
	if w.Status == "" {
		w.Status = WarehouseActive
	}
	now := time.Now().UTC()
	w.Version, w.CreatedAt, w.UpdatedAt = 1, now, now

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO warehouse (`+warehouseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID.String(), w.ProjectID.String(), w.Name, string(w.Status), w.Protected, w.Version, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return insertError("warehouse", err)
	}
	t.change.addWarehouse(w.ID)
	return nil
}

func (t *duckTx) SetWarehouseStatus(ctx context.Context, id entity.WarehouseID, status WarehouseStatus) (w *Warehouse, err error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { observe("update", "warehouse", start, err) }()

	row := t.tx.QueryRowContext(ctx,
		`UPDATE warehouse SET status = ?, version = version + 1, updated_at = ? WHERE id = ? RETURNING `+warehouseColumns,
		string(status), time.Now().UTC(), id.String())
	w, err = scanWarehouse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "warehouse", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update warehouse status: %w", wrapDBError(err))
	}
	t.change.addWarehouse(id)
	return w, nil
}

// CreateNamespace inserts ns under its parent ident. ParentID is derived
// from the ident and any preset value is ignored.
func (t *duckTx) CreateNamespace(ctx context.Context, ns *Namespace) (err error) {
	if err := t.writable(); err != nil {
		return err
	}
	if err := ns.Ident.Validate(t.store.cfg.MaxNamespaceDepth); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observe("insert", "namespace", start, err) }()

	warehouses, err := t.Warehouses(ctx, []entity.WarehouseID{ns.WarehouseID})
	if err != nil {
		return err
	}
	if warehouses[ns.WarehouseID] == nil {
		return &NotFoundError{Kind: "warehouse", ID: ns.WarehouseID.String()}
	}

	idents := []NamespaceIdent{ns.Ident}
	parentIdent := ns.Ident.Parent()
	if len(parentIdent) > 0 {
		idents = append(idents, parentIdent)
	}
	existing, err := t.NamespacesByIdent(ctx, ns.WarehouseID, idents)
	if err != nil {
		return err
	}
	if _, ok := existing[ns.Ident.Key()]; ok {
		return fmt.Errorf("%w: namespace %s", ErrAlreadyExists, ns.Ident)
	}
	ns.ParentID = nil
	if len(parentIdent) > 0 {
		parent, ok := existing[parentIdent.Key()]
		if !ok {
			return &NotFoundError{Kind: "namespace", ID: parentIdent.String()}
		}
		ns.ParentID = &parent.ID
	}

	if ns.ID == (entity.NamespaceID{}) {
		ns.ID = entity.NewNamespaceID()
	}
	if ns.Properties == nil {
		ns.Properties = map[string]string{}
	}
	now := time.Now().UTC()
	ns.Version, ns.CreatedAt, ns.UpdatedAt = 1, now, now

	ident, err := json.Marshal(ns.Ident)
	if err != nil {
		return fmt.Errorf("failed to encode namespace ident: %w", err)
	}
	props, err := json.Marshal(ns.Properties)
	if err != nil {
		return fmt.Errorf("failed to encode namespace properties: %w", err)
	}
	var parentID any
	if ns.ParentID != nil {
		parentID = ns.ParentID.String()
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO namespace (id, warehouse_id, parent_id, ident, ident_key, properties, protected, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ns.ID.String(), ns.WarehouseID.String(), parentID, string(ident), ns.Ident.Key(), string(props),
		ns.Protected, ns.Version, ns.CreatedAt, ns.UpdatedAt)
	if err != nil {
		return insertError("namespace", err)
	}
	t.change.addNamespace(ns.ID)
	return nil
}

// DropNamespace removes an empty namespace. Soft-deleted tabulars inside it
// are purged with it; live tabulars or child namespaces block the drop.
func (t *duckTx) DropNamespace(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID, force bool) (err error) {
	if err := t.writable(); err != nil {
		return err
	}
	ns, err := t.namespace(ctx, warehouse, id)
	if err != nil {
		return err
	}
	if ns.Protected && !force {
		return fmt.Errorf("%w: namespace %s", ErrProtected, ns.Ident)
	}

	start := time.Now()
	defer func() { observe("delete", "namespace", start, err) }()

	var children int
	err = t.tx.QueryRowContext(ctx,
		`SELECT (SELECT count(*) FROM namespace WHERE parent_id = ?) +
		        (SELECT count(*) FROM tabular WHERE namespace_id = ? AND state <> ?)`,
		id.String(), id.String(), string(TabularDeleted)).Scan(&children)
	if err != nil {
		return fmt.Errorf("failed to count namespace children: %w", err)
	}
	if children > 0 {
		return fmt.Errorf("%w: %s", ErrNamespaceNotEmpty, ns.Ident)
	}

	if _, err = t.tx.ExecContext(ctx, `DELETE FROM tabular WHERE namespace_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to purge deleted tabulars: %w", wrapDBError(err))
	}
	if _, err = t.tx.ExecContext(ctx, `DELETE FROM namespace WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", wrapDBError(err))
	}
	t.change.addNamespace(id)
	return nil
}

func (t *duckTx) SetNamespaceProtection(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID, protected bool) (ns *Namespace, err error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { observe("update", "namespace", start, err) }()

	row := t.tx.QueryRowContext(ctx,
		`UPDATE namespace SET protected = ?, version = version + 1, updated_at = ?
		 WHERE warehouse_id = ? AND id = ? RETURNING `+namespaceColumns,
		protected, time.Now().UTC(), warehouse.String(), id.String())
	return t.updatedNamespace(row, id)
}

// UpdateNamespaceProperties applies updates, then removals.
func (t *duckTx) UpdateNamespaceProperties(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID, updates map[string]string, removals []string) (_ *Namespace, err error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	current, err := t.namespace(ctx, warehouse, id)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { observe("update", "namespace", start, err) }()

	props := make(map[string]string, len(current.Properties)+len(updates))
	for k, v := range current.Properties {
		props[k] = v
	}
	for k, v := range updates {
		props[k] = v
	}
	for _, k := range removals {
		delete(props, k)
	}
	encoded, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to encode namespace properties: %w", err)
	}

	row := t.tx.QueryRowContext(ctx,
		`UPDATE namespace SET properties = ?, version = version + 1, updated_at = ?
		 WHERE warehouse_id = ? AND id = ? RETURNING `+namespaceColumns,
		string(encoded), time.Now().UTC(), warehouse.String(), id.String())
	return t.updatedNamespace(row, id)
}

func (t *duckTx) updatedNamespace(row *sql.Row, id entity.NamespaceID) (*Namespace, error) {
	ns, err := scanNamespace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "namespace", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update namespace: %w", wrapDBError(err))
	}
	t.change.addNamespace(id)
	return &ns, nil
}

func (t *duckTx) namespace(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID) (Namespace, error) {
	found, err := t.Namespaces(ctx, warehouse, []entity.NamespaceID{id})
	if err != nil {
		return Namespace{}, err
	}
	ns, ok := found[id]
	if !ok {
		return Namespace{}, &NotFoundError{Kind: "namespace", ID: id.String()}
	}
	return ns, nil
}

// CreateTabular inserts a table or view into an existing namespace. Names
// are unique per namespace among non-deleted tabulars of either kind.
func (t *duckTx) CreateTabular(ctx context.Context, info *TabularInfo) (err error) {
	if err := t.writable(); err != nil {
		return err
	}
	if strings.TrimSpace(info.Ident.Name) == "" || strings.ContainsRune(info.Ident.Name, '\x1e') {
		return fmt.Errorf("%w: tabular name %q", ErrInvalidIdentifier, info.Ident.Name)
	}
	ns, err := t.namespace(ctx, info.WarehouseID, info.NamespaceID)
	if err != nil {
		return err
	}
	warehouses, err := t.Warehouses(ctx, []entity.WarehouseID{info.WarehouseID})
	if err != nil {
		return err
	}
	w := warehouses[info.WarehouseID]
	if w == nil {
		return &NotFoundError{Kind: "warehouse", ID: info.WarehouseID.String()}
	}
	info.Ident.Namespace = ns.Ident

	start := time.Now()
	defer func() { observe("insert", "tabular", start, err) }()

	var taken int
	err = t.tx.QueryRowContext(ctx,
		`SELECT count(*) FROM tabular WHERE warehouse_id = ? AND ident_key = ? AND state <> ?`,
		info.WarehouseID.String(), info.Ident.Key(), string(TabularDeleted)).Scan(&taken)
	if err != nil {
		return fmt.Errorf("failed to check tabular name: %w", err)
	}
	if taken > 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, info.Ident)
	}

	if info.TabularID == uuid.Nil {
		info.TabularID = uuid.Must(uuid.NewV7())
	}
	if info.State == "" {
		info.State = TabularActive
	}
	info.WarehouseVersion, info.NamespaceVersion = w.Version, ns.Version
	now := time.Now().UTC()

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO tabular (id, warehouse_id, namespace_id, name, ident_key, kind, state, protected, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.TabularID.String(), info.WarehouseID.String(), info.NamespaceID.String(), info.Ident.Name,
		info.Ident.Key(), info.Kind.String(), string(info.State), info.Protected, now, now)
	if err != nil {
		return insertError("tabular", err)
	}
	return nil
}

// DropTabular soft-deletes a table or view.
func (t *duckTx) DropTabular(ctx context.Context, warehouse entity.WarehouseID, id uuid.UUID, force bool) (err error) {
	if err := t.writable(); err != nil {
		return err
	}
	found, err := t.TabularsByID(ctx, warehouse, []uuid.UUID{id}, TabularListFlags{IncludeActive: true, IncludeStaged: true})
	if err != nil {
		return err
	}
	info, ok := found[id]
	if !ok {
		return &NotFoundError{Kind: "tabular", ID: id.String()}
	}
	if info.Protected && !force {
		return fmt.Errorf("%w: %s %s", ErrProtected, info.Kind, info.Ident)
	}

	start := time.Now()
	defer func() { observe("update", "tabular", start, err) }()

	now := time.Now().UTC()
	_, err = t.tx.ExecContext(ctx,
		`UPDATE tabular SET state = ?, updated_at = ?, deleted_at = ? WHERE id = ?`,
		string(TabularDeleted), now, now, id.String())
	if err != nil {
		return fmt.Errorf("failed to drop tabular: %w", wrapDBError(err))
	}
	return nil
}

func insertError(table string, err error) error {
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %s: %v", ErrAlreadyExists, table, err)
	}
	return fmt.Errorf("failed to insert %s: %w", table, wrapDBError(err))
}
