// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
)

const (
	warehouseColumns = `id, project_id, name, status, protected, version, created_at, updated_at`
	namespaceColumns = `id, warehouse_id, parent_id, ident, properties, protected, version, created_at, updated_at`
	tabularSelect    = `SELECT t.id, t.warehouse_id, t.namespace_id, n.ident, t.name, t.kind, t.state, t.protected, w.version, n.version
		FROM tabular t
		JOIN namespace n ON n.id = t.namespace_id
		JOIN warehouse w ON w.id = t.warehouse_id`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRows(rows *sql.Rows, fn func(*sql.Rows) error) error {
	defer closeQuietly(rows)
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanWarehouse(r rowScanner) (*Warehouse, error) {
	var w Warehouse
	var status string
	if err := r.Scan(&w.ID, &w.ProjectID, &w.Name, &status, &w.Protected, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Status = WarehouseStatus(status)
	return &w, nil
}

func scanNamespace(r rowScanner) (Namespace, error) {
	var ns Namespace
	var parent sql.NullString
	var ident, props string
	if err := r.Scan(&ns.ID, &ns.WarehouseID, &parent, &ident, &props, &ns.Protected, &ns.Version, &ns.CreatedAt, &ns.UpdatedAt); err != nil {
		return ns, err
	}
	if parent.Valid {
		pid, err := entity.ParseNamespaceID(parent.String)
		if err != nil {
			return ns, fmt.Errorf("namespace %s parent: %w", ns.ID, err)
		}
		ns.ParentID = &pid
	}
	if err := json.Unmarshal([]byte(ident), &ns.Ident); err != nil {
		return ns, fmt.Errorf("namespace %s ident: %w", ns.ID, err)
	}
	if err := json.Unmarshal([]byte(props), &ns.Properties); err != nil {
		return ns, fmt.Errorf("namespace %s properties: %w", ns.ID, err)
	}
	return ns, nil
}

func scanTabular(r rowScanner) (TabularInfo, error) {
	var t TabularInfo
	var nsIdent, kind, state string
	err := r.Scan(&t.TabularID, &t.WarehouseID, &t.NamespaceID, &nsIdent, &t.Ident.Name, &kind, &state,
		&t.Protected, &t.WarehouseVersion, &t.NamespaceVersion)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(nsIdent), &t.Ident.Namespace); err != nil {
		return t, fmt.Errorf("tabular %s namespace ident: %w", t.TabularID, err)
	}
	t.Kind = entity.KindTable
	if kind == entity.KindView.String() {
		t.Kind = entity.KindView
	}
	t.State = TabularState(state)
	return t, nil
}

func (t *duckTx) Warehouses(ctx context.Context, ids []entity.WarehouseID) (out map[entity.WarehouseID]*Warehouse, err error) {
	start := time.Now()
	defer func() { observe("select", "warehouse", start, err) }()

	out = make(map[entity.WarehouseID]*Warehouse, len(ids))
	for _, chunk := range chunks(ids, t.store.cfg.FetchChunkSize) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id.String()
		}
		rows, qerr := t.tx.QueryContext(ctx,
			`SELECT `+warehouseColumns+` FROM warehouse WHERE id IN (`+placeholders(len(chunk))+`)`, args...)
		if qerr != nil {
			return nil, fmt.Errorf("failed to query warehouses: %w", qerr)
		}
		err = scanRows(rows, func(r *sql.Rows) error {
			w, serr := scanWarehouse(r)
			if serr != nil {
				return serr
			}
			out[w.ID] = w
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan warehouses: %w", err)
		}
	}
	return out, nil
}

func (t *duckTx) Namespaces(ctx context.Context, warehouse entity.WarehouseID, ids []entity.NamespaceID) (map[entity.NamespaceID]Namespace, error) {
	keys := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	out := make(map[entity.NamespaceID]Namespace, len(ids))
	err := t.selectNamespaces(ctx, warehouse, "id", keys, func(ns Namespace) { out[ns.ID] = ns })
	return out, err
}

func (t *duckTx) NamespacesByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []NamespaceIdent) (map[string]Namespace, error) {
	keys := make([]any, len(idents))
	for i, ident := range idents {
		keys[i] = ident.Key()
	}
	out := make(map[string]Namespace, len(idents))
	err := t.selectNamespaces(ctx, warehouse, "ident_key", keys, func(ns Namespace) { out[ns.Ident.Key()] = ns })
	return out, err
}

func (t *duckTx) selectNamespaces(ctx context.Context, warehouse entity.WarehouseID, column string, keys []any, add func(Namespace)) (err error) {
	start := time.Now()
	defer func() { observe("select", "namespace", start, err) }()

	for _, chunk := range chunks(keys, t.store.cfg.FetchChunkSize) {
		args := append([]any{warehouse.String()}, chunk...)
		rows, qerr := t.tx.QueryContext(ctx,
			`SELECT `+namespaceColumns+` FROM namespace WHERE warehouse_id = ? AND `+column+` IN (`+placeholders(len(chunk))+`)`,
			args...)
		if qerr != nil {
			return fmt.Errorf("failed to query namespaces: %w", qerr)
		}
		err = scanRows(rows, func(r *sql.Rows) error {
			ns, serr := scanNamespace(r)
			if serr != nil {
				return serr
			}
			add(ns)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to scan namespaces: %w", err)
		}
	}
	return nil
}

func (t *duckTx) TabularsByID(ctx context.Context, warehouse entity.WarehouseID, ids []uuid.UUID, flags TabularListFlags) (map[uuid.UUID]TabularInfo, error) {
	keys := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	out := make(map[uuid.UUID]TabularInfo, len(ids))
	err := t.selectTabulars(ctx, warehouse, "t.id", keys, flags, func(info TabularInfo) { out[info.TabularID] = info })
	return out, err
}

// TabularsByIdent resolves names. When a deleted row shares a name with a
// live one the live row wins.
func (t *duckTx) TabularsByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []TabularIdent, flags TabularListFlags) (map[string]TabularInfo, error) {
	keys := make([]any, len(idents))
	for i, ident := range idents {
		keys[i] = ident.Key()
	}
	out := make(map[string]TabularInfo, len(idents))
	err := t.selectTabulars(ctx, warehouse, "t.ident_key", keys, flags, func(info TabularInfo) {
		key := info.Ident.Key()
		if prev, ok := out[key]; ok && prev.State != TabularDeleted && info.State == TabularDeleted {
			return
		}
		out[key] = info
	})
	return out, err
}

// selectTabulars feeds rows to add oldest first.
func (t *duckTx) selectTabulars(ctx context.Context, warehouse entity.WarehouseID, column string, keys []any, flags TabularListFlags, add func(TabularInfo)) (err error) {
	start := time.Now()
	defer func() { observe("select", "tabular", start, err) }()

	states := flags.states()
	if len(states) == 0 || len(keys) == 0 {
		return nil
	}
	stateArgs := make([]any, len(states))
	for i, s := range states {
		stateArgs[i] = string(s)
	}

	for _, chunk := range chunks(keys, t.store.cfg.FetchChunkSize) {
		args := append([]any{warehouse.String()}, stateArgs...)
		args = append(args, chunk...)
		query := tabularSelect + ` WHERE t.warehouse_id = ? AND t.state IN (` + placeholders(len(stateArgs)) + `) AND ` +
			column + ` IN (` + placeholders(len(chunk)) + `) ORDER BY t.updated_at`
		rows, qerr := t.tx.QueryContext(ctx, query, args...)
		if qerr != nil {
			return fmt.Errorf("failed to query tabulars: %w", qerr)
		}
		err = scanRows(rows, func(r *sql.Rows) error {
			info, serr := scanTabular(r)
			if serr != nil {
				return serr
			}
			add(info)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to scan tabulars: %w", err)
		}
	}
	return nil
}

// hierarchies loads missing ancestors of rows and assembles each row's
// hierarchy. Rows with a broken parent chain are logged and dropped.
func (t *duckTx) hierarchies(ctx context.Context, warehouse entity.WarehouseID, rows []Namespace) (map[entity.NamespaceID]NamespaceHierarchy, error) {
	byID := make(map[entity.NamespaceID]Namespace, len(rows))
	for _, ns := range rows {
		byID[ns.ID] = ns
	}

	for depth := 0; depth <= t.store.cfg.MaxNamespaceDepth; depth++ {
		var missing []entity.NamespaceID
		seen := make(map[entity.NamespaceID]bool)
		for _, ns := range byID {
			if ns.ParentID == nil {
				continue
			}
			pid := *ns.ParentID
			if _, ok := byID[pid]; !ok && !seen[pid] {
				seen[pid] = true
				missing = append(missing, pid)
			}
		}
		if len(missing) == 0 {
			break
		}
		parents, err := t.Namespaces(ctx, warehouse, missing)
		if err != nil {
			return nil, err
		}
		if len(parents) == 0 {
			break
		}
		for id, ns := range parents {
			byID[id] = ns
		}
	}

	out := make(map[entity.NamespaceID]NamespaceHierarchy, len(rows))
	for _, ns := range rows {
		h, ok := BuildHierarchy(ns, byID)
		if !ok {
			logging.Ctx(ctx).Warn().
				Str("namespace_id", ns.ID.String()).
				Str("warehouse_id", warehouse.String()).
				Msg("Namespace has a broken parent chain")
			continue
		}
		out[ns.ID] = h
	}
	return out, nil
}

// GetWarehouse returns the warehouse if it exists and its status passes the
// filter.
func (s *DuckDBStore) GetWarehouse(ctx context.Context, id entity.WarehouseID, status []WarehouseStatus, _ CachePolicy) (*Warehouse, error) {
	found, err := s.GetWarehousesByID(ctx, []entity.WarehouseID{id}, status)
	if err != nil {
		return nil, err
	}
	return found[id], nil
}

func (s *DuckDBStore) GetWarehousesByID(ctx context.Context, ids []entity.WarehouseID, status []WarehouseStatus) (map[entity.WarehouseID]*Warehouse, error) {
	var out map[entity.WarehouseID]*Warehouse
	err := s.read(ctx, func(tx *duckTx) error {
		found, err := tx.Warehouses(ctx, ids)
		if err != nil {
			return err
		}
		for id, w := range found {
			if !statusAllowed(w.Status, status) {
				delete(found, id)
			}
		}
		out = found
		return nil
	})
	return out, err
}

func (s *DuckDBStore) GetNamespaceByID(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID, policy CachePolicy) (*NamespaceHierarchy, error) {
	found, err := s.GetNamespacesByID(ctx, warehouse, []entity.NamespaceID{id}, policy)
	if err != nil {
		return nil, err
	}
	h, ok := found[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (s *DuckDBStore) GetNamespaceByIdent(ctx context.Context, warehouse entity.WarehouseID, ident NamespaceIdent, policy CachePolicy) (*NamespaceHierarchy, error) {
	found, err := s.GetNamespacesByIdent(ctx, warehouse, []NamespaceIdent{ident}, policy)
	if err != nil {
		return nil, err
	}
	h, ok := found[ident.Key()]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (s *DuckDBStore) GetNamespacesByID(ctx context.Context, warehouse entity.WarehouseID, ids []entity.NamespaceID, _ CachePolicy) (map[entity.NamespaceID]NamespaceHierarchy, error) {
	var out map[entity.NamespaceID]NamespaceHierarchy
	err := s.read(ctx, func(tx *duckTx) error {
		rows, err := tx.Namespaces(ctx, warehouse, ids)
		if err != nil {
			return err
		}
		out, err = tx.hierarchies(ctx, warehouse, namespaceValues(rows))
		return err
	})
	return out, err
}

func (s *DuckDBStore) GetNamespacesByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []NamespaceIdent, _ CachePolicy) (map[string]NamespaceHierarchy, error) {
	out := make(map[string]NamespaceHierarchy, len(idents))
	err := s.read(ctx, func(tx *duckTx) error {
		rows, err := tx.NamespacesByIdent(ctx, warehouse, idents)
		if err != nil {
			return err
		}
		byID, err := tx.hierarchies(ctx, warehouse, namespaceValues(rows))
		if err != nil {
			return err
		}
		for _, h := range byID {
			out[h.Namespace.Ident.Key()] = h
		}
		return nil
	})
	return out, err
}

func (s *DuckDBStore) GetTabularInfosByID(ctx context.Context, warehouse entity.WarehouseID, ids []uuid.UUID, flags TabularListFlags) (map[uuid.UUID]TabularInfo, error) {
	var out map[uuid.UUID]TabularInfo
	err := s.read(ctx, func(tx *duckTx) error {
		var err error
		out, err = tx.TabularsByID(ctx, warehouse, ids, flags)
		return err
	})
	return out, err
}

func (s *DuckDBStore) GetTabularInfosByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []TabularIdent, flags TabularListFlags) (map[string]TabularInfo, error) {
	var out map[string]TabularInfo
	err := s.read(ctx, func(tx *duckTx) error {
		var err error
		out, err = tx.TabularsByIdent(ctx, warehouse, idents, flags)
		return err
	})
	return out, err
}

func namespaceValues[K comparable](m map[K]Namespace) []Namespace {
	out := make([]Namespace, 0, len(m))
	for _, ns := range m {
		out = append(out, ns)
	}
	return out
}
