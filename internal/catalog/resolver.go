// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/metrics"
)

const (
	warehouseCache = "warehouse"
	namespaceCache = "namespace"

	// maxCachedDepth bounds the parent walk over cached entries.
	maxCachedDepth = 256
)

// cachedNamespace remembers the parent version seen when the row was cached.
// A hit whose parent has moved on is stale.
type cachedNamespace struct {
	ns            Namespace
	parentVersion int64
}

type identKey struct {
	warehouse entity.WarehouseID
	key       string
}

// Resolver is a Store that serves warehouses and namespaces from
// version-aware TTL caches in front of another Store. Tabular lookups and
// transactions pass through; committed write transactions evict the rows
// they touched.
type Resolver struct {
	store   Store
	enabled bool

	warehouses *versionedCache[entity.WarehouseID, Warehouse]
	namespaces *versionedCache[entity.NamespaceID, cachedNamespace]
	idents     *versionedCache[identKey, entity.NamespaceID]
}

// NewResolver wraps store. With caching disabled every read goes to store.
func NewResolver(store Store, cfg Config) *Resolver {
	r := &Resolver{store: store, enabled: cfg.CacheEnabled}
	if r.enabled {
		r.warehouses = newVersionedCache[entity.WarehouseID, Warehouse](warehouseCache, cfg.CacheTTL, cfg.CacheCapacity)
		r.namespaces = newVersionedCache[entity.NamespaceID, cachedNamespace](namespaceCache, cfg.CacheTTL, cfg.CacheCapacity)
		r.idents = newVersionedCache[identKey, entity.NamespaceID]("namespace_ident", cfg.CacheTTL, cfg.CacheCapacity)
	}
	return r
}

// Close stops the cache cleanup loops.
func (r *Resolver) Close() {
	if !r.enabled {
		return
	}
	r.warehouses.stop()
	r.namespaces.stop()
	r.idents.stop()
}

func (r *Resolver) useCache(cache string, policy CachePolicy) bool {
	if !r.enabled {
		return false
	}
	if policy.mode == cacheSkip {
		metrics.RecordCacheLookup(cache, false, "skip")
		return false
	}
	return true
}

func (r *Resolver) GetWarehouse(ctx context.Context, id entity.WarehouseID, status []WarehouseStatus, policy CachePolicy) (*Warehouse, error) {
	if !r.useCache(warehouseCache, policy) {
		w, err := r.store.GetWarehouse(ctx, id, AnyStatus, policy)
		if err != nil {
			return nil, err
		}
		r.storeWarehouse(ctx, w, policy)
		return filterWarehouse(w, status), nil
	}

	if w, ok := r.cachedWarehouse(id, policy); ok {
		return filterWarehouse(&w, status), nil
	}
	w, err := r.store.GetWarehouse(ctx, id, AnyStatus, policy)
	if err != nil {
		return nil, err
	}
	r.storeWarehouse(ctx, w, policy)
	return filterWarehouse(w, status), nil
}

// GetWarehousesByID serves cached rows and fetches the rest in one call.
func (r *Resolver) GetWarehousesByID(ctx context.Context, ids []entity.WarehouseID, status []WarehouseStatus) (map[entity.WarehouseID]*Warehouse, error) {
	out := make(map[entity.WarehouseID]*Warehouse, len(ids))
	var missing []entity.WarehouseID
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		if r.enabled {
			if w, ok := r.cachedWarehouse(id, Use); ok {
				out[id] = &w
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		fetched, err := r.store.GetWarehousesByID(ctx, missing, AnyStatus)
		if err != nil {
			return nil, err
		}
		for id, w := range fetched {
			r.storeWarehouse(ctx, w, Use)
			out[id] = w
		}
	}
	for id, w := range out {
		if !statusAllowed(w.Status, status) {
			delete(out, id)
		}
	}
	return out, nil
}

func (r *Resolver) cachedWarehouse(id entity.WarehouseID, policy CachePolicy) (Warehouse, bool) {
	w, version, ok := r.warehouses.get(id)
	switch {
	case !ok:
		metrics.RecordCacheLookup(warehouseCache, false, "absent")
		return Warehouse{}, false
	case !policy.Accepts(version):
		metrics.RecordCacheLookup(warehouseCache, false, "stale")
		return Warehouse{}, false
	}
	metrics.RecordCacheLookup(warehouseCache, true, "")
	return w, true
}

func (r *Resolver) storeWarehouse(ctx context.Context, w *Warehouse, policy CachePolicy) {
	if w == nil {
		return
	}
	if required := policy.MinVersion(); w.Version < required {
		logging.Ctx(ctx).Warn().
			Str("warehouse_id", w.ID.String()).
			Int64("version", w.Version).
			Int64("required_version", required).
			Msg("Store returned an older warehouse than required")
	}
	if r.enabled {
		r.warehouses.set(w.ID, *w, w.Version)
	}
}

func filterWarehouse(w *Warehouse, status []WarehouseStatus) *Warehouse {
	if w == nil || !statusAllowed(w.Status, status) {
		return nil
	}
	cp := *w
	return &cp
}

func (r *Resolver) GetNamespaceByID(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID, policy CachePolicy) (*NamespaceHierarchy, error) {
	found, err := r.GetNamespacesByID(ctx, warehouse, []entity.NamespaceID{id}, policy)
	if err != nil {
		return nil, err
	}
	h, ok := found[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (r *Resolver) GetNamespaceByIdent(ctx context.Context, warehouse entity.WarehouseID, ident NamespaceIdent, policy CachePolicy) (*NamespaceHierarchy, error) {
	found, err := r.GetNamespacesByIdent(ctx, warehouse, []NamespaceIdent{ident}, policy)
	if err != nil {
		return nil, err
	}
	h, ok := found[ident.Key()]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// GetNamespacesByID applies policy to each requested namespace. Ancestors
// only need to match the parent versions recorded with the cached child.
func (r *Resolver) GetNamespacesByID(ctx context.Context, warehouse entity.WarehouseID, ids []entity.NamespaceID, policy CachePolicy) (map[entity.NamespaceID]NamespaceHierarchy, error) {
	out := make(map[entity.NamespaceID]NamespaceHierarchy, len(ids))
	var missing []entity.NamespaceID
	cached := r.useCache(namespaceCache, policy)
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		if cached {
			if h, ok := r.cachedHierarchy(id, warehouse, policy); ok {
				out[id] = h
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := r.store.GetNamespacesByID(ctx, warehouse, missing, policy)
	if err != nil {
		return nil, err
	}
	for id, h := range fetched {
		r.storeHierarchy(ctx, h, policy)
		out[id] = h
	}
	return out, nil
}

func (r *Resolver) GetNamespacesByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []NamespaceIdent, policy CachePolicy) (map[string]NamespaceHierarchy, error) {
	out := make(map[string]NamespaceHierarchy, len(idents))
	var missing []NamespaceIdent
	cached := r.useCache(namespaceCache, policy)
	for _, ident := range idents {
		key := ident.Key()
		if _, done := out[key]; done {
			continue
		}
		if cached {
			if id, _, ok := r.idents.get(identKey{warehouse, key}); ok {
				if h, ok := r.cachedHierarchy(id, warehouse, policy); ok && h.Namespace.Ident.Equal(ident) {
					out[key] = h
					continue
				}
			} else {
				metrics.RecordCacheLookup(namespaceCache, false, "absent")
			}
		}
		missing = append(missing, ident)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := r.store.GetNamespacesByIdent(ctx, warehouse, missing, policy)
	if err != nil {
		return nil, err
	}
	for key, h := range fetched {
		r.storeHierarchy(ctx, h, policy)
		out[key] = h
	}
	return out, nil
}

// cachedHierarchy rebuilds a hierarchy from cached rows. A missing parent,
// a parent at a different version or a parent whose ident no longer
// prefixes the child's evicts the child.
func (r *Resolver) cachedHierarchy(id entity.NamespaceID, warehouse entity.WarehouseID, policy CachePolicy) (NamespaceHierarchy, bool) {
	entry, version, ok := r.namespaces.get(id)
	if !ok || entry.ns.WarehouseID != warehouse {
		metrics.RecordCacheLookup(namespaceCache, false, "absent")
		return NamespaceHierarchy{}, false
	}
	if !policy.Accepts(version) {
		metrics.RecordCacheLookup(namespaceCache, false, "stale")
		return NamespaceHierarchy{}, false
	}

	h := NamespaceHierarchy{Namespace: entry.ns}
	cur := entry
	for depth := 0; cur.ns.ParentID != nil; depth++ {
		parent, _, ok := r.namespaces.get(*cur.ns.ParentID)
		if !ok || depth >= maxCachedDepth ||
			parent.ns.Version != cur.parentVersion ||
			!parent.ns.Ident.Equal(cur.ns.Ident.Parent()) {
			r.invalidateNamespace(id)
			metrics.RecordCacheLookup(namespaceCache, false, "stale")
			return NamespaceHierarchy{}, false
		}
		h.Parents = append(h.Parents, parent.ns)
		cur = parent
	}
	metrics.RecordCacheLookup(namespaceCache, true, "")
	return h, true
}

func (r *Resolver) storeHierarchy(ctx context.Context, h NamespaceHierarchy, policy CachePolicy) {
	if required := policy.MinVersion(); h.Namespace.Version < required {
		logging.Ctx(ctx).Warn().
			Str("namespace_id", h.Namespace.ID.String()).
			Int64("version", h.Namespace.Version).
			Int64("required_version", required).
			Msg("Store returned an older namespace than required")
	}
	if !r.enabled {
		return
	}
	chain := append([]Namespace{h.Namespace}, h.Parents...)
	for i, ns := range chain {
		var parentVersion int64
		if i+1 < len(chain) {
			parentVersion = chain[i+1].Version
		}
		if r.namespaces.set(ns.ID, cachedNamespace{ns: ns, parentVersion: parentVersion}, ns.Version) {
			r.idents.put(identKey{ns.WarehouseID, ns.Ident.Key()}, ns.ID, ns.Version)
		}
	}
}

func (r *Resolver) invalidateNamespace(id entity.NamespaceID) {
	if entry, _, ok := r.namespaces.get(id); ok {
		key := identKey{entry.ns.WarehouseID, entry.ns.Ident.Key()}
		if mapped, _, ok := r.idents.get(key); ok && mapped == id {
			r.idents.invalidate(key)
		}
	}
	r.namespaces.invalidate(id)
}

// Invalidate evicts the rows in c.
func (r *Resolver) Invalidate(c Change) {
	if !r.enabled {
		return
	}
	for _, id := range c.Warehouses {
		r.warehouses.invalidate(id)
	}
	for _, id := range c.Namespaces {
		r.invalidateNamespace(id)
	}
}

func (r *Resolver) GetTabularInfosByID(ctx context.Context, warehouse entity.WarehouseID, ids []uuid.UUID, flags TabularListFlags) (map[uuid.UUID]TabularInfo, error) {
	return r.store.GetTabularInfosByID(ctx, warehouse, ids, flags)
}

func (r *Resolver) GetTabularInfosByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []TabularIdent, flags TabularListFlags) (map[string]TabularInfo, error) {
	return r.store.GetTabularInfosByIdent(ctx, warehouse, idents, flags)
}

func (r *Resolver) BeginRead(ctx context.Context) (ReadTx, error) {
	return r.store.BeginRead(ctx)
}

// BeginWrite returns a transaction whose commit evicts the rows it changed.
func (r *Resolver) BeginWrite(ctx context.Context) (WriteTx, error) {
	tx, err := r.store.BeginWrite(ctx)
	if err != nil {
		return nil, err
	}
	tx.OnCommit(r.Invalidate)
	return tx, nil
}
