// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package check

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/metrics"
)

// Authorizer evaluates one group of same-kind checks and returns one answer
// per check, in order. *authz.Engine implements it.
type Authorizer interface {
	AreAllowedServerActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, actions []entity.ServerAction) ([]bool, error)
	AreAllowedProjectActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, items []authz.ProjectCheck) ([]bool, error)
	AreAllowedWarehouseActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, items []authz.WarehouseCheck) ([]bool, error)
	AreAllowedNamespaceActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, warehouse *catalog.Warehouse, namespaces map[entity.NamespaceID]catalog.NamespaceHierarchy, items []authz.NamespaceCheck) ([]bool, error)
	AreAllowedTableActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, warehouse *catalog.Warehouse, namespaces map[entity.NamespaceID]catalog.NamespaceHierarchy, items []authz.TableCheck) ([]bool, error)
	AreAllowedViewActions(ctx context.Context, meta entity.RequestMetadata, forUser *entity.UserOrRole, warehouse *catalog.Warehouse, namespaces map[entity.NamespaceID]catalog.NamespaceHierarchy, items []authz.ViewCheck) ([]bool, error)
}

// Checker runs batch permission requests against a catalog store.
type Checker struct {
	authz Authorizer
	store catalog.Store
}

func NewChecker(a Authorizer, store catalog.Store) *Checker {
	return &Checker{authz: a, store: store}
}

// Check answers every item of req. The response has one result per item in
// request order. Items whose target does not exist answer false unless
// req.ErrorOnNotFound is set, in which case a missing target, or one the
// caller cannot see, fails the whole request with a *catalog.NotFoundError.
func (c *Checker) Check(ctx context.Context, meta entity.RequestMetadata, req CheckRequest) (resp *CheckResponse, err error) {
	start := time.Now()
	defer func() { metrics.RecordBatchCheck(len(req.Checks), time.Since(start), err) }()

	if len(req.Checks) > MaxChecks {
		return nil, fmt.Errorf("%w: got %d, limit is %d", ErrTooManyChecks, len(req.Checks), MaxChecks)
	}
	p, err := newPlan(meta, req.Checks)
	if err != nil {
		return nil, err
	}

	r := newRun(c, meta, p, req.ErrorOnNotFound)
	if err := r.fetchTabulars(ctx); err != nil {
		return nil, err
	}
	if err := r.fetchContainers(ctx); err != nil {
		return nil, err
	}
	allowed := make([]bool, len(req.Checks))
	if err := r.authorize(ctx, allowed); err != nil {
		return nil, err
	}

	resp = &CheckResponse{Results: make([]CheckResult, len(req.Checks))}
	for i, item := range req.Checks {
		resp.Results[i] = CheckResult{ID: item.ID, Allowed: allowed[i]}
	}
	logging.Ctx(ctx).Debug().
		Int("checks", len(req.Checks)).
		Int("warehouses", len(p.seen)).
		Dur("duration", time.Since(start)).
		Msg("Batch check completed")
	return resp, nil
}

type indexed[T any] struct {
	index int
	item  T
}

// groupKey scopes a group to one warehouse and one principal. The zero
// principal means the caller.
type groupKey struct {
	warehouse entity.WarehouseID
	who       entity.UserOrRole
}

type projectKey struct {
	project entity.ProjectID
	who     entity.UserOrRole
}

// plan is a request split into per-kind groups.
type plan struct {
	server    map[entity.UserOrRole][]indexed[entity.ServerAction]
	project   map[projectKey][]indexed[entity.ProjectAction]
	warehouse map[groupKey][]indexed[entity.WarehouseAction]
	namespace map[groupKey][]indexed[NamespaceOp]
	table     map[groupKey][]indexed[TableOp]
	view      map[groupKey][]indexed[ViewOp]
	seen      map[entity.WarehouseID]struct{}
}

func newPlan(meta entity.RequestMetadata, items []CheckItem) (*plan, error) {
	p := &plan{
		server:    make(map[entity.UserOrRole][]indexed[entity.ServerAction]),
		project:   make(map[projectKey][]indexed[entity.ProjectAction]),
		warehouse: make(map[groupKey][]indexed[entity.WarehouseAction]),
		namespace: make(map[groupKey][]indexed[NamespaceOp]),
		table:     make(map[groupKey][]indexed[TableOp]),
		view:      make(map[groupKey][]indexed[ViewOp]),
		seen:      make(map[entity.WarehouseID]struct{}),
	}
	for i, item := range items {
		who := principalFor(meta.Actor, item.Identity)
		switch op := item.Operation.(type) {
		case ServerOp:
			add(p.server, who, i, op.Action)
		case ProjectOp:
			project := op.Project
			if project == nil {
				project = meta.PreferredProject
			}
			if project == nil {
				return nil, fmt.Errorf("%w: check %d names no project and the request has no default project", ErrBadRequest, i)
			}
			add(p.project, projectKey{*project, who}, i, op.Action)
		case WarehouseOp:
			p.seen[op.Warehouse] = struct{}{}
			add(p.warehouse, groupKey{op.Warehouse, who}, i, op.Action)
		case NamespaceOp:
			p.seen[op.Warehouse] = struct{}{}
			add(p.namespace, groupKey{op.Warehouse, who}, i, op)
		case TableOp:
			p.seen[op.Table.Warehouse] = struct{}{}
			add(p.table, groupKey{op.Table.Warehouse, who}, i, op)
		case ViewOp:
			p.seen[op.View.Warehouse] = struct{}{}
			add(p.view, groupKey{op.View.Warehouse, who}, i, op)
		default:
			return nil, fmt.Errorf("%w: check %d has no operation", ErrBadRequest, i)
		}
	}
	return p, nil
}

func add[K comparable, T any](m map[K][]indexed[T], key K, index int, item T) {
	m[key] = append(m[key], indexed[T]{index: index, item: item})
}

func unzip[T any](items []indexed[T]) ([]int, []T) {
	indices := make([]int, len(items))
	values := make([]T, len(items))
	for i, it := range items {
		indices[i], values[i] = it.index, it.item
	}
	return indices, values
}

// principalFor drops an identity that is the caller itself.
func principalFor(actor entity.Actor, identity *entity.UserOrRole) entity.UserOrRole {
	if identity == nil {
		return entity.UserOrRole{}
	}
	if self, ok := actor.AsUserOrRole(); ok && self == *identity {
		return entity.UserOrRole{}
	}
	return *identity
}

func forUser(who entity.UserOrRole) *entity.UserOrRole {
	if who.IsZero() {
		return nil
	}
	return &who
}

// run holds the resolved catalog state of one request. The fetch phases
// write under mu; authorize only reads.
type run struct {
	*Checker
	meta            entity.RequestMetadata
	plan            *plan
	errorOnNotFound bool

	mu              sync.Mutex
	tabularsByID    map[entity.WarehouseID]map[uuid.UUID]catalog.TabularInfo
	tabularsByIdent map[entity.WarehouseID]map[string]catalog.TabularInfo
	minWarehouse    map[entity.WarehouseID]int64
	minNamespace    map[entity.NamespaceID]int64
	warehouses      map[entity.WarehouseID]*catalog.Warehouse
	namespaces      map[entity.WarehouseID]map[entity.NamespaceID]catalog.NamespaceHierarchy
	nsByIdent       map[entity.WarehouseID]map[string]entity.NamespaceID
}

func newRun(c *Checker, meta entity.RequestMetadata, p *plan, errorOnNotFound bool) *run {
	return &run{
		Checker:         c,
		meta:            meta,
		plan:            p,
		errorOnNotFound: errorOnNotFound,
		tabularsByID:    make(map[entity.WarehouseID]map[uuid.UUID]catalog.TabularInfo),
		tabularsByIdent: make(map[entity.WarehouseID]map[string]catalog.TabularInfo),
		minWarehouse:    make(map[entity.WarehouseID]int64),
		minNamespace:    make(map[entity.NamespaceID]int64),
		warehouses:      make(map[entity.WarehouseID]*catalog.Warehouse),
		namespaces:      make(map[entity.WarehouseID]map[entity.NamespaceID]catalog.NamespaceHierarchy),
		nsByIdent:       make(map[entity.WarehouseID]map[string]entity.NamespaceID),
	}
}

// fetchTabulars resolves every table and view reference, one task per
// warehouse and addressing mode, and records the highest warehouse and
// namespace versions the rows were read at.
func (r *run) fetchTabulars(ctx context.Context) error {
	ids := make(map[entity.WarehouseID]map[uuid.UUID]struct{})
	idents := make(map[entity.WarehouseID]map[string]catalog.TabularIdent)
	collect := func(ref TabularRef) {
		if ref.ID != nil {
			if ids[ref.Warehouse] == nil {
				ids[ref.Warehouse] = make(map[uuid.UUID]struct{})
			}
			ids[ref.Warehouse][*ref.ID] = struct{}{}
			return
		}
		if idents[ref.Warehouse] == nil {
			idents[ref.Warehouse] = make(map[string]catalog.TabularIdent)
		}
		idents[ref.Warehouse][ref.Ident.Key()] = ref.Ident
	}
	for _, items := range r.plan.table {
		for _, it := range items {
			collect(it.item.Table)
		}
	}
	for _, items := range r.plan.view {
		for _, it := range items {
			collect(it.item.View)
		}
	}
	if len(ids) == 0 && len(idents) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for wh, set := range ids {
		list := slices.Collect(maps.Keys(set))
		g.Go(func() error {
			found, err := r.store.GetTabularInfosByID(gctx, wh, list, catalog.AllTabulars())
			if err != nil {
				return fmt.Errorf("failed to fetch tabulars by id in warehouse %s: %w", wh, err)
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			r.tabularsByID[wh] = found
			for _, info := range found {
				r.noteVersions(info)
			}
			return nil
		})
	}
	for wh, set := range idents {
		list := slices.Collect(maps.Values(set))
		g.Go(func() error {
			found, err := r.store.GetTabularInfosByIdent(gctx, wh, list, catalog.AllTabulars())
			if err != nil {
				return fmt.Errorf("failed to fetch tabulars by name in warehouse %s: %w", wh, err)
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			r.tabularsByIdent[wh] = found
			for _, info := range found {
				r.noteVersions(info)
			}
			return nil
		})
	}
	return g.Wait()
}

// noteVersions raises the version floors to what info was read at. Caller
// holds mu.
func (r *run) noteVersions(info catalog.TabularInfo) {
	r.minWarehouse[info.WarehouseID] = max(r.minWarehouse[info.WarehouseID], info.WarehouseVersion)
	r.minNamespace[info.NamespaceID] = max(r.minNamespace[info.NamespaceID], info.NamespaceVersion)
}

type namespaceRequest struct {
	ids    map[entity.NamespaceID]struct{}
	idents map[string]catalog.NamespaceIdent
}

// namespaceRequests lists, per warehouse, the namespaces named by checks and
// the namespaces holding resolved tabulars.
func (r *run) namespaceRequests() map[entity.WarehouseID]*namespaceRequest {
	out := make(map[entity.WarehouseID]*namespaceRequest)
	get := func(wh entity.WarehouseID) *namespaceRequest {
		req := out[wh]
		if req == nil {
			req = &namespaceRequest{
				ids:    make(map[entity.NamespaceID]struct{}),
				idents: make(map[string]catalog.NamespaceIdent),
			}
			out[wh] = req
		}
		return req
	}
	for key, items := range r.plan.namespace {
		req := get(key.warehouse)
		for _, it := range items {
			if it.item.ID != nil {
				req.ids[*it.item.ID] = struct{}{}
			} else {
				req.idents[it.item.Ident.Key()] = it.item.Ident
			}
		}
	}
	for wh, found := range r.tabularsByID {
		for _, info := range found {
			get(wh).ids[info.NamespaceID] = struct{}{}
		}
	}
	for wh, found := range r.tabularsByIdent {
		for _, info := range found {
			get(wh).ids[info.NamespaceID] = struct{}{}
		}
	}
	return out
}

// fetchContainers resolves warehouses and namespaces in parallel, honoring
// the floors collected by fetchTabulars.
func (r *run) fetchContainers(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for wh := range r.plan.seen {
		g.Go(func() error { return r.fetchWarehouse(gctx, wh) })
	}
	for wh, req := range r.namespaceRequests() {
		g.Go(func() error { return r.fetchNamespaces(gctx, wh, req) })
	}
	return g.Wait()
}

func (r *run) fetchWarehouse(ctx context.Context, id entity.WarehouseID) error {
	policy := catalog.Use
	if v, ok := r.minWarehouse[id]; ok {
		policy = catalog.RequireMinimumVersion(v)
	}
	w, err := r.store.GetWarehouse(ctx, id, catalog.AnyStatus, policy)
	if err != nil {
		return fmt.Errorf("failed to fetch warehouse %s: %w", id, err)
	}
	if w == nil {
		if r.errorOnNotFound {
			return &catalog.NotFoundError{Kind: "warehouse", ID: id.String()}
		}
		logging.Ctx(ctx).Debug().
			Str("warehouse_id", id.String()).
			Msg("Warehouse not found, denying all checks inside it")
		return nil
	}
	r.mu.Lock()
	r.warehouses[id] = w
	r.mu.Unlock()
	return nil
}

func (r *run) fetchNamespaces(ctx context.Context, wh entity.WarehouseID, req *namespaceRequest) error {
	found := make(map[entity.NamespaceID]catalog.NamespaceHierarchy)
	byIdent := make(map[string]entity.NamespaceID)

	if len(req.idents) > 0 {
		hs, err := r.store.GetNamespacesByIdent(ctx, wh, slices.Collect(maps.Values(req.idents)), catalog.Use)
		if err != nil {
			return fmt.Errorf("failed to fetch namespaces by name in warehouse %s: %w", wh, err)
		}
		for key, h := range hs {
			found[h.Namespace.ID] = h
			byIdent[key] = h.Namespace.ID
		}
	}
	if len(req.ids) > 0 {
		hs, err := r.store.GetNamespacesByID(ctx, wh, slices.Collect(maps.Keys(req.ids)), catalog.Use)
		if err != nil {
			return fmt.Errorf("failed to fetch namespaces by id in warehouse %s: %w", wh, err)
		}
		maps.Copy(found, hs)
	}

	// Rows older than a tabular's namespace version get one refetch.
	for id, h := range found {
		required, ok := r.minNamespace[id]
		if !ok || h.Namespace.Version >= required {
			continue
		}
		fresh, err := r.store.GetNamespaceByID(ctx, wh, id, catalog.RequireMinimumVersion(required))
		if err != nil {
			return fmt.Errorf("failed to refetch namespace %s: %w", id, err)
		}
		if fresh == nil {
			delete(found, id)
			continue
		}
		found[id] = *fresh
	}

	r.mu.Lock()
	r.namespaces[wh] = found
	r.nsByIdent[wh] = byIdent
	r.mu.Unlock()
	return nil
}

func (r *run) namespaceID(wh entity.WarehouseID, op NamespaceOp) (entity.NamespaceID, bool) {
	var id entity.NamespaceID
	if op.ID != nil {
		id = *op.ID
	} else if byIdent, ok := r.nsByIdent[wh][op.Ident.Key()]; ok {
		id = byIdent
	} else {
		return id, false
	}
	_, ok := r.namespaces[wh][id]
	return id, ok
}

// tabular looks up a resolved table or view. A row of the other kind, or
// one whose namespace did not resolve, counts as missing.
func (r *run) tabular(ref TabularRef, kind entity.TabularKind) (catalog.TabularInfo, bool) {
	var (
		info catalog.TabularInfo
		ok   bool
	)
	if ref.ID != nil {
		info, ok = r.tabularsByID[ref.Warehouse][*ref.ID]
	} else {
		info, ok = r.tabularsByIdent[ref.Warehouse][ref.Ident.Key()]
	}
	if !ok || info.Kind != kind {
		return catalog.TabularInfo{}, false
	}
	if _, ok := r.namespaces[ref.Warehouse][info.NamespaceID]; !ok {
		return catalog.TabularInfo{}, false
	}
	return info, true
}

func namespaceLabel(op NamespaceOp) string {
	if op.ID != nil {
		return op.ID.String()
	}
	return op.Ident.String()
}

func tabularLabel(ref TabularRef) string {
	if ref.ID != nil {
		return ref.ID.String()
	}
	return ref.Ident.String()
}
