// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package check

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

type evalFunc[C any] func(ctx context.Context, forUser *entity.UserOrRole, checks []C) ([]bool, error)

// batchGroup is one authorization call. probes are get_metadata checks run
// for the caller when the request wants absent targets reported; a false
// probe fails the request with the matching hidden error, so a target the
// caller cannot see looks the same as one that does not exist.
type batchGroup[C any] struct {
	who     entity.UserOrRole
	indices []int
	checks  []C
	probes  []C
	hidden  []error
	seen    map[string]bool
}

func (g *batchGroup[C]) addCheck(index int, c C) {
	g.indices = append(g.indices, index)
	g.checks = append(g.checks, c)
}

// addProbe queues a visibility check for object once.
func (g *batchGroup[C]) addProbe(object string, c C, hidden error) {
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[object] {
		return
	}
	g.seen[object] = true
	g.probes = append(g.probes, c)
	g.hidden = append(g.hidden, hidden)
}

func (g *batchGroup[C]) task(allowed []bool, eval evalFunc[C]) func(context.Context) error {
	return func(ctx context.Context) error {
		// Probes share the call when the group already runs as the caller.
		merged := g.who.IsZero() && len(g.probes) > 0
		checks := g.checks
		if merged {
			checks = append(slices.Clip(g.checks), g.probes...)
		}
		got, err := eval(ctx, forUser(g.who), checks)
		if err != nil {
			return err
		}
		if len(got) != len(checks) {
			return fmt.Errorf("%w: %d answers for %d checks", ErrResultCountMismatch, len(got), len(checks))
		}
		for j, i := range g.indices {
			allowed[i] = got[j]
		}

		visible := got[len(g.indices):]
		if !merged && len(g.probes) > 0 {
			visible, err = eval(ctx, nil, g.probes)
			if err != nil {
				return err
			}
			if len(visible) != len(g.probes) {
				return fmt.Errorf("%w: %d answers for %d probes", ErrResultCountMismatch, len(visible), len(g.probes))
			}
		}
		for j, ok := range visible {
			if !ok {
				return g.hidden[j]
			}
		}
		return nil
	}
}

// authorize runs one task per group and writes answers into allowed by
// original index. Unresolved targets keep false, or fail the request under
// errorOnNotFound before any task starts.
func (r *run) authorize(ctx context.Context, allowed []bool) error {
	var tasks []func(context.Context) error

	for who, items := range r.plan.server {
		indices, actions := unzip(items)
		g := &batchGroup[entity.ServerAction]{who: who, indices: indices, checks: actions}
		tasks = append(tasks, g.task(allowed, func(ctx context.Context, u *entity.UserOrRole, c []entity.ServerAction) ([]bool, error) {
			return r.authz.AreAllowedServerActions(ctx, r.meta, u, c)
		}))
	}

	for key, items := range r.plan.project {
		g := &batchGroup[authz.ProjectCheck]{who: key.who}
		for _, it := range items {
			g.addCheck(it.index, authz.ProjectCheck{Project: key.project, Action: it.item})
		}
		tasks = append(tasks, g.task(allowed, func(ctx context.Context, u *entity.UserOrRole, c []authz.ProjectCheck) ([]bool, error) {
			return r.authz.AreAllowedProjectActions(ctx, r.meta, u, c)
		}))
	}

	for key, items := range r.plan.warehouse {
		if r.warehouses[key.warehouse] == nil {
			continue
		}
		g := &batchGroup[authz.WarehouseCheck]{who: key.who}
		for _, it := range items {
			g.addCheck(it.index, authz.WarehouseCheck{Warehouse: key.warehouse, Action: it.item})
		}
		if r.errorOnNotFound {
			g.addProbe(key.warehouse.Object(),
				authz.WarehouseCheck{Warehouse: key.warehouse, Action: entity.WarehouseGetMetadata},
				&catalog.NotFoundError{Kind: "warehouse", ID: key.warehouse.String()})
		}
		tasks = append(tasks, g.task(allowed, func(ctx context.Context, u *entity.UserOrRole, c []authz.WarehouseCheck) ([]bool, error) {
			return r.authz.AreAllowedWarehouseActions(ctx, r.meta, u, c)
		}))
	}

	for key, items := range r.plan.namespace {
		wh := r.warehouses[key.warehouse]
		if wh == nil {
			continue
		}
		namespaces := r.namespaces[key.warehouse]
		g := &batchGroup[authz.NamespaceCheck]{who: key.who}
		for _, it := range items {
			id, ok := r.namespaceID(key.warehouse, it.item)
			notFound := &catalog.NotFoundError{Kind: "namespace", ID: namespaceLabel(it.item)}
			if !ok {
				if r.errorOnNotFound {
					return notFound
				}
				continue
			}
			g.addCheck(it.index, authz.NamespaceCheck{Namespace: id, Action: it.item.Action})
			if r.errorOnNotFound {
				g.addProbe(id.Object(), authz.NamespaceCheck{Namespace: id, Action: entity.NamespaceGetMetadata}, notFound)
			}
		}
		if len(g.checks) == 0 {
			continue
		}
		tasks = append(tasks, g.task(allowed, func(ctx context.Context, u *entity.UserOrRole, c []authz.NamespaceCheck) ([]bool, error) {
			return r.authz.AreAllowedNamespaceActions(ctx, r.meta, u, wh, namespaces, c)
		}))
	}

	for key, items := range r.plan.table {
		wh := r.warehouses[key.warehouse]
		if wh == nil {
			continue
		}
		namespaces := r.namespaces[key.warehouse]
		g := &batchGroup[authz.TableCheck]{who: key.who}
		for _, it := range items {
			info, ok := r.tabular(it.item.Table, entity.KindTable)
			notFound := &catalog.NotFoundError{Kind: "table", ID: tabularLabel(it.item.Table)}
			if !ok {
				if r.errorOnNotFound {
					return notFound
				}
				continue
			}
			g.addCheck(it.index, authz.TableCheck{Table: info, Action: it.item.Action})
			if r.errorOnNotFound {
				g.addProbe(info.TabularID.String(), authz.TableCheck{Table: info, Action: entity.TableGetMetadata}, notFound)
			}
		}
		if len(g.checks) == 0 {
			continue
		}
		tasks = append(tasks, g.task(allowed, func(ctx context.Context, u *entity.UserOrRole, c []authz.TableCheck) ([]bool, error) {
			return r.authz.AreAllowedTableActions(ctx, r.meta, u, wh, namespaces, c)
		}))
	}

	for key, items := range r.plan.view {
		wh := r.warehouses[key.warehouse]
		if wh == nil {
			continue
		}
		namespaces := r.namespaces[key.warehouse]
		g := &batchGroup[authz.ViewCheck]{who: key.who}
		for _, it := range items {
			info, ok := r.tabular(it.item.View, entity.KindView)
			notFound := &catalog.NotFoundError{Kind: "view", ID: tabularLabel(it.item.View)}
			if !ok {
				if r.errorOnNotFound {
					return notFound
				}
				continue
			}
			g.addCheck(it.index, authz.ViewCheck{View: info, Action: it.item.Action})
			if r.errorOnNotFound {
				g.addProbe(info.TabularID.String(), authz.ViewCheck{View: info, Action: entity.ViewGetMetadata}, notFound)
			}
		}
		if len(g.checks) == 0 {
			continue
		}
		tasks = append(tasks, g.task(allowed, func(ctx context.Context, u *entity.UserOrRole, c []authz.ViewCheck) ([]bool, error) {
			return r.authz.AreAllowedViewActions(ctx, r.meta, u, wh, namespaces, c)
		}))
	}

	eg, egctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		eg.Go(func() error { return task(egctx) })
	}
	return eg.Wait()
}
