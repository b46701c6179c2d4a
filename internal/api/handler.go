// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/timoguin/lakekeeper-sub000/internal/auth"
	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/check"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/events"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/validation"
)

// maxBodyBytes bounds request bodies. A full batch check fits comfortably.
const maxBodyBytes = 4 << 20

// Pinger is a dependency whose health /healthz reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handlers call.
type Deps struct {
	Engine  *authz.Engine
	Checker *check.Checker
	Events  *events.Emitter
	// Health maps dependency names to their probes.
	Health map[string]Pinger
}

// Handler serves the permissions API.
type Handler struct {
	engine    *authz.Engine
	checker   *check.Checker
	events    *events.Emitter
	health    map[string]Pinger
	startTime time.Time
}

// NewHandler creates a handler over deps.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		engine:    deps.Engine,
		checker:   deps.Checker,
		events:    deps.Events,
		health:    deps.Health,
		startTime: time.Now(),
	}
}

// requestMetadata collects the actor, request id and preferred project.
func requestMetadata(r *http.Request) (entity.RequestMetadata, error) {
	meta := entity.RequestMetadata{
		Actor:     auth.ActorFromContext(r.Context()),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
	if header := strings.TrimSpace(r.Header.Get(ProjectIDHeader)); header != "" {
		project, err := entity.ParseProjectID(header)
		if err != nil {
			return meta, fmt.Errorf("%w: %s header: %v", errBadRequest, ProjectIDHeader, err)
		}
		meta.PreferredProject = &project
	}
	return meta, nil
}

// decodeJSON reads the body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", errBadRequest)
		}
		if errors.Is(err, check.ErrBadRequest) || errors.Is(err, entity.ErrInvalidID) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		return verr
	}
	return nil
}

// objectFunc resolves the authorization object a route addresses.
type objectFunc func(r *http.Request, meta entity.RequestMetadata) (entity.Object, error)

func (h *Handler) serverObject(*http.Request, entity.RequestMetadata) (entity.Object, error) {
	return h.engine.Server(), nil
}

func preferredProject(_ *http.Request, meta entity.RequestMetadata) (entity.Object, error) {
	if meta.PreferredProject == nil {
		return nil, fmt.Errorf("%w: no project specified, set the %s header", errBadRequest, ProjectIDHeader)
	}
	return *meta.PreferredProject, nil
}

func projectFromPath(r *http.Request, _ entity.RequestMetadata) (entity.Object, error) {
	id, err := entity.ParseProjectID(chi.URLParam(r, "project_id"))
	return id, err
}

func warehouseFromPath(r *http.Request, _ entity.RequestMetadata) (entity.Object, error) {
	id, err := entity.ParseWarehouseID(chi.URLParam(r, "warehouse_id"))
	return id, err
}

func namespaceFromPath(r *http.Request, _ entity.RequestMetadata) (entity.Object, error) {
	id, err := entity.ParseNamespaceID(chi.URLParam(r, "namespace_id"))
	return id, err
}

func roleFromPath(r *http.Request, _ entity.RequestMetadata) (entity.Object, error) {
	id, err := entity.ParseRoleID(chi.URLParam(r, "role_id"))
	return id, err
}

func tableFromPath(r *http.Request, _ entity.RequestMetadata) (entity.Object, error) {
	wh, err := entity.ParseWarehouseID(chi.URLParam(r, "warehouse_id"))
	if err != nil {
		return nil, err
	}
	table, err := entity.ParseTableID(chi.URLParam(r, "table_id"))
	if err != nil {
		return nil, err
	}
	return entity.TableRef{Warehouse: wh, Table: table}, nil
}

func viewFromPath(r *http.Request, _ entity.RequestMetadata) (entity.Object, error) {
	wh, err := entity.ParseWarehouseID(chi.URLParam(r, "warehouse_id"))
	if err != nil {
		return nil, err
	}
	view, err := entity.ParseViewID(chi.URLParam(r, "view_id"))
	if err != nil {
		return nil, err
	}
	return entity.ViewRef{Warehouse: wh, View: view}, nil
}

// resolve runs the common prologue of every catalog route.
func resolve(r *http.Request, object objectFunc) (entity.RequestMetadata, entity.Object, error) {
	meta, err := requestMetadata(r)
	if err != nil {
		return meta, nil, err
	}
	obj, err := object(r, meta)
	if err != nil {
		return meta, nil, err
	}
	return meta, obj, nil
}
