// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timoguin/lakekeeper-sub000/internal/auth"
)

// PermissionsPrefix is the mount point of the permissions API.
const PermissionsPrefix = "/management/v1/permissions"

// Router wires handlers, middleware and authentication.
type Router struct {
	handler    *Handler
	middleware *Middleware
	authn      *auth.Authenticator
}

// NewRouter creates a router.
func NewRouter(handler *Handler, middleware *Middleware, authn *auth.Authenticator) *Router {
	return &Router{handler: handler, middleware: middleware, authn: authn}
}

// Setup builds the chi route tree.
func (rt *Router) Setup() http.Handler {
	h := rt.handler
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.middleware.CORS())

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(PermissionsPrefix, func(r chi.Router) {
		r.Use(rt.middleware.RateLimit())
		r.Use(PrometheusMetrics)
		r.Use(rt.authn.Middleware(writeError))

		// Actions
		r.Get("/server/authorizer-actions", h.AllowedActions(h.serverObject))
		r.Get("/project/authorizer-actions", h.AllowedActions(preferredProject))
		r.Get("/project/{project_id}/authorizer-actions", h.AllowedActions(projectFromPath))
		r.Get("/role/{role_id}/authorizer-actions", h.AllowedActions(roleFromPath))
		r.Get("/warehouse/{warehouse_id}/authorizer-actions", h.AllowedActions(warehouseFromPath))
		r.Get("/namespace/{namespace_id}/authorizer-actions", h.AllowedActions(namespaceFromPath))
		r.Get("/warehouse/{warehouse_id}/table/{table_id}/authorizer-actions", h.AllowedActions(tableFromPath))
		r.Get("/warehouse/{warehouse_id}/view/{view_id}/authorizer-actions", h.AllowedActions(viewFromPath))

		// Managed access
		r.Get("/warehouse/{warehouse_id}", h.GetWarehouseAuthProperties)
		r.Get("/namespace/{namespace_id}", h.GetNamespaceAuthProperties)
		r.Post("/warehouse/{warehouse_id}/managed-access", h.SetManagedAccess(warehouseFromPath))
		r.Post("/namespace/{namespace_id}/managed-access", h.SetManagedAccess(namespaceFromPath))

		// Assignments
		assignments := []struct {
			pattern string
			object  objectFunc
		}{
			{"/server/assignments", h.serverObject},
			{"/project/assignments", preferredProject},
			{"/project/{project_id}/assignments", projectFromPath},
			{"/warehouse/{warehouse_id}/assignments", warehouseFromPath},
			{"/namespace/{namespace_id}/assignments", namespaceFromPath},
			{"/warehouse/{warehouse_id}/table/{table_id}/assignments", tableFromPath},
			{"/warehouse/{warehouse_id}/view/{view_id}/assignments", viewFromPath},
			{"/role/{role_id}/assignments", roleFromPath},
		}
		for _, a := range assignments {
			r.Get(a.pattern, h.GetAssignments(a.object))
			r.Post(a.pattern, h.UpdateAssignments(a.object))
		}

		r.Post("/check", h.Check)
	})

	return r
}
