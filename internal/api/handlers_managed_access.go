// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package api

import (
	"net/http"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/events"
)

var actionSetManagedAccess = events.Action{Name: "set_managed_access"}

// WarehouseAuthPropertiesResponse is returned for GET warehouse/{id}.
type WarehouseAuthPropertiesResponse struct {
	ManagedAccess bool `json:"managed-access"`
}

// NamespaceAuthPropertiesResponse is returned for GET namespace/{id}.
type NamespaceAuthPropertiesResponse struct {
	ManagedAccess          bool `json:"managed-access"`
	ManagedAccessInherited bool `json:"managed-access-inherited"`
}

// SetManagedAccessRequest enables or disables managed access.
type SetManagedAccessRequest struct {
	ManagedAccess *bool `json:"managed-access" validate:"required"`
}

// GetWarehouseAuthProperties handles GET warehouse/{warehouse_id}.
func (h *Handler) GetWarehouseAuthProperties(w http.ResponseWriter, r *http.Request) {
	meta, obj, err := resolve(r, warehouseFromPath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wh := obj.(entity.WarehouseID)

	ectx := h.events.For(meta, events.CatalogAction(entity.WarehouseGetMetadata), wh.Object())
	if err := ectx.EmitAuthz(r.Context(), h.engine.Require(r.Context(), meta, wh, entity.WarehouseGetMetadata)); err != nil {
		writeError(w, r, err)
		return
	}
	managed, err := h.engine.GetManagedAccess(r.Context(), wh)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, WarehouseAuthPropertiesResponse{ManagedAccess: managed})
}

// GetNamespaceAuthProperties handles GET namespace/{namespace_id}.
func (h *Handler) GetNamespaceAuthProperties(w http.ResponseWriter, r *http.Request) {
	meta, obj, err := resolve(r, namespaceFromPath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ns := obj.(entity.NamespaceID)

	ectx := h.events.For(meta, events.CatalogAction(entity.NamespaceGetMetadata), ns.Object())
	if err := ectx.EmitAuthz(r.Context(), h.engine.Require(r.Context(), meta, ns, entity.NamespaceGetMetadata)); err != nil {
		writeError(w, r, err)
		return
	}
	state, err := h.engine.GetNamespaceManagedAccess(r.Context(), ns)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, NamespaceAuthPropertiesResponse{
		ManagedAccess:          state.ManagedAccess,
		ManagedAccessInherited: state.Inherited,
	})
}

// SetManagedAccess handles POST {warehouse|namespace}/{id}/managed-access.
func (h *Handler) SetManagedAccess(object objectFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, obj, err := resolve(r, object)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req SetManagedAccessRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		ectx := h.events.For(meta, actionSetManagedAccess, obj.Object())
		err = h.engine.SetManagedAccess(r.Context(), meta, obj, *req.ManagedAccess)
		if err := ectx.EmitAuthz(r.Context(), err); err != nil {
			writeError(w, r, err)
			return
		}
		ectx.EmitEvent(r.Context(), "managed_access_set", map[string]any{"managed-access": *req.ManagedAccess})
		w.WriteHeader(http.StatusNoContent)
	}
}
