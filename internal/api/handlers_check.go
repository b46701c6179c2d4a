// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package api

import (
	"net/http"

	"github.com/timoguin/lakekeeper-sub000/internal/check"
	"github.com/timoguin/lakekeeper-sub000/internal/events"
)

var actionBatchCheck = events.Introspection("batch_check")

// Check handles POST check.
//
// A request with more than check.MaxChecks items fails with
// TOO_MANY_CHECKS before any catalog or tuple store lookup.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	meta, err := requestMetadata(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req check.CheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ectx := h.events.For(meta, actionBatchCheck, h.engine.Server().Object())
	resp, err := h.checker.Check(r.Context(), meta, req)
	if err := ectx.EmitAuthz(r.Context(), err); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
