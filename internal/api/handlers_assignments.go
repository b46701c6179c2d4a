// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package api

import (
	"net/http"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/events"
	"github.com/timoguin/lakekeeper-sub000/internal/validation"
)

var (
	actionReadAssignments   = events.Action{Name: "read_assignments"}
	actionUpdateAssignments = events.Action{Name: "update_assignments"}
)

type relationsQuery struct {
	Relations []string `query:"relations" validate:"max=32,dive,relation"`
}

// AssignmentsResponse lists direct grants. ProjectID is set for projects.
type AssignmentsResponse struct {
	Assignments []entity.Assignment `json:"assignments"`
	ProjectID   *entity.ProjectID   `json:"project-id,omitempty"`
}

// UpdateAssignmentsRequest is applied atomically: all writes and deletes
// land together or not at all.
type UpdateAssignmentsRequest struct {
	Writes  []entity.Assignment `json:"writes" validate:"max=1000"`
	Deletes []entity.Assignment `json:"deletes" validate:"max=1000"`
}

// GetAssignments handles GET {object}/assignments. The optional repeated
// relations query parameter limits the result.
func (h *Handler) GetAssignments(object objectFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, obj, err := resolve(r, object)
		if err != nil {
			writeError(w, r, err)
			return
		}
		q := relationsQuery{Relations: r.URL.Query()["relations"]}
		if verr := validation.ValidateStruct(&q); verr != nil {
			writeError(w, r, verr)
			return
		}

		ectx := h.events.For(meta, actionReadAssignments, obj.Object())
		assignments, err := h.engine.GetRelations(r.Context(), meta, obj, q.Relations)
		if err := ectx.EmitAuthz(r.Context(), err); err != nil {
			writeError(w, r, err)
			return
		}

		resp := AssignmentsResponse{Assignments: assignments}
		if project, ok := obj.(entity.ProjectID); ok {
			resp.ProjectID = &project
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// UpdateAssignments handles POST {object}/assignments.
func (h *Handler) UpdateAssignments(object objectFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, obj, err := resolve(r, object)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req UpdateAssignmentsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		ectx := h.events.For(meta, actionUpdateAssignments, obj.Object())
		err = h.engine.CheckedWrite(r.Context(), meta, obj, req.Writes, req.Deletes)
		if err := ectx.EmitAuthz(r.Context(), err); err != nil {
			writeError(w, r, err)
			return
		}
		if len(req.Writes)+len(req.Deletes) > 0 {
			ectx.EmitEvent(r.Context(), "assignments_updated", map[string]any{
				"writes":  req.Writes,
				"deletes": req.Deletes,
			})
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
