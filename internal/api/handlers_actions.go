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

var actionIntrospect = events.Introspection("get_allowed_actions")

// principalQuery names the principal whose actions are listed instead of
// the caller's.
type principalQuery struct {
	PrincipalUser string `query:"principalUser" validate:"omitempty,max=512,excluded_with=PrincipalRole"`
	PrincipalRole string `query:"principalRole" validate:"omitempty,uuid"`
}

// AllowedActionsResponse lists action names such as "create_table".
type AllowedActionsResponse struct {
	AllowedActions []string `json:"allowed-actions"`
}

func forPrincipal(r *http.Request) (*entity.UserOrRole, error) {
	q := principalQuery{
		PrincipalUser: r.URL.Query().Get("principalUser"),
		PrincipalRole: r.URL.Query().Get("principalRole"),
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		return nil, verr
	}
	switch {
	case q.PrincipalRole != "":
		role, err := entity.ParseRoleID(q.PrincipalRole)
		if err != nil {
			return nil, err
		}
		who := entity.ForRole(role)
		return &who, nil
	case q.PrincipalUser != "":
		user, err := entity.ParseUserID(q.PrincipalUser)
		if err != nil {
			return nil, err
		}
		who := entity.ForUser(user)
		return &who, nil
	}
	return nil, nil
}

// AllowedActions handles GET {object}/authorizer-actions.
func (h *Handler) AllowedActions(object objectFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, obj, err := resolve(r, object)
		if err != nil {
			writeError(w, r, err)
			return
		}
		who, err := forPrincipal(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ectx := h.events.For(meta, actionIntrospect, obj.Object())
		actions, err := h.engine.GetAllowedActions(r.Context(), meta, obj, who)
		if err := ectx.EmitAuthz(r.Context(), err); err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, AllowedActionsResponse{AllowedActions: actions})
	}
}
