// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

// Package events wraps authorization decisions and catalog changes in an
// envelope and hands them to sinks.
//
// A request builds one Context per decision point. EmitAuthz reports the
// decision to every sink and returns it unchanged; sinks can fail without
// affecting the caller. The audit sink writes through authz.AuditLogger and
// the publisher sink sends JSON messages over a watermill publisher (NATS
// JetStream in production, gochannel in single-node mode and tests).
package events

import (
	"context"
	"errors"
	"time"

	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

// DefaultTopic is the publisher topic when none is configured.
const DefaultTopic = "lakekeeper.authz"

// Event kinds, used as the metric label and the "event_type" metadata.
const (
	KindAuthorization = "authorization"
	KindBusiness      = "business"
)

// Outcome values of an AuthorizationEvent.
const (
	OutcomeAllowed   = "allowed"
	OutcomeDenied    = "denied"
	OutcomeCannotSee = "cannot_see"
	OutcomeError     = "error"
)

// Action describes what was decided: a catalog action such as
// "create_table", or an introspection call such as "get_allowed_actions".
type Action struct {
	Name          string `json:"name"`
	Introspection bool   `json:"introspection,omitempty"`
}

// CatalogAction describes a typed catalog action.
func CatalogAction[A entity.Action](a A) Action { return Action{Name: string(a)} }

// Introspection describes a read of the authorization state itself.
func Introspection(name string) Action { return Action{Name: name, Introspection: true} }

func (a Action) String() string {
	if a.Introspection {
		return "introspect:" + a.Name
	}
	return a.Name
}

// AuthorizationEvent records one decision.
type AuthorizationEvent struct {
	EventID   string    `json:"event_id"`
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id,omitempty"`
	Actor     string    `json:"actor"`
	Action    Action    `json:"action"`
	Target    string    `json:"target"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
}

// BusinessEvent records a successful state change, such as an assignment
// write or a managed-access toggle.
type BusinessEvent struct {
	EventID   string         `json:"event_id"`
	Time      time.Time      `json:"time"`
	RequestID string         `json:"request_id,omitempty"`
	Actor     string         `json:"actor"`
	Name      string         `json:"name"`
	Target    string         `json:"target"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Authorization(ctx context.Context, e *AuthorizationEvent) error
	Business(ctx context.Context, e *BusinessEvent) error
}

// OutcomeOf classifies a decision error.
func OutcomeOf(decision error) string {
	switch {
	case decision == nil:
		return OutcomeAllowed
	case authz.IsCannotSee(decision):
		return OutcomeCannotSee
	case authz.IsUnauthorized(decision),
		errors.Is(decision, authz.ErrAuthenticationRequired),
		errors.Is(decision, authz.ErrSelfAssignment),
		errors.Is(decision, authz.ErrGrantRoleWithAssumedRole):
		return OutcomeDenied
	}
	var nf *catalog.NotFoundError
	if errors.As(decision, &nf) {
		return OutcomeCannotSee
	}
	return OutcomeError
}
