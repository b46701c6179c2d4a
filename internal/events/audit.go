// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package events

import (
	"context"

	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
)

// AuditSink writes events to the audit log.
type AuditSink struct {
	logger *authz.AuditLogger
}

// NewAuditSink wraps an audit logger. The caller owns its lifecycle.
func NewAuditSink(logger *authz.AuditLogger) *AuditSink {
	return &AuditSink{logger: logger}
}

func (s *AuditSink) Name() string { return "audit" }

func (s *AuditSink) Authorization(_ context.Context, e *AuthorizationEvent) error {
	s.logger.LogDecision(&authz.AuditEvent{
		ID:        e.EventID,
		Timestamp: e.Time,
		RequestID: e.RequestID,
		Actor:     e.Actor,
		Action:    e.Action.String(),
		Object:    e.Target,
		Outcome:   e.Outcome,
		Reason:    e.Reason,
	})
	return nil
}

// Business events bypass the decision queue; they are rare and never sampled.
func (s *AuditSink) Business(ctx context.Context, e *BusinessEvent) error {
	ev := logging.Ctx(ctx).Info().
		Str("event_type", "catalog_event").
		Str("audit_id", e.EventID).
		Time("audit_timestamp", e.Time).
		Str("actor", e.Actor).
		Str("name", e.Name).
		Str("object", e.Target)
	if len(e.Data) > 0 {
		ev = ev.Interface("data", e.Data)
	}
	ev.Msg("Catalog change")
	return nil
}
