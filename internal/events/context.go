// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/metrics"
)

// Emitter fans events out to a fixed set of sinks.
type Emitter struct {
	sinks []Sink
	now   func() time.Time
}

// NewEmitter returns an emitter over sinks. Nil sinks are skipped.
func NewEmitter(sinks ...Sink) *Emitter {
	e := &Emitter{now: time.Now}
	for _, s := range sinks {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
	return e
}

// Sinks returns the sink names in delivery order.
func (e *Emitter) Sinks() []string {
	if e == nil {
		return nil
	}
	names := make([]string, len(e.sinks))
	for i, s := range e.sinks {
		names[i] = s.Name()
	}
	return names
}

// Context binds one decision point: who asked, for what, on which object.
type Context struct {
	emitter *Emitter
	meta    entity.RequestMetadata
	action  Action
	target  string
}

// For starts a Context. A nil emitter yields a Context that emits nothing.
func (e *Emitter) For(meta entity.RequestMetadata, action Action, target string) *Context {
	return &Context{emitter: e, meta: meta, action: action, target: target}
}

// Target returns the bound object.
func (c *Context) Target() string { return c.target }

// Action returns the bound action descriptor.
func (c *Context) Action() Action { return c.action }

// EmitAuthz reports decision to every sink and returns it unchanged.
func (c *Context) EmitAuthz(ctx context.Context, decision error) error {
	if c.emitter == nil || len(c.emitter.sinks) == 0 {
		return decision
	}
	ev := &AuthorizationEvent{
		EventID:   uuid.NewString(),
		Time:      c.emitter.now().UTC(),
		RequestID: c.meta.RequestID,
		Actor:     c.meta.Actor.String(),
		Action:    c.action,
		Target:    c.target,
		Outcome:   OutcomeOf(decision),
	}
	if decision != nil {
		ev.Reason = decision.Error()
	}
	for _, s := range c.emitter.sinks {
		c.deliver(ctx, s, KindAuthorization, s.Authorization(ctx, ev))
	}
	return decision
}

// EmitEvent reports a completed change named name on the bound target.
func (c *Context) EmitEvent(ctx context.Context, name string, data map[string]any) {
	if c.emitter == nil || len(c.emitter.sinks) == 0 {
		return
	}
	ev := &BusinessEvent{
		EventID:   uuid.NewString(),
		Time:      c.emitter.now().UTC(),
		RequestID: c.meta.RequestID,
		Actor:     c.meta.Actor.String(),
		Name:      name,
		Target:    c.target,
		Data:      data,
	}
	for _, s := range c.emitter.sinks {
		c.deliver(ctx, s, KindBusiness, s.Business(ctx, ev))
	}
}

func (c *Context) deliver(ctx context.Context, s Sink, kind string, err error) {
	metrics.RecordEvent(s.Name(), kind, err)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("sink", s.Name()).
			Str("event_kind", kind).
			Str("target", c.target).
			Msg("Event sink failed")
	}
}
