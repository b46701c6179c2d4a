// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package auth

import (
	"context"
	"net/http"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
)

type contextKey string

const actorContextKey contextKey = "actor"

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor entity.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext returns the request actor, or the anonymous actor when
// none was stored.
func ActorFromContext(ctx context.Context) entity.Actor {
	if a, ok := ctx.Value(actorContextKey).(entity.Actor); ok {
		return a
	}
	return entity.Anonymous()
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware authenticates every request and stores the actor in its
// context. Failures are rendered by onError and stop the chain.
func (a *Authenticator) Middleware(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := a.Authenticate(r.Context(), r)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("Authentication failed")
				onError(w, r, err)
				return
			}
			ctx := WithActor(r.Context(), actor)
			ctx = logging.ContextWithActor(ctx, actor.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
