// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package api

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// HealthStatus is the /healthz body.
type HealthStatus struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks"`
	EventSinks []string          `json:"event-sinks"`
	Uptime     float64           `json:"uptime-seconds"`
}

// Health handles GET /healthz. Any failing dependency makes the server
// report 503 "degraded".
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := HealthStatus{
		Status:     "healthy",
		Checks:     make(map[string]string, len(h.health)),
		EventSinks: h.events.Sinks(),
		Uptime:     time.Since(h.startTime).Seconds(),
	}
	if status.EventSinks == nil {
		status.EventSinks = []string{}
	}
	code := http.StatusOK
	for name, p := range h.health {
		if err := p.Ping(ctx); err != nil {
			status.Checks[name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}
	respondJSON(w, code, status)
}
