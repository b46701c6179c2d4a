// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/timoguin/lakekeeper-sub000/internal/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// ErrHTTPServerStopped is returned when the listener closes while the tree
// still expects the permissions API to be served. Suture restarts the service.
var ErrHTTPServerStopped = errors.New("http server closed unexpectedly")

// HTTPServer is the lifecycle subset of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService serves the permissions API under a supervisor. Canceling
// the Serve context drains in-flight requests for up to the shutdown timeout.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server. A non-positive timeout means 10s.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- h.server.ListenAndServe() }()

	select {
	case err := <-done:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return ErrHTTPServerStopped
		}
		return fmt.Errorf("http server failed: %w", err)

	case <-ctx.Done():
	}

	logging.Info().Dur("timeout", h.shutdownTimeout).Msg("Draining HTTP server")
	drainCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	start := time.Now()
	if err := h.server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	<-done
	logging.Info().Dur("elapsed", time.Since(start)).Msg("HTTP server drained")
	return ctx.Err()
}

func (h *HTTPServerService) String() string { return "http-server" }
