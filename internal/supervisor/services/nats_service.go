// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNATSServerStopped is returned when the embedded server dies while the
// supervisor still expects it to run.
var ErrNATSServerStopped = errors.New("embedded NATS server stopped unexpectedly")

// NATSServer is satisfied by *events.EmbeddedServer.
type NATSServer interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// EmbeddedNATSService watches an embedded NATS server that was started
// before the tree, and shuts it down when the tree stops.
type EmbeddedNATSService struct {
	server          NATSServer
	pollInterval    time.Duration
	shutdownTimeout time.Duration
}

// NewEmbeddedNATSService wraps server. It is polled every pollInterval
// (5s if non-positive).
func NewEmbeddedNATSService(server NATSServer, pollInterval, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &EmbeddedNATSService{server: server, pollInterval: pollInterval, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.server.IsRunning() {
				return ErrNATSServerStopped
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("embedded NATS shutdown failed: %w", err)
			}
			return ctx.Err()
		}
	}
}

func (s *EmbeddedNATSService) String() string { return "embedded-nats" }
