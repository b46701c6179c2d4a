// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const embeddedReadyTimeout = 30 * time.Second

// EmbeddedServerConfig configures an in-process NATS JetStream server.
type EmbeddedServerConfig struct {
	Host     string
	Port     int // -1 picks a free port
	StoreDir string
	MaxMem   int64
	MaxStore int64
}

// EmbeddedServer is a NATS JetStream server running inside this process,
// for single-node deployments that want durable events without a broker.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// StartEmbeddedServer starts the server and waits until it accepts
// connections.
func StartEmbeddedServer(cfg EmbeddedServerConfig) (*EmbeddedServer, error) {
	if cfg.StoreDir == "" {
		return nil, errors.New("embedded NATS needs a store directory")
	}
	opts := &server.Options{
		ServerName:         "lakekeeper-events",
		Host:               cfg.Host,
		Port:               cfg.Port,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.MaxMem,
		JetStreamMaxStore:  cfg.MaxStore,
		NoLog:              true,
		NoSigs:             true,
		MaxPayload:         1 << 20,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(embeddedReadyTimeout) {
		ns.Shutdown()
		return nil, errors.New("NATS server not ready within timeout")
	}
	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the URL publishers connect to.
func (s *EmbeddedServer) ClientURL() string { return s.clientURL }

// IsRunning reports whether the server still accepts connections.
func (s *EmbeddedServer) IsRunning() bool { return s.server.Running() }

// JetStreamEnabled reports whether JetStream came up.
func (s *EmbeddedServer) JetStreamEnabled() bool { return s.server.JetStreamEnabled() }

// Ping fails once the server has stopped.
func (s *EmbeddedServer) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.server.Running() {
		return errors.New("embedded NATS server is not running")
	}
	return nil
}

// Shutdown stops the server and waits for it unless ctx ends first.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
