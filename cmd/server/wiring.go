// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package main

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/api"
	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/config"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/events"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/supervisor"
	"github.com/timoguin/lakekeeper-sub000/internal/supervisor/services"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

// backends are the two stores the engine and the checker read.
type backends struct {
	graph    *tuplestore.GraphBackend
	db       *catalog.DuckDBStore
	resolver *catalog.Resolver
}

func (b *backends) close() {
	b.resolver.Close()
	if err := b.db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing catalog store")
	}
	if err := b.graph.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing tuple store")
	}
}

func openStores(cfg *config.Config) (*backends, error) {
	ts := cfg.TupleStore
	graph, err := tuplestore.OpenGraph(entity.CatalogModel(), tuplestore.GraphOptions{
		Path:     ts.Path,
		InMemory: ts.InMemory,
		MaxDepth: ts.MaxDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("open tuple store: %w", err)
	}

	c := cfg.Catalog
	catalogCfg := catalog.Config{
		Path:              c.Path,
		Threads:           c.Threads,
		MaxMemory:         c.MaxMemory,
		MaxNamespaceDepth: c.MaxNamespaceDepth,
		FetchChunkSize:    c.FetchChunkSize,
		CacheEnabled:      c.CacheEnabled,
		CacheTTL:          c.CacheTTL,
		CacheCapacity:     c.CacheCapacity,
	}
	db, err := catalog.OpenDuckDB(catalogCfg)
	if err != nil {
		_ = graph.Close()
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	logging.Info().
		Str("tuple_store", ts.Path).
		Bool("tuple_store_in_memory", ts.InMemory).
		Str("catalog", c.Path).
		Bool("cache", c.CacheEnabled).
		Msg("Stores opened")
	return &backends{graph: graph, db: db, resolver: catalog.NewResolver(db, catalogCfg)}, nil
}

func newEngine(cfg *config.Config, b *backends) (*authz.Engine, error) {
	id, err := uuid.Parse(cfg.Server.ServerID)
	if err != nil {
		return nil, fmt.Errorf("server id: %w", err)
	}
	if cfg.Server.ServerID == config.DefaultServerID {
		logging.Warn().Msg("Using the all-zero server id; set server.server_id for shared deployments")
	}

	ts := cfg.TupleStore
	clientCfg := tuplestore.DefaultConfig()
	clientCfg.BatchCheckSize = ts.BatchCheckSize
	clientCfg.MaxTuplesPerWrite = ts.MaxTuplesPerWrite
	clientCfg.MaxParallelRequests = ts.MaxParallelRequests
	clientCfg.ReadPageSize = ts.ReadPageSize
	clientCfg.RequestsPerSecond = ts.RequestsPerSecond
	clientCfg.Burst = ts.Burst
	if ts.BreakerFailureThreshold > 0 {
		clientCfg.Breaker.FailureThreshold = ts.BreakerFailureThreshold
	}
	if ts.BreakerTimeout > 0 {
		clientCfg.Breaker.Timeout = ts.BreakerTimeout
	}

	hr := cfg.Authz.HookRetry
	opts := authz.Options{HookRetry: authz.HookRetryConfig{
		MaxRetries:     hr.MaxRetries,
		MaxEntries:     hr.MaxEntries,
		InitialBackoff: hr.InitialBackoff,
		MaxBackoff:     hr.MaxBackoff,
		Interval:       hr.Interval,
	}}
	if cfg.Security.AllowAnonymous {
		policy, err := authz.NewAnonymousPolicy(authz.AnonymousConfig{
			PolicyPath: cfg.Authz.AnonymousPolicyPath,
			Rules:      cfg.Authz.AnonymousRules,
		})
		if err != nil {
			return nil, fmt.Errorf("anonymous policy: %w", err)
		}
		opts.Anonymous = policy
	}
	return authz.NewEngine(tuplestore.NewClient(b.graph, clientCfg), entity.ServerID{UUID: id}, opts), nil
}

// buildEvents assembles the sinks and registers their shutdown with the
// messaging layer. The returned map holds health probes for the event
// transport.
func buildEvents(ctx context.Context, cfg *config.Config, tree *supervisor.SupervisorTree) (*events.Emitter, map[string]api.Pinger, error) {
	health := make(map[string]api.Pinger)
	var sinks []events.Sink

	if a := cfg.Authz.Audit; a.Enabled {
		audit := authz.NewAuditLogger(&authz.AuditLoggerConfig{
			Enabled:    true,
			LogAllowed: a.LogAllowed,
			LogDenied:  a.LogDenied,
			SampleRate: a.SampleRate,
			BufferSize: a.BufferSize,
		})
		sinks = append(sinks, events.NewAuditSink(audit))
		tree.AddMessagingService(services.NewResourceService("audit-log", func() error {
			audit.Close()
			return nil
		}))
	}

	pub, err := newPublisher(ctx, cfg, tree, health)
	if err != nil {
		return nil, nil, err
	}
	if pub != nil {
		sink := events.NewPublisherSink(pub, events.PublisherConfig{
			Topic:            cfg.Events.Topic,
			BreakerThreshold: cfg.Events.BreakerThreshold,
			BreakerTimeout:   cfg.Events.BreakerTimeout,
		})
		sinks = append(sinks, sink)
		tree.AddMessagingService(services.NewResourceService("event-publisher", sink.Close))
	}

	emitter := events.NewEmitter(sinks...)
	logging.Info().Strs("sinks", emitter.Sinks()).Str("publisher", cfg.Events.Publisher).Msg("Event sinks configured")
	return emitter, health, nil
}

func newPublisher(ctx context.Context, cfg *config.Config, tree *supervisor.SupervisorTree, health map[string]api.Pinger) (message.Publisher, error) {
	switch cfg.Events.Publisher {
	case config.PublisherNone, "":
		return nil, nil
	case config.PublisherChannel:
		return events.NewChannelPublisher(cfg.Events.BufferSize), nil
	case config.PublisherNATS:
	default:
		return nil, fmt.Errorf("unknown event publisher %q", cfg.Events.Publisher)
	}

	n := cfg.NATS
	url := n.URL
	var embedded *events.EmbeddedServer
	if n.EmbeddedServer {
		srv, err := events.StartEmbeddedServer(events.EmbeddedServerConfig{
			Host:     n.Host,
			Port:     n.Port,
			StoreDir: n.StoreDir,
			MaxMem:   n.MaxMemory,
			MaxStore: n.MaxStore,
		})
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS: %w", err)
		}
		embedded = srv
		url = srv.ClientURL()
		health["nats"] = srv
		tree.AddMessagingService(services.NewEmbeddedNATSService(srv, 0, cfg.Server.ShutdownTimeout))
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	pub, err := events.NewNATSPublisher(ctx, events.NATSConfig{
		URL:             url,
		Stream:          n.Stream,
		MaxAge:          n.MaxAge,
		DuplicateWindow: n.DuplicateWindow,
		MemoryStorage:   n.MemoryStorage,
		ConnectTimeout:  n.ConnectTimeout,
	}, cfg.Events.Topic)
	if err != nil && embedded != nil {
		_ = embedded.Shutdown(ctx)
	}
	return pub, err
}
