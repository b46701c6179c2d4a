// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

// Package main runs the catalog authorization server.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Tuple store (embedded badger graph) and authorization engine, with
//     the worker that retries failed lifecycle hook graph updates
//  3. Catalog metadata store (DuckDB) and the caching resolver
//  4. Event sinks: audit log plus an optional watermill publisher
//     (in-process channel, or NATS JetStream with an optional embedded server)
//  5. Server bootstrap for the configured admin
//  6. HTTP API under /management/v1/permissions
//
// Everything long-lived runs in a suture tree. SIGINT or SIGTERM cancels
// the tree, which drains HTTP and then closes the event sinks and stores.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/timoguin/lakekeeper-sub000/internal/api"
	"github.com/timoguin/lakekeeper-sub000/internal/auth"
	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/check"
	"github.com/timoguin/lakekeeper-sub000/internal/config"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
	"github.com/timoguin/lakekeeper-sub000/internal/events"
	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/supervisor"
	"github.com/timoguin/lakekeeper-sub000/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("server_id", cfg.Server.ServerID).
		Msg("Starting catalog authorization server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	tree.AddDataService(services.NewResourceService("tuple-store", stores.graph.Close))
	tree.AddDataService(services.NewResourceService("catalog-store", func() error {
		stores.resolver.Close()
		return stores.db.Close()
	}))

	engine, err := newEngine(cfg, stores)
	if err != nil {
		stores.close()
		return err
	}
	tree.AddDataService(engine.HookRetrier())

	emitter, health, err := buildEvents(ctx, cfg, tree)
	if err != nil {
		stores.close()
		return err
	}
	health["catalog"] = stores.db
	health["tuplestore"] = stores.graph

	if err := bootstrap(ctx, engine, cfg.Server.BootstrapAdmin); err != nil {
		stores.close()
		return err
	}

	handler, err := buildRouter(cfg, engine, stores, emitter, health)
	if err != nil {
		stores.close()
		return err
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", addr).Str("prefix", api.PermissionsPrefix).Msg("HTTP API listening")

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, s := range report {
			logging.Warn().Str("service", s.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	return err
}

// bootstrap makes admin the server admin on first start. A server that was
// already bootstrapped is left alone.
func bootstrap(ctx context.Context, engine *authz.Engine, admin string) error {
	if admin == "" {
		logging.Info().Msg("No bootstrap admin configured")
		return nil
	}
	user, err := entity.ParseUserID(admin)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	switch err := engine.Bootstrap(ctx, user); {
	case errors.Is(err, authz.ErrAlreadyBootstrapped):
		logging.Info().Msg("Server already bootstrapped")
	case err != nil:
		return fmt.Errorf("bootstrap server: %w", err)
	default:
		logging.Info().Str("admin", logging.RedactSubject(admin)).Msg("Server bootstrapped")
	}
	return nil
}

func buildRouter(cfg *config.Config, engine *authz.Engine, stores *backends, emitter *events.Emitter, health map[string]api.Pinger) (http.Handler, error) {
	tokens, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("create JWT manager: %w", err)
	}
	if cfg.Security.AllowAnonymous {
		logging.Warn().Msg("Anonymous requests are accepted; the anonymous policy decides what they may check")
	}
	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS allows any origin while authentication is enabled")
	}

	handler := api.NewHandler(api.Deps{
		Engine:  engine,
		Checker: check.NewChecker(engine, stores.resolver),
		Events:  emitter,
		Health:  health,
	})
	authn := auth.NewAuthenticator(tokens, &cfg.Security, auth.EngineRoles{Engine: engine})
	mw := api.NewMiddleware(api.MiddlewareConfigFromSecurity(&cfg.Security))
	return api.NewRouter(handler, mw, authn).Setup(), nil
}
