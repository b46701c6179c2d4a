// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

// Package logging is the process-wide zerolog logger.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json", Timestamp: true})
//
//	logging.Info().Str("warehouse_id", id).Msg("Warehouse created")
//	logging.Err(err).Msg("Tuple write failed")
//
// # Request Context
//
// HTTP middleware stores the request id and actor in the request context.
// Ctx(ctx) returns a logger that carries them:
//
//	logging.Ctx(ctx).Warn().Str("object", obj).Msg("Grant rejected")
//
// # slog Bridge
//
// The supervisor tree and the watermill publisher take *slog.Logger.
// NewSlogLogger and NewComponentSlogLogger hand them a handler that writes
// through zerolog, so every line shares one format and level.
//
// Always terminate chains with .Msg() or .Send(); an unterminated event is
// never written.
package logging
