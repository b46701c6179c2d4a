// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

/*
Package services adapts server components to suture.Service.

  - HTTPServerService runs ListenAndServe and drains on shutdown.
  - EmbeddedNATSService watches an in-process NATS server and stops it
    with the tree.
  - ResourceService closes a handle (badger, DuckDB, an event sink, the
    audit logger) when the tree stops.

Every service returns ctx.Err() on a clean stop and implements
fmt.Stringer so supervisor logs name it.
*/
package services
