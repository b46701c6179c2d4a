// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

/*
Package config loads process configuration with koanf.

# Configuration Sources

Sources are layered, later ones winning:
  - Struct defaults (defaultConfig)
  - An optional YAML file: CONFIG_PATH, else config.yaml or /etc/lakekeeper/config.yaml
  - Environment variables listed in envMappings

Unmapped environment variables are ignored. Secrets such as JWT_SECRET are
usually supplied through the environment rather than the file.

# Sections

  - server: HTTP listener, server id, bootstrap admin
  - security: JWT verification, anonymous access, rate limiting, CORS
  - logging: zerolog level and format
  - catalog: DuckDB metadata store and version-aware caches
  - tuplestore: embedded Badger graph and client batching, retry and breaker
  - authz: anonymous policy and audit log
  - events: event publisher backend (none, channel, nats) and topic
  - nats: connection, embedded server and JetStream stream

# Example YAML

	server:
	  port: 8181
	  server_id: 6a2f0c1e-8d1b-4d7e-9a53-2f4f9f6b1c00
	security:
	  allow_anonymous: false
	events:
	  publisher: nats
	nats:
	  embedded_server: true
	  store_dir: /data/nats
*/
package config
