// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

/*
Package supervisor runs the server's long-lived services under a suture v4
tree.

The tree has three layers, each restarted independently:

	root ("lakekeeper")
	├── data-layer
	│   └── resource services owning the tuple store and catalog handles
	├── messaging-layer
	│   ├── embedded NATS server (when events.publisher is "nats" and
	│   │   nats.embedded_server is set)
	│   └── event sink and audit logger shutdown hooks
	└── api-layer
	    └── HTTP server

Supervisor events (starts, failures, backoff) are logged through
sutureslog into the zerolog-backed slog handler from the logging package.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	return tree.Serve(ctx)

The service adapters live in the services subpackage.
*/
package supervisor
