// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

/*
Package api serves the permissions management API over chi.

All catalog routes live under /management/v1/permissions and require an
authenticated actor unless anonymous access is enabled:

  - {object}/authorizer-actions lists the actions the caller, or the
    principal named by principalUser or principalRole, holds on an object.
  - {object}/assignments reads (GET) or changes (POST) direct grants.
  - warehouse/{id} and namespace/{id} report managed access, and their
    managed-access subresources change it.
  - check evaluates a batch of up to 1000 permission checks.

/healthz and /metrics are served outside the prefix without authentication.

Successful responses carry the plain payload. Failures use the Iceberg REST
error model:

	{"error": {"message": "...", "type": "FORBIDDEN", "code": 403, "request-id": "..."}}

Every error kind maps to exactly one status in writeError. Absent objects
and objects the caller may not see both answer 404 with the same body, so
a denial never reveals existence.

Usage:

	handler := api.NewHandler(api.Deps{Engine: engine, Checker: checker, Events: emitter})
	router := api.NewRouter(handler, api.NewMiddleware(&cfg.Security), authenticator)
	srv := &http.Server{Handler: router.Setup()}
*/
package api
