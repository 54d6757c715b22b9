// Package server implements the HTTP façade over the Coolify API.
//
// This package provides:
//   - Step-by-step endpoints mirroring the platform's project, application,
//     env var and deployment operations
//   - A one-call full-deployment endpoint that allocates a host port and
//     runs the whole flow
//   - Per-IP rate limiting, stricter on the port-allocating endpoint
//   - Health endpoint reporting configuration completeness
//   - Structured logging of all HTTP requests
//
// The server integrates with other packages:
//   - internal/coolify: typed client for the platform API
//   - internal/deploy: the orchestrated full-deployment flow
//   - internal/portalloc: the persistent host port counter
//   - internal/history: SQLite-based deployment history tracking
//
// Input validation:
//   - Project names, subdomains and repository URLs are validated before
//     any platform call
//   - Payload size limits (1MB max)
//   - Upstream error statuses are passed through unchanged
package server
