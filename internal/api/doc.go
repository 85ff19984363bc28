// Package api implements the local HTTP API and WebSocket event stream for
// the shell updater.
//
// This package provides:
//   - REST endpoints to start firmware and database updates, report host
//     connectivity, and read status and update history
//   - A WebSocket hub that relays every notification event to UI clients
//   - Bearer JWT authentication with single-use WebSocket tickets
//   - A Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The API is a thin adapter over update.Service. A UI posts to
// /api/v1/updates/{target} and follows progress on the WebSocket stream;
// the POST returns once the request reaches a terminal state.
//
// # Security
//
// Every route except /api/v1/health and /metrics requires a token signed
// with security.jwt.secret (see IssueToken and `shellupdater token`).
// WebSocket connections use single-use tickets so the token never appears
// in a URL.
package api
