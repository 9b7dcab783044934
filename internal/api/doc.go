// Package api implements the read-only maintenance API and WebSocket
// notification mirror for NeoBin.
//
// This package provides:
//   - REST endpoints for the current lid state, transition history and settings
//   - WebSocket hub mirroring every controller notification to dashboards
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The BLE GATT service remains the only command surface. The API never
// mutates the lid: it reads the controller snapshot, queries the history
// repository, and relays events the notify publisher hands to the Hub.
//
// # Security
//
// The operator logs in with the maintenance password (stored as an Argon2id
// hash) and receives a short-lived bearer token. WebSocket connections use
// single-use tickets so the token never appears in a URL.
//
// Routes:
//
//	GET  /api/v1/health           public
//	POST /api/v1/auth/login       public
//	POST /api/v1/auth/ws-ticket   bearer
//	GET  /api/v1/lid              bearer
//	GET  /api/v1/lid/history      bearer, ?limit=N
//	GET  /api/v1/lid/{selector}   bearer, STATUS | OPENED | ANGLE
//	GET  /api/v1/settings         bearer
//	GET  /api/v1/ws               ?ticket=
package api
