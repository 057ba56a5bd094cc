// Package api implements the HTTP REST API and WebSocket server for Hearth.
//
// This package provides:
//   - REST endpoints for room snapshots, manual overrides, dry-run
//     evaluation, re-scheduling, entity states and value history
//   - WebSocket hub for real-time room value and entity state broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Role tiers: viewers read, operators override, admins audit
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces (wall panels, mobile
// apps, dashboards) and the room scheduling engine. Overrides and
// re-schedule requests flow into the engine exactly like their MQTT
// counterparts, except that API callers are authenticated and their
// overrides are trusted, so expressions are allowed. Room value
// changes flow back out through the WebSocket hub, which doubles as
// the engine's event sink.
//
// # Security
//
// Authentication uses JWT access tokens issued against the accounts
// declared in the configuration file. WebSocket connections use
// single-use tickets to keep tokens out of URLs. Engine calls made on
// behalf of a request carry the api audit source, so the audit trail
// distinguishes them from MQTT and schedule actions.
//
// # Graceful Degradation
//
// The server operates without history storage or an audit repository.
// The affected endpoints report unavailable; everything else works.
package api
