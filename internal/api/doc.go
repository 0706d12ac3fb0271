// Package api implements the HTTP REST API and WebSocket server for the
// cover decision engine.
//
// This package provides:
//   - REST endpoints to inspect covers and drive overrides, shading and
//     recalibration
//   - Per-cover decision history and per-entry option editing
//   - An audit trail of operator actions
//   - WebSocket hub broadcasting every engine snapshot
//   - Bearer JWT authorisation with a viewer/operator/admin role model
//   - Middleware stack (request ID, logging, metrics, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
//	HTTP ──▶ chi router ──▶ cover.Registry ──▶ Coordinator ──▶ Engine
//	                    └─▶ history.Repository
//	                    └─▶ EntryManager (options store)
//	                    └─▶ audit queue ──▶ audit.Repository
//	Engine ──snapshot──▶ Broadcaster ──▶ Hub ──▶ WebSocket clients
//
// # Security
//
// When security.jwt.secret is empty every route is open. Otherwise each
// request needs "Authorization: Bearer <token>"; WebSocket clients may pass
// the token as the token query parameter instead.
//
// # Graceful Degradation
//
// History, auditing and option editing are optional. Without them the matching
// routes answer 503 and everything else keeps working.
package api
