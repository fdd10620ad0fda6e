// Package api implements the HTTP control API and WebSocket server for FeedSync Core.
//
// This package provides:
//   - REST endpoints for the device inventory and the mapping table
//   - Mapping start/stop and the HTTP text feed
//   - A WebSocket hub that pushes readings, state changes, and sent commands
//   - Optional JWT bearer authentication
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a thin layer over engine.Service. Every mutation goes through
// the service, which runs it on the engine's scheduler, so handlers never
// touch engine state directly. The Hub implements engine.Observer and is
// attached to the engine at startup.
//
// # WebSocket events
//
// Clients subscribe to any of:
//
//	signal.read     the reading taken on each ingestion tick
//	mapping.state   running/stopped transitions with the session ID
//	command.sent    every intensity vector delivered (or failed) on the channel
//
// # Security
//
// When security.jwt.enabled is set, every route except /health requires an
// HS256 bearer token signed with the configured secret. Browsers that cannot
// set headers on a WebSocket upgrade pass the token as ?token=.
package api
