// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/flow_runs/:id/ws to receive the run's
// lifecycle events as they are published on the event bus.
package websocket
