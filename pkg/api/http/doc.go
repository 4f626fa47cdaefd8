// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Flow document storage and fire-time previews
//   - Flow and task run creation, retrieval, and state transitions
//   - Run history aggregation
//   - Health checks
//   - Prometheus metrics
//
// Durations cross the wire as float seconds and instants as RFC 3339
// timestamps.
package http
