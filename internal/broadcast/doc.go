// Package broadcast provides the push side of harcast: an HTTP server
// whose clients receive the latest telemetry snapshot on a fixed cadence.
//
// Endpoints:
//
//   - GET /ws (or any request to / carrying a WebSocket upgrade): WebSocket push
//   - GET /api/sse: Server-Sent Events push with the same cadence and payload
//   - GET /api/telemetry: the current snapshot as a single JSON message
//   - GET /api/health: store freshness, connected clients and ingest counters
//   - GET /: the embedded live dashboard
//
// Every push client gets its own delivery goroutine with its own ticker
// and write deadline. A slow or dead client only ever blocks itself; it is
// dropped from the [Registry] when a write fails. There is no queue of
// missed updates: each send carries whatever the store holds at that
// moment.
package broadcast
