// Package query provides the pull side of harcast: a raw TCP server that
// answers every request with the latest telemetry snapshot.
//
// The protocol is request-triggers-response. Any read that returns at
// least one byte counts as one request; the payload is not interpreted.
// Each response is one JSON message followed by a newline, so a client
// can reuse the connection for many cycles or close it after one.
package query
