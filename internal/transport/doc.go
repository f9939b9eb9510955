// Package transport provides line sources for the ingest loop.
//
// A [LineSource] yields one newline-terminated text line per ReadLine call
// and bounds how long a read may wait, so the caller can notice shutdown
// between reads. Two implementations are provided: [Serial] for a real
// device via go.bug.st/serial, and [Reader] for any io.Reader such as
// stdin, a capture file, or a pipe from a simulator.
package transport
