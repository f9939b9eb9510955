// Package store holds the single most recent telemetry record.
//
// The store is the only state shared between the ingest loop (the one
// writer) and the network servers (the readers). It holds at most one
// record: every [Latest.Set] replaces the previous value, and
// [Latest.Get] returns a copy that later writes cannot change.
//
// The main components are:
//
//   - [Store]: Interface implemented by the latest-value register
//   - [Latest]: RWMutex-guarded implementation of Store
//   - [Snapshot]: The record together with its sequence number and update time
//
// The lock is held only to swap or copy a pointer. Serialization and
// network I/O always happen on the copy, after the lock is released, so a
// slow client can never stall the writer.
package store
