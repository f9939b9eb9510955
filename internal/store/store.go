package store

import (
	"time"

	"github.com/jpalmerr/harcast/internal/telemetry"
)

// Snapshot is an immutable view of the store at one point in time.
type Snapshot struct {
	// Record is the most recent successfully parsed frame.
	Record telemetry.Record

	// Seq counts successful Set calls; the first record has Seq 1.
	Seq uint64

	// UpdatedAt is when the record was stored. Staleness is measured from here.
	UpdatedAt time.Time
}

// Age returns how long ago the snapshot was stored.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}

// Store defines the latest-value register shared by producer and consumers.
//
// Store implementations must be safe for concurrent access. A Get must
// never observe fields from two different Set calls.
type Store interface {
	// Set replaces the held record unconditionally.
	Set(rec telemetry.Record)

	// Get returns a copy of the current snapshot. ok is false until the
	// first Set, which is the "unknown" state.
	Get() (snap Snapshot, ok bool)
}
