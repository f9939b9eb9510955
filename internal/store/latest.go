package store

import (
	"sync"
	"time"

	"github.com/jpalmerr/harcast/internal/telemetry"
)

// Latest is the in-memory implementation of [Store].
//
// Latest keeps a pointer to an immutable [Snapshot]. Set builds the new
// snapshot before taking the lock, so the write lock covers only the
// pointer swap; Get copies the snapshot value out under the read lock.
type Latest struct {
	mu   sync.RWMutex
	snap *Snapshot
	seq  uint64

	now func() time.Time
}

// NewLatest creates an empty [Latest] store in the unknown state.
func NewLatest() *Latest {
	return &Latest{now: time.Now}
}

// Set stores rec as the latest value. rec is cloned, so the caller may
// reuse it afterwards.
func (l *Latest) Set(rec telemetry.Record) {
	next := &Snapshot{
		Record:    rec.Clone(),
		UpdatedAt: l.now(),
	}

	l.mu.Lock()
	l.seq++
	next.Seq = l.seq
	l.snap = next
	l.mu.Unlock()
}

// Get returns a copy of the latest snapshot, or ok=false if nothing has
// been stored yet.
func (l *Latest) Get() (Snapshot, bool) {
	l.mu.RLock()
	snap := l.snap
	l.mu.RUnlock()

	if snap == nil {
		return Snapshot{}, false
	}
	// *snap is never mutated after publication; cloning the record keeps
	// callers from reaching the stored Extra pointer.
	out := *snap
	out.Record = snap.Record.Clone()
	return out, true
}
