package transport

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned by ReadLine when no complete line arrived
	// within the read timeout. It is transient; the caller should retry.
	ErrTimeout = errors.New("read timed out")

	// ErrLineTooLong is returned when a line exceeds the maximum length.
	// The partial line is discarded.
	ErrLineTooLong = errors.New("line too long")

	// ErrClosed is returned by reads on a closed source.
	ErrClosed = errors.New("source closed")
)

// maxLineLength bounds a single frame. Real frames are well under 200 bytes.
const maxLineLength = 4096

// LineSource is a line-oriented byte source with a bounded-wait read.
//
// ReadLine returns the next line without its trailing newline. It returns
// [ErrTimeout] if no line completed in time, io.EOF when a finite source
// is exhausted, and any other error for transport failures.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// Reopener is implemented by sources that can recover from a hard read
// error (for example an unplugged and replugged USB serial adapter).
type Reopener interface {
	Reopen() error
}
