package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSentinel is the literal prefix that marks a line as a telemetry frame.
const DefaultSentinel = "$$HAR"

// delimiter separates the fields of a frame.
const delimiter = ","

var (
	// ErrNotFrame is returned for lines that do not start with the sentinel.
	// It is a non-match rather than a failure; callers skip such lines silently.
	ErrNotFrame = errors.New("not a telemetry frame")

	// ErrTooFewFields is matched by a [ParseError] for a frame that carries
	// fewer than [DataFields] data fields.
	ErrTooFewFields = errors.New("too few fields")
)

// ParseError describes a sentinel-prefixed line that could not be turned
// into a [Record].
type ParseError struct {
	// Fields is the number of data fields found after the sentinel.
	Fields int
	// Min is the number of data fields required.
	Min int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("telemetry frame has %d data fields, need at least %d", e.Fields, e.Min)
}

// Unwrap lets errors.Is match [ErrTooFewFields].
func (e *ParseError) Unwrap() error {
	return ErrTooFewFields
}

// Parser turns raw device lines into records.
//
// The zero value uses [DefaultSentinel]. A Parser holds no state and is
// safe for concurrent use.
type Parser struct {
	// Sentinel overrides the frame prefix. Empty means [DefaultSentinel].
	Sentinel string
}

// Parse parses line with the default sentinel.
func Parse(line string) (Record, error) {
	return Parser{}.Parse(line)
}

// Parse parses a single line.
//
// Surrounding whitespace (including the serial "\r\n") is removed first.
// Lines not starting with the sentinel yield [ErrNotFrame]. Frames with
// fewer than [DataFields] data fields yield a *[ParseError]. Otherwise
// the trimmed data fields are assigned in order, an 11th data field
// becomes Extra, and anything after that is ignored.
func (p Parser) Parse(line string) (Record, error) {
	sentinel := p.Sentinel
	if sentinel == "" {
		sentinel = DefaultSentinel
	}

	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, sentinel) {
		return Record{}, ErrNotFrame
	}

	parts := strings.Split(line, delimiter)
	if len(parts) < 1+DataFields {
		return Record{}, &ParseError{Fields: len(parts) - 1, Min: DataFields}
	}

	var rec Record
	for i, field := range rec.fields() {
		*field = strings.TrimSpace(parts[1+i])
	}
	if len(parts) > 1+DataFields {
		extra := strings.TrimSpace(parts[1+DataFields])
		rec.Extra = &extra
	}
	return rec, nil
}
