package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// Reader adapts an io.Reader into a [LineSource].
//
// The wrapped reader has no read timeout, so ReadLine only observes ctx
// between lines. Closing the source closes the underlying reader when it
// implements io.Closer, which unblocks pipes and files.
type Reader struct {
	r  io.Reader
	br *bufio.Reader

	closeOnce sync.Once
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:  r,
		br: bufio.NewReaderSize(r, maxLineLength+1),
	}
}

// ReadLine returns the next line. A final line without a trailing newline
// is still returned; io.EOF follows on the next call. A line longer than
// the frame limit is discarded and reported as [ErrLineTooLong].
func (r *Reader) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	line, err := r.br.ReadSlice('\n')
	switch {
	case err == nil:
		return trimLine(line), nil
	case errors.Is(err, bufio.ErrBufferFull):
		return "", r.discardLine()
	case errors.Is(err, io.EOF) && len(line) > 0:
		return trimLine(line), nil
	default:
		return "", err
	}
}

// discardLine skips the rest of an oversized line.
func (r *Reader) discardLine() error {
	for {
		_, err := r.br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return ErrLineTooLong
	}
}

func trimLine(line []byte) string {
	return string(bytes.TrimRight(bytes.TrimSuffix(line, []byte{'\n'}), "\r"))
}

// Close closes the wrapped reader if it is an io.Closer.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if c, ok := r.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
