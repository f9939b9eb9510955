package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/harcast/internal/store"
	"github.com/jpalmerr/harcast/internal/telemetry"
	"github.com/jpalmerr/harcast/internal/transport"
)

const (
	// DefaultPacing is the pause between iterations.
	DefaultPacing = 100 * time.Millisecond

	// DefaultRetryDelay is the wait after a hard read error before retrying.
	DefaultRetryDelay = time.Second
)

// Options configures a [Loop].
type Options struct {
	// Parser parses raw lines. The zero value uses the default sentinel.
	Parser telemetry.Parser

	// Pacing is the delay between iterations. Zero uses [DefaultPacing];
	// a negative value disables pacing.
	Pacing time.Duration

	// RetryDelay is the wait after a hard read error. Zero uses [DefaultRetryDelay].
	RetryDelay time.Duration

	// OnRecord, if set, is called on the loop goroutine after each
	// successful store update. It must not block.
	OnRecord func(telemetry.Record)
}

// Stats is a point-in-time copy of the loop counters.
type Stats struct {
	Lines      uint64 `json:"lines"`
	Accepted   uint64 `json:"accepted"`
	Rejected   uint64 `json:"rejected"`
	ReadErrors uint64 `json:"read_errors"`
}

// Loop reads, parses and stores telemetry until its context is cancelled.
type Loop struct {
	src    transport.LineSource
	store  store.Store
	opts   Options
	logger *slog.Logger

	lines      atomic.Uint64
	accepted   atomic.Uint64
	rejected   atomic.Uint64
	readErrors atomic.Uint64
}

// New creates a [Loop]. The source must already be open; failing to open
// it is a startup error handled by the caller.
func New(src transport.LineSource, st store.Store, opts Options, logger *slog.Logger) *Loop {
	if opts.Pacing == 0 {
		opts.Pacing = DefaultPacing
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Loop{
		src:    src,
		store:  st,
		opts:   opts,
		logger: logger,
	}
}

// Stats returns the current counters. Safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	return Stats{
		Lines:      l.lines.Load(),
		Accepted:   l.accepted.Load(),
		Rejected:   l.rejected.Load(),
		ReadErrors: l.readErrors.Load(),
	}
}

// Run blocks until ctx is cancelled or a finite source reports io.EOF.
// It returns nil in both cases; no per-line or per-read failure ends it.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := l.src.ReadLine(ctx)
		switch {
		case err == nil:
			l.lines.Add(1)
			l.handleLine(line)

		case ctx.Err() != nil:
			return nil

		case errors.Is(err, transport.ErrTimeout):
			l.logger.Debug("no telemetry within read timeout")

		case errors.Is(err, io.EOF):
			l.logger.Info("telemetry source exhausted",
				"lines", l.lines.Load(),
				"accepted", l.accepted.Load(),
			)
			return nil

		default:
			l.readErrors.Add(1)
			l.logger.Warn("telemetry read failed", "error", err)
			if errors.Is(err, transport.ErrLineTooLong) {
				break
			}
			if !sleep(ctx, l.opts.RetryDelay) {
				return nil
			}
			l.reopen()
		}

		if l.opts.Pacing > 0 && !sleep(ctx, l.opts.Pacing) {
			return nil
		}
	}
}

// handleLine parses one line and updates the store on success.
func (l *Loop) handleLine(line string) {
	rec, err := l.opts.Parser.Parse(line)
	switch {
	case err == nil:
	case errors.Is(err, telemetry.ErrNotFrame):
		return
	default:
		l.rejected.Add(1)
		l.logger.Warn("dropping malformed telemetry frame",
			"error", err,
			"line", line,
		)
		return
	}

	l.store.Set(rec)
	l.accepted.Add(1)
	l.logger.Debug("telemetry updated",
		"record_time", rec.Time,
		"lat", rec.Lat,
		"lon", rec.Lon,
		"alt", rec.Alt,
	)

	if l.opts.OnRecord != nil {
		l.opts.OnRecord(rec.Clone())
	}
}

// reopen asks the source to reconnect if it knows how.
func (l *Loop) reopen() {
	r, ok := l.src.(transport.Reopener)
	if !ok {
		return
	}
	if err := r.Reopen(); err != nil {
		l.logger.Warn("telemetry source reopen failed", "error", err)
		return
	}
	l.logger.Info("telemetry source reopened")
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
