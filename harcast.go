package harcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/harcast/dashboard"
	"github.com/jpalmerr/harcast/internal/broadcast"
	"github.com/jpalmerr/harcast/internal/ingest"
	"github.com/jpalmerr/harcast/internal/mirror"
	"github.com/jpalmerr/harcast/internal/query"
	"github.com/jpalmerr/harcast/internal/store"
	"github.com/jpalmerr/harcast/internal/telemetry"
	"github.com/jpalmerr/harcast/internal/transport"
)

const (
	defaultBroadcastPort     = 9000
	defaultQueryPort         = 9001
	defaultBroadcastInterval = time.Second

	// stopTimeout bounds how long Start waits for background units after
	// the context is cancelled.
	stopTimeout = 5 * time.Second
)

// LineSource yields raw lines from a device. ReadLine should return
// promptly when ctx is cancelled or when Close is called.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// Relay reads telemetry frames from one source and republishes the most
// recent record to push, pull and (optionally) MQTT subscribers.
//
// A Relay is created with [New] and run with [Relay.Start]:
//
//	relay, err := harcast.New(harcast.WithSerialPort("/dev/ttyUSB0", 115200))
//	if err != nil {
//	    slog.Error("failed to create relay", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	relay.Start(ctx) // blocks until ctx is cancelled
type Relay struct {
	cfg    relayConfig
	logger *slog.Logger
}

// New creates a [Relay] with the given options.
//
// Exactly one source must be configured via [WithSerialPort],
// [WithReader] or [WithSource]. The push and pull ports default to 9000
// and 9001 and must differ.
func New(opts ...Option) (*Relay, error) {
	cfg := relayConfig{
		sentinel:          telemetry.DefaultSentinel,
		broadcastPort:     defaultBroadcastPort,
		broadcastInterval: defaultBroadcastInterval,
		queryPort:         defaultQueryPort,
	}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	switch cfg.sourceCount() {
	case 0:
		return nil, errors.New("a telemetry source is required")
	case 1:
	default:
		return nil, errors.New("only one telemetry source may be configured")
	}

	if cfg.broadcastPort == cfg.queryPort {
		return nil, fmt.Errorf("broadcast and query ports must differ, both are %d", cfg.queryPort)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{cfg: cfg, logger: logger}, nil
}

// BroadcastPort returns the push server port.
func (r *Relay) BroadcastPort() int {
	return r.cfg.broadcastPort
}

// QueryPort returns the pull server port.
func (r *Relay) QueryPort() int {
	return r.cfg.queryPort
}

// BroadcastInterval returns the push cadence.
func (r *Relay) BroadcastInterval() time.Duration {
	return r.cfg.broadcastInterval
}

// Start opens the source and runs every unit until ctx is cancelled.
//
// Start returns an error without serving anything if the source cannot
// be opened or either port cannot be bound. Otherwise it blocks until
// ctx is cancelled and returns nil. A finite source (such as a file or
// stdin) reaching its end stops ingestion but the last record keeps
// being served.
func (r *Relay) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	src, err := r.openSource()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	latest := store.NewLatest()
	loop := ingest.New(src, latest, ingest.Options{
		Parser:   telemetry.Parser{Sentinel: r.cfg.sentinel},
		Pacing:   r.cfg.pacing,
		OnRecord: r.dispatch,
	}, r.logger.With("unit", "ingest"))

	pushServer := broadcast.NewServer(latest, broadcast.Config{
		Port:        r.cfg.broadcastPort,
		Interval:    r.cfg.broadcastInterval,
		StaleAfter:  r.cfg.staleAfter,
		Title:       r.cfg.title,
		Assets:      dashboard.Assets,
		IngestStats: loop.Stats,
	}, r.logger.With("unit", "broadcast"))
	if err := pushServer.Start(runCtx); err != nil {
		_ = src.Close()
		return fmt.Errorf("failed to start broadcast server: %w", err)
	}

	pullServer := query.NewServer(latest, query.Config{
		Port:        r.cfg.queryPort,
		IdleTimeout: r.cfg.queryIdleTimeout,
	}, r.logger.With("unit", "query"))
	if err := pullServer.Start(runCtx); err != nil {
		cancel()
		_ = src.Close()
		return fmt.Errorf("failed to start query server: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(runCtx); err != nil {
			r.logger.Error("ingest stopped", "error", err)
			return
		}
		if runCtx.Err() == nil {
			r.logger.Info("source exhausted, serving last record")
		}
	}()

	if r.cfg.mqtt != nil {
		m := mirror.New(latest, mirror.Config{
			Broker:   r.cfg.mqtt.Broker,
			ClientID: r.cfg.mqtt.ClientID,
			Topic:    r.cfg.mqtt.Topic,
			QoS:      r.cfg.mqtt.QoS,
			Interval: r.cfg.mqtt.Interval,
			Username: r.cfg.mqtt.Username,
			Password: r.cfg.mqtt.Password,
		}, r.logger.With("unit", "mirror"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Run(runCtx); err != nil {
				r.logger.Error("mqtt mirror stopped", "error", err)
			}
		}()
	}

	r.logger.Info("harcast started",
		"source", r.cfg.sourceName(),
		"broadcast_port", r.cfg.broadcastPort,
		"query_port", r.cfg.queryPort,
		"interval", r.cfg.broadcastInterval.String(),
	)

	<-ctx.Done()

	// closing the source unblocks a ReadLine with no timeout of its own
	if err := src.Close(); err != nil {
		r.logger.Warn("failed to close source", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		pullServer.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		r.logger.Warn("timed out waiting for units to stop")
	}

	r.logger.Info("harcast stopped")
	return nil
}

// openSource opens the configured source.
func (r *Relay) openSource() (transport.LineSource, error) {
	switch {
	case r.cfg.serial != nil:
		s, err := transport.OpenSerial(*r.cfg.serial)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port: %w", err)
		}
		return s, nil
	case r.cfg.reader != nil:
		return transport.NewReader(r.cfg.reader), nil
	default:
		return r.cfg.source, nil
	}
}

// dispatch runs on the ingest goroutine after each store update.
func (r *Relay) dispatch(rec telemetry.Record) {
	for _, cb := range r.cfg.recordCallbacks {
		invokeCallbackSafe(cb, toPublicRecord(rec), r.logger)
	}
}

// invokeCallbackSafe calls a record callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(Record), rec Record, logger *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("record callback panicked",
				"panic_id", uuid.NewString(),
				"panic", p,
				"record_time", rec.Time,
			)
		}
	}()
	cb(rec)
}
