package harcast

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jpalmerr/harcast/internal/transport"
)

// relayConfig holds mutable state during Relay construction.
type relayConfig struct {
	serial *transport.SerialConfig
	reader io.Reader
	source LineSource

	sentinel string
	pacing   time.Duration

	broadcastPort     int
	broadcastInterval time.Duration
	staleAfter        time.Duration
	queryPort         int
	queryIdleTimeout  time.Duration

	mqtt *MQTTConfig

	title           string
	logger          *slog.Logger
	recordCallbacks []func(Record)
}

func (c *relayConfig) sourceCount() int {
	n := 0
	if c.serial != nil {
		n++
	}
	if c.reader != nil {
		n++
	}
	if c.source != nil {
		n++
	}
	return n
}

func (c *relayConfig) sourceName() string {
	switch {
	case c.serial != nil:
		return c.serial.Device
	case c.reader != nil:
		return "reader"
	default:
		return "custom"
	}
}

// MQTTConfig configures the optional MQTT mirror enabled by [WithMQTT].
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883". Required.
	Broker string

	// ClientID defaults to "harcast".
	ClientID string

	// Topic defaults to "harcast/telemetry".
	Topic string

	// QoS is 0, 1 or 2.
	QoS byte

	// Interval is the publish cadence. Defaults to one second.
	Interval time.Duration

	Username string
	Password string
}

// Option is a function that configures a [Relay] during construction.
// Options return an error if validation fails.
type Option func(*relayConfig) error

// WithSerialPort reads frames from a serial device. A zero baud rate
// selects 115200.
//
// Example:
//
//	relay, err := harcast.New(harcast.WithSerialPort("/dev/ttyUSB0", 115200))
//
// Returns an error if the device is empty or the baud rate is negative.
func WithSerialPort(device string, baudRate int) Option {
	return func(cfg *relayConfig) error {
		if device == "" {
			return errors.New("serial device cannot be empty")
		}
		if baudRate < 0 {
			return fmt.Errorf("baud rate must not be negative, got %d", baudRate)
		}
		timeout := time.Duration(0)
		if cfg.serial != nil {
			timeout = cfg.serial.ReadTimeout
		}
		cfg.serial = &transport.SerialConfig{Device: device, BaudRate: baudRate, ReadTimeout: timeout}
		return nil
	}
}

// WithSerialReadTimeout sets how long a single serial read may block.
// It must follow [WithSerialPort]. Defaults to one second.
func WithSerialReadTimeout(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if cfg.serial == nil {
			return errors.New("serial read timeout requires a serial port")
		}
		if d <= 0 {
			return errors.New("serial read timeout must be positive")
		}
		cfg.serial.ReadTimeout = d
		return nil
	}
}

// WithReader reads newline-delimited frames from r, for example stdin or
// a capture file. Reaching the end of r stops ingestion.
func WithReader(r io.Reader) Option {
	return func(cfg *relayConfig) error {
		if r == nil {
			return errors.New("reader cannot be nil")
		}
		cfg.reader = r
		return nil
	}
}

// WithSource reads frames from a caller-supplied [LineSource].
func WithSource(src LineSource) Option {
	return func(cfg *relayConfig) error {
		if src == nil {
			return errors.New("source cannot be nil")
		}
		cfg.source = src
		return nil
	}
}

// WithSentinel changes the prefix that marks a telemetry frame.
// Defaults to "$$HAR".
func WithSentinel(sentinel string) Option {
	return func(cfg *relayConfig) error {
		if sentinel == "" {
			return errors.New("sentinel cannot be empty")
		}
		cfg.sentinel = sentinel
		return nil
	}
}

// WithPacing sets the pause between ingest iterations. Zero keeps the
// 100ms default; a negative value disables pacing.
func WithPacing(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		cfg.pacing = d
		return nil
	}
}

// WithBroadcastPort sets the push server port. Defaults to 9000.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithBroadcastPort(port int) Option {
	return func(cfg *relayConfig) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("broadcast port must be between 1 and 65535, got %d", port)
		}
		cfg.broadcastPort = port
		return nil
	}
}

// WithBroadcastInterval sets how often each push client receives the
// current record. Defaults to one second.
func WithBroadcastInterval(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("broadcast interval must be positive")
		}
		cfg.broadcastInterval = d
		return nil
	}
}

// WithStaleAfter sets the record age at which /api/health reports
// "stale". Defaults to five broadcast intervals.
func WithStaleAfter(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("stale threshold must be positive")
		}
		cfg.staleAfter = d
		return nil
	}
}

// WithQueryPort sets the pull server port. Defaults to 9001.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithQueryPort(port int) Option {
	return func(cfg *relayConfig) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("query port must be between 1 and 65535, got %d", port)
		}
		cfg.queryPort = port
		return nil
	}
}

// WithQueryIdleTimeout closes pull connections that send nothing for d.
// By default idle connections are kept open.
func WithQueryIdleTimeout(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d < 0 {
			return errors.New("query idle timeout must not be negative")
		}
		cfg.queryIdleTimeout = d
		return nil
	}
}

// WithMQTT mirrors the latest record to an MQTT broker as a retained
// message.
func WithMQTT(c MQTTConfig) Option {
	return func(cfg *relayConfig) error {
		if c.Broker == "" {
			return errors.New("mqtt broker cannot be empty")
		}
		if c.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.QoS)
		}
		if c.Interval < 0 {
			return errors.New("mqtt interval must not be negative")
		}
		cfg.mqtt = &c
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified,
// [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *relayConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title. Defaults to "harcast".
func WithTitle(title string) Option {
	return func(cfg *relayConfig) error {
		cfg.title = title
		return nil
	}
}

// WithRecordCallback registers a function called for every accepted
// frame, after the record is visible to subscribers.
//
// Callbacks run synchronously on the ingest goroutine in registration
// order and must not block. Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithRecordCallback(cb func(Record)) Option {
	return func(cfg *relayConfig) error {
		if cb == nil {
			return nil
		}
		cfg.recordCallbacks = append(cfg.recordCallbacks, cb)
		return nil
	}
}
