package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jpalmerr/harcast/internal/store"
	"github.com/jpalmerr/harcast/internal/telemetry"
)

const (
	// DefaultTopic is the topic snapshots are published to.
	DefaultTopic = "harcast/telemetry"

	// DefaultInterval is the publish cadence.
	DefaultInterval = time.Second

	publishTimeout = 5 * time.Second
	connectPoll    = 200 * time.Millisecond
)

// errNotConnected is returned by publish while the broker is unreachable.
var errNotConnected = errors.New("mqtt client not connected")

// Config configures a [Mirror].
type Config struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string

	// ClientID identifies this connection to the broker.
	ClientID string

	// Topic defaults to [DefaultTopic].
	Topic string

	// QoS is the publish quality of service (0, 1 or 2).
	QoS byte

	// Interval defaults to [DefaultInterval].
	Interval time.Duration

	// Username and Password are optional broker credentials.
	Username string
	Password string
}

// client is the subset of mqtt.Client the mirror uses.
type client interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Mirror publishes store snapshots to MQTT.
type Mirror struct {
	cfg    Config
	store  store.Store
	client client
	logger *slog.Logger

	mu      sync.Mutex
	lastSeq uint64
}

// New creates a [Mirror]. The broker is not contacted until [Mirror.Run].
func New(st store.Store, cfg Config, logger *slog.Logger) *Mirror {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "harcast"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	return newMirror(st, cfg, mqtt.NewClient(opts), logger)
}

func newMirror(st store.Store, cfg Config, c client, logger *slog.Logger) *Mirror {
	return &Mirror{
		cfg:    cfg,
		store:  st,
		client: c,
		logger: logger,
	}
}

// Run connects and publishes until ctx is cancelled. The initial connect
// is retried in the background by paho; Run only fails if the broker
// rejects the connection outright.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() {
		m.client.Disconnect(250)
		m.logger.Info("mqtt disconnected")
	}()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := m.publishLatest(); err != nil {
			m.logger.Warn("mqtt publish failed", "topic", m.cfg.Topic, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// connect waits for the initial connection while respecting ctx.
func (m *Mirror) connect(ctx context.Context) error {
	token := m.client.Connect()
	for {
		if token.WaitTimeout(connectPoll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect %s: %w", m.cfg.Broker, err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// publishLatest publishes the current snapshot if it is newer than the
// last one published. The unknown state is never published.
func (m *Mirror) publishLatest() error {
	snap, ok := m.store.Get()
	if !ok {
		return nil
	}

	m.mu.Lock()
	last := m.lastSeq
	m.mu.Unlock()
	if snap.Seq == last {
		return nil
	}

	if !m.client.IsConnected() {
		return errNotConnected
	}

	data, err := telemetry.Encode(snap.Record, true)
	if err != nil {
		return err
	}

	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, true, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", m.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}

	m.mu.Lock()
	m.lastSeq = snap.Seq
	m.mu.Unlock()

	m.logger.Debug("published telemetry", "topic", m.cfg.Topic, "seq", snap.Seq)
	return nil
}
