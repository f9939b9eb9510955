package config

import (
	"github.com/jpalmerr/harcast"
)

// BuildOptions converts parsed configuration into SDK options.
//
// A serial source is included only when serial.device is set; callers
// reading from another source add it themselves. The logger is left to
// the caller.
func BuildOptions(cfg *Config) []harcast.Option {
	opts := []harcast.Option{
		harcast.WithSentinel(cfg.Sentinel),
		harcast.WithPacing(cfg.Pacing.Duration()),
		harcast.WithBroadcastPort(cfg.Broadcast.Port),
		harcast.WithBroadcastInterval(cfg.Broadcast.Interval.Duration()),
		harcast.WithQueryPort(cfg.Query.Port),
		harcast.WithQueryIdleTimeout(cfg.Query.IdleTimeout.Duration()),
	}

	if cfg.Serial.Device != "" {
		opts = append(opts,
			harcast.WithSerialPort(cfg.Serial.Device, cfg.Serial.BaudRate),
			harcast.WithSerialReadTimeout(cfg.Serial.ReadTimeout.Duration()),
		)
	}

	if cfg.Broadcast.StaleAfter != 0 {
		opts = append(opts, harcast.WithStaleAfter(cfg.Broadcast.StaleAfter.Duration()))
	}

	if cfg.Title != "" {
		opts = append(opts, harcast.WithTitle(cfg.Title))
	}

	if cfg.MQTT.Enabled() {
		opts = append(opts, harcast.WithMQTT(harcast.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
			Interval: cfg.MQTT.Interval.Duration(),
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}))
	}

	return opts
}
