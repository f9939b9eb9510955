// Package config provides YAML configuration parsing for harcast.
//
// This package enables running harcast as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Balloon 7
//	sentinel: "$$HAR"
//
//	serial:
//	  device: ${HARCAST_DEVICE:-/dev/ttyUSB0}
//	  baud_rate: 115200
//
//	broadcast:
//	  port: 9000
//	  interval: 1s
//
//	query:
//	  port: 9001
//
//	mqtt:
//	  broker: ${MQTT_BROKER:-}
//	  topic: balloon/telemetry
//
//	log:
//	  level: info
//	  format: json
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/harcast/internal/logging"
)

// Defaults applied by [Parse] when a field is omitted.
const (
	DefaultBroadcastPort = 9000
	DefaultQueryPort     = 9001
	DefaultInterval      = time.Second
	DefaultBaudRate      = 115200
	DefaultReadTimeout   = time.Second
	DefaultPacing        = 100 * time.Millisecond
	DefaultSentinel      = "$$HAR"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = logging.FormatJSON
)

// minInterval keeps push and mirror loops from spinning.
const minInterval = 10 * time.Millisecond

// Config is the root configuration structure for harcast.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "harcast" if not set.
	Title string `yaml:"title"`

	// Sentinel is the prefix that marks a telemetry frame. Defaults to "$$HAR".
	Sentinel string `yaml:"sentinel"`

	// Pacing is the pause between ingest iterations. Defaults to 100ms;
	// a negative value disables pacing.
	Pacing Duration `yaml:"pacing"`

	Serial    SerialConfig    `yaml:"serial"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Query     QueryConfig     `yaml:"query"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
}

// SerialConfig configures the serial device.
type SerialConfig struct {
	// Device is the serial device path.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	// May be empty when frames are read from stdin instead.
	Device string `yaml:"device"`

	// BaudRate defaults to 115200.
	BaudRate int `yaml:"baud_rate"`

	// ReadTimeout bounds a single read. Defaults to 1s.
	ReadTimeout Duration `yaml:"read_timeout"`
}

// BroadcastConfig configures the push server.
type BroadcastConfig struct {
	// Port defaults to 9000.
	Port int `yaml:"port"`

	// Interval is the per-client push cadence. Defaults to 1s.
	Interval Duration `yaml:"interval"`

	// StaleAfter is the record age at which /api/health reports "stale".
	// Defaults to five intervals.
	StaleAfter Duration `yaml:"stale_after"`
}

// QueryConfig configures the pull server.
type QueryConfig struct {
	// Port defaults to 9001.
	Port int `yaml:"port"`

	// IdleTimeout closes connections that send nothing for this long.
	// Zero keeps idle connections open.
	IdleTimeout Duration `yaml:"idle_timeout"`
}

// MQTTConfig configures the optional MQTT mirror. The mirror is enabled
// when Broker is non-empty after environment expansion.
type MQTTConfig struct {
	Broker   string   `yaml:"broker"`
	ClientID string   `yaml:"client_id"`
	Topic    string   `yaml:"topic"`
	QoS      int      `yaml:"qos"`
	Interval Duration `yaml:"interval"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// LogConfig configures process logging.
type LogConfig struct {
	// Level is debug, info, warn or error. Defaults to info.
	Level string `yaml:"level"`

	// Format is json or text. Defaults to json.
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the serial device and the MQTT
// broker and credentials. Defaults are applied before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sentinel == "" {
		c.Sentinel = DefaultSentinel
	}
	if c.Pacing == 0 {
		c.Pacing = Duration(DefaultPacing)
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = DefaultBaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if c.Broadcast.Port == 0 {
		c.Broadcast.Port = DefaultBroadcastPort
	}
	if c.Broadcast.Interval == 0 {
		c.Broadcast.Interval = Duration(DefaultInterval)
	}
	if c.Query.Port == 0 {
		c.Query.Port = DefaultQueryPort
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	device, err := expandEnvVars(c.Serial.Device)
	if err != nil {
		return fmt.Errorf("serial.device: %w", err)
	}
	c.Serial.Device = device

	if c.Serial.BaudRate < 0 {
		return fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Serial.ReadTimeout.Duration() < 0 {
		return fmt.Errorf("serial.read_timeout cannot be negative, got %s", c.Serial.ReadTimeout.Duration())
	}

	if err := validatePort("broadcast.port", c.Broadcast.Port); err != nil {
		return err
	}
	if err := validatePort("query.port", c.Query.Port); err != nil {
		return err
	}
	if c.Broadcast.Port == c.Query.Port {
		return fmt.Errorf("broadcast.port and query.port must differ, both are %d", c.Query.Port)
	}

	if c.Broadcast.Interval.Duration() < minInterval {
		return fmt.Errorf("broadcast.interval must be at least %s, got %s", minInterval, c.Broadcast.Interval.Duration())
	}
	if c.Broadcast.StaleAfter.Duration() < 0 {
		return fmt.Errorf("broadcast.stale_after cannot be negative, got %s", c.Broadcast.StaleAfter.Duration())
	}
	if c.Query.IdleTimeout.Duration() < 0 {
		return fmt.Errorf("query.idle_timeout cannot be negative, got %s", c.Query.IdleTimeout.Duration())
	}

	if err := c.MQTT.expandAndValidate(); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	return nil
}

func (m *MQTTConfig) expandAndValidate() error {
	for _, f := range []struct {
		name string
		val  *string
	}{
		{"mqtt.broker", &m.Broker},
		{"mqtt.username", &m.Username},
		{"mqtt.password", &m.Password},
	} {
		expanded, err := expandEnvVars(*f.val)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.val = expanded
	}

	if !m.Enabled() {
		return nil
	}
	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", m.QoS)
	}
	if m.Interval != 0 && m.Interval.Duration() < minInterval {
		return fmt.Errorf("mqtt.interval must be at least %s, got %s", minInterval, m.Interval.Duration())
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", field, port)
	}
	return nil
}
