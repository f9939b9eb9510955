package config

import (
	"testing"

	"github.com/jpalmerr/harcast"
)

func TestBuildOptions_SerialConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
title: Balloon 7
serial:
  device: /dev/ttyUSB0
broadcast:
  port: 8000
  stale_after: 3s
query:
  port: 8001
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	r, err := harcast.New(BuildOptions(cfg)...)
	if err != nil {
		t.Fatalf("harcast.New() error = %v", err)
	}
	if r.BroadcastPort() != 8000 || r.QueryPort() != 8001 {
		t.Errorf("ports = %d/%d, want 8000/8001", r.BroadcastPort(), r.QueryPort())
	}
}

func TestBuildOptions_NoDeviceNeedsSource(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if _, err := harcast.New(BuildOptions(cfg)...); err == nil {
		t.Error("harcast.New() without device should require a source")
	}
}

func TestBuildOptions_MQTT(t *testing.T) {
	cfg, err := Parse([]byte(`
serial:
  device: /dev/ttyUSB0
mqtt:
  broker: tcp://localhost:1883
  qos: 2
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts := BuildOptions(cfg)
	withoutMQTT, err := Parse([]byte("serial:\n  device: /dev/ttyUSB0\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(opts) != len(BuildOptions(withoutMQTT))+1 {
		t.Errorf("BuildOptions() = %d options, want one more than without mqtt", len(opts))
	}
	if _, err := harcast.New(opts...); err != nil {
		t.Errorf("harcast.New() error = %v", err)
	}
}
