// Package harcast relays telemetry from a serial-attached device to many
// network subscribers.
//
// The device emits comma-separated text frames that start with a
// sentinel ("$$HAR" by default):
//
//	$$HAR,<time>,<lat>,<lon>,<alt>,<vx>,<vy>,<vz>,<temperature>,<pressure>,<humidity>[,<other>]
//
// One ingest loop parses frames and keeps only the most recent valid
// record. That record is then served three ways:
//
//   - push: WebSocket (and Server-Sent Events) clients receive it as JSON
//     once per broadcast interval
//   - pull: TCP clients send any bytes and get the JSON record back,
//     terminated by a newline
//   - mirror: optionally republished to an MQTT topic as a retained message
//
// Before the first valid frame every field is reported as null.
//
// # Quick Start
//
//	relay, _ := harcast.New(
//	    harcast.WithSerialPort("/dev/ttyUSB0", 115200),
//	    harcast.WithBroadcastPort(9000),
//	    harcast.WithQueryPort(9001),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	relay.Start(ctx) // blocks until ctx is cancelled
//
// # Architecture
//
//   - internal/telemetry: frame parsing and the JSON wire message
//   - internal/transport: serial and io.Reader line sources
//   - internal/ingest: the read, parse, store loop
//   - internal/store: the single-slot latest-value store
//   - internal/broadcast: WebSocket, SSE and HTTP push server
//   - internal/query: TCP request/response server
//   - internal/mirror: MQTT republisher
//   - dashboard: embedded web UI
package harcast
