package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/harcast"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the fake device writes frames into a pipe the relay reads from
	pr, pw := io.Pipe()
	go func() {
		RunFakeDevice(ctx, pw, 500*time.Millisecond)
		_ = pw.Close()
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	relay, err := harcast.New(
		harcast.WithReader(pr),
		harcast.WithBroadcastPort(9000),
		harcast.WithQueryPort(9001),
		harcast.WithBroadcastInterval(time.Second),
		harcast.WithTitle("Fake Balloon"),
		harcast.WithLogger(logger),
		harcast.WithRecordCallback(func(rec harcast.Record) {
			logger.Debug("frame accepted", "record_time", rec.Time, "alt", rec.Alt)
		}),
	)
	if err != nil {
		slog.Error("failed to create relay", "error", err)
		os.Exit(1)
	}

	fmt.Println("Dashboard:   http://localhost:9000")
	fmt.Println("WebSocket:   ws://localhost:9000/ws")
	fmt.Println("TCP query:   echo ? | nc localhost 9001")
	fmt.Println("Press Ctrl+C to stop")

	if err := relay.Start(ctx); err != nil {
		slog.Error("relay error", "error", err)
		os.Exit(1)
	}
}
