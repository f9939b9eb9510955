package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/harcast"
	"github.com/jpalmerr/harcast/config"
	"github.com/jpalmerr/harcast/internal/logging"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the relay.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the telemetry relay",
	Long: `Start the harcast telemetry relay.

The relay will:
  - Load configuration from the specified YAML file
  - Open the serial device (or read frames from stdin with --stdin)
  - Serve WebSocket push clients and the dashboard on broadcast.port
  - Serve TCP pull clients on query.port
  - Mirror records to MQTT when mqtt.broker is set

Failing to open the serial device or bind either port is fatal.
The relay runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  harcast serve -c config.yaml
  fakedevice | harcast serve -c config.yaml --stdin`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().Bool("stdin", false, "read frames from stdin instead of the serial device")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	useStdin, _ := cmd.Flags().GetBool("stdin")
	if useStdin {
		cfg.Serial.Device = ""
	} else if cfg.Serial.Device == "" {
		return errors.New("serial.device is required unless --stdin is set")
	}

	logger.Info("config loaded",
		"serial_device", cfg.Serial.Device,
		"stdin", useStdin,
		"mqtt", cfg.MQTT.Enabled(),
	)

	opts := config.BuildOptions(cfg)
	opts = append(opts, harcast.WithLogger(logger))
	if useStdin {
		opts = append(opts, harcast.WithReader(os.Stdin))
	}

	relay, err := harcast.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- relay.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("relay error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("relay error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
