package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/harcast/config"
)

// validateCmd validates a config file without starting the relay.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a harcast configuration file without starting the relay.

This command parses the YAML, expands environment variables, and validates
all fields. It does not open the serial device or bind any port.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  harcast validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	device := cfg.Serial.Device
	if device == "" {
		device = "(none, use --stdin)"
	}
	mqtt := "disabled"
	if cfg.MQTT.Enabled() {
		mqtt = cfg.MQTT.Broker
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Serial device:  %s @ %d baud\n", device, cfg.Serial.BaudRate)
	fmt.Printf("  Broadcast port: %d (every %s)\n", cfg.Broadcast.Port, cfg.Broadcast.Interval.Duration())
	fmt.Printf("  Query port:     %d\n", cfg.Query.Port)
	fmt.Printf("  MQTT:           %s\n", mqtt)

	return nil
}
