// Package main is the entry point for the harcast CLI.
//
// harcast can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	harcast serve -c config.yaml          # Relay from the configured serial device
//	harcast serve -c config.yaml --stdin  # Relay frames piped on stdin
//	harcast validate -c config.yaml       # Validate configuration
//	harcast version                       # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "harcast",
	Short: "Relay serial telemetry to WebSocket and TCP clients",
	Long: `harcast reads telemetry frames from a serial-attached device and
republishes the most recent record to many network clients.

Push clients connect over WebSocket and receive the record as JSON once
per interval. Pull clients connect over TCP, send any bytes and receive
the record back. Until the first valid frame arrives every field is null.

Quick start:
  1. Create a config file (harcast.yaml)
  2. Run: harcast serve -c harcast.yaml
  3. Open http://localhost:9000 in your browser

Example config:
  serial:
    device: /dev/ttyUSB0
    baud_rate: 115200
  broadcast:
    port: 9000
    interval: 1s
  query:
    port: 9001`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this harcast binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("harcast %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
