// Package dashboard provides the embedded web UI for harcast.
//
// The page connects to the push server's WebSocket endpoint and renders
// the latest telemetry record as it arrives. It is compiled into the
// binary so the relay ships as a single file.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
//	assets/
//	  index.html    - live telemetry view with inline CSS and JavaScript
//
// The title placeholder {{.Title}} is substituted by the broadcast server.
//
//go:embed assets/*
var Assets embed.FS
