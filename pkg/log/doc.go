// Package log provides structured event capture for the beacon relay.
//
// This package defines the Logger interface and Event types for recording
// coordinator activity at multiple layers (transport, wire, coordinator,
// session, gate). It is separate from operational logging (slog): event
// capture provides a complete machine-readable trace for debugging why a
// scanning session started, stopped or never activated.
//
// # Basic Usage
//
// Components accept a Logger in their configuration:
//
//	// For development: log to console via slog
//	cfg.EventLog = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.EventLog, _ = log.NewFileLogger("/var/log/beaconrelay/relay.blog")
//
//	// Both: use MultiLogger
//	cfg.EventLog = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent), connection state, control messages
//   - Wire: Decoded method calls and stream events (MessageEvent)
//   - Coordinator: Subscription lifecycle (RequestEvent) and fan-out (DispatchEvent)
//   - Session: Scanner start/stop calls (SessionEvent)
//   - Gate: Permission prompts and resolutions (PermissionEvent)
//
// # File Format
//
// Log files use CBOR encoding with the .blog extension. The beacon-log CLI
// provides viewing, filtering and export.
package log
