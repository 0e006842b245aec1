package model

import (
	"log/slog"
	"strings"
)

// LogLevel is the verbosity of the relay's operational logging.
type LogLevel uint8

const (
	LogEmpty LogLevel = iota
	LogInfo
	LogWarning
	LogVerbose
)

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case LogEmpty:
		return "empty"
	case LogInfo:
		return "info"
	case LogWarning:
		return "warning"
	case LogVerbose:
		return "verbose"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses a level name, case-insensitively.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(s) {
	case "empty", "none", "off":
		return LogEmpty, true
	case "info":
		return LogInfo, true
	case "warning", "warn":
		return LogWarning, true
	case "verbose", "debug":
		return LogVerbose, true
	}
	return LogInfo, false
}

// slogSilent is above every level slog handlers emit.
const slogSilent = slog.LevelError + 64

// SlogLevel maps the level onto a slog level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogEmpty:
		return slogSilent
	case LogWarning:
		return slog.LevelWarn
	case LogVerbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Settings are runtime options a client may change.
type Settings struct {
	Logs LogLevel `cbor:"1,keyasint" yaml:"logs"`
}
