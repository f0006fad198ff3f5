// Package log provides a structured logging interface for genotrain.
//
// The interface is slog-compatible so that any slog.Handler can back it, and a
// zerolog backend is provided for deployments that already standardise on zerolog.
// Checkpoint and evaluation components accept a Logger through their options and
// fall back to GetLogger() otherwise.
//
// Example usage:
//
//	logger := log.GetLogger().With(
//	    log.ComponentKey, "checkpoint",
//	    log.CheckpointDirKey, "/runs/hyena/ckpt",
//	)
//	logger.Info("Saved checkpoint",
//	    log.CheckpointPathKey, path,
//	    log.StepKey, 1200,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Routine lifecycle events are logged at Info, recovered anomalies at Warn.
type Logger interface {
	// Debug logs a debug-level message with optional key-value fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional key-value fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional key-value fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. If the first field is an error value it
	// is attached under ErrAttrKey together with its stack trace.
	//
	//	logger.Error("Scripted export failed", err, log.CheckpointPathKey, target)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
