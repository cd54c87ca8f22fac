// Package logging implements FleetLogger: a context-scoped logger every
// mission and the Commander pull from ctx rather than a package-level
// global, with a no-op fallback when none was installed.
package logging

import (
	"context"
	"log/slog"
)

// FleetLogger is the logging capability mission code and the Commander use.
type FleetLogger interface {
	Log(level, message string, fields map[string]interface{})
}

type contextKey int

const loggerKey contextKey = iota

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger FleetLogger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from ctx, or a no-op logger if none was
// attached.
func FromContext(ctx context.Context) FleetLogger {
	if logger, ok := ctx.Value(loggerKey).(FleetLogger); ok {
		return logger
	}
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(level, message string, fields map[string]interface{}) {}

// SlogLogger adapts a *slog.Logger to FleetLogger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger as a FleetLogger.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// Log implements FleetLogger, flattening fields into slog attributes.
func (s *SlogLogger) Log(level, message string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	switch level {
	case "debug":
		s.logger.Debug(message, args...)
	case "warn":
		s.logger.Warn(message, args...)
	case "error":
		s.logger.Error(message, args...)
	default:
		s.logger.Info(message, args...)
	}
}
