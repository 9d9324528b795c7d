package logger

import (
	"context"
	"log/slog"
)

// loggerCtxKey is an unexported type for the context key to avoid collisions
// with keys defined in other packages.
type loggerCtxKey struct{}

// WithLogger returns a new context with the given logger attached.
// Handlers and services further down the call chain can retrieve it with
// FromContext to keep request-scoped fields (like correlation IDs) on every
// log line.
//
// Panics if logger is nil: a nil logger in the context is always a
// programming error and would otherwise surface far from its cause.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		panic("logger.WithLogger called with nil logger")
	}
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger stored in the context, falling back to
// slog.Default() when the context carries none.
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOrDefault(ctx, slog.Default())
}

// FromContextOrDefault retrieves the logger stored in the context, falling
// back to the provided default. A nil context or a nil default are both
// tolerated; the final fallback is slog.Default().
func FromContextOrDefault(ctx context.Context, defaultLogger *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerCtxKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	if defaultLogger != nil {
		return defaultLogger
	}
	return slog.Default()
}
