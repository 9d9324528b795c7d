// Package logger provides structured logging for the application using
// Go's standard library log/slog package. It configures a JSON handler,
// supports propagating request-scoped loggers through context.Context,
// and includes helpers for capturing and asserting on log output in tests.
package logger
