// Package logctx carries the request-scoped slog.Logger through context.Context
// and builds the process logger.
package logctx

import (
	"context"
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
)

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// With returns a context whose logger carries the extra attributes.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, LoggerFromContext(ctx).With(args...))
}

// WithRequestID stores the id of the request being served in ctx. Records
// logged with that ctx carry it as request_id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}

	return ""
}

// NewLogger builds the process logger. format "text" selects a human-readable
// console handler, anything else produces JSON lines. Trace and span ids are
// added to every record emitted inside a span, the request id to every record
// emitted while serving a request.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	var h slog.Handler

	switch strings.ToLower(format) {
	case "text", "console":
		h = charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.Level(level),
		})
	default:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	return slog.New(NewTraceHandler(h))
}
