package logctx

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const requestIDAttr = "request_id"

// TraceHandler is an slog.Handler wrapper that correlates records with the
// work they belong to. It adds trace_id and span_id from the OpenTelemetry
// span in the record's context, and request_id from WithRequestID unless the
// logger already carries one.
type TraceHandler struct {
	inner slog.Handler

	// hasRequestID is set once request_id was bound through WithAttrs.
	hasRequestID bool
}

// NewTraceHandler wraps h. It panics if h is nil.
func NewTraceHandler(h slog.Handler) *TraceHandler {
	if h == nil {
		panic("logctx: NewTraceHandler called with nil handler")
	}

	return &TraceHandler{inner: h}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	if !h.hasRequestID {
		if id := RequestIDFromContext(ctx); id != "" {
			r.AddAttrs(slog.String(requestIDAttr, id))
		}
	}

	return h.inner.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	has := h.hasRequestID

	for _, a := range attrs {
		if a.Key == requestIDAttr {
			has = true

			break
		}
	}

	return &TraceHandler{inner: h.inner.WithAttrs(attrs), hasRequestID: has}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{inner: h.inner.WithGroup(name), hasRequestID: h.hasRequestID}
}
