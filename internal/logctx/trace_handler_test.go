package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	return trace.ContextWithSpanContext(context.Background(), sc)
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "output: %s", buf.String())

	return entry
}

// TestTraceHandler_NoSpanContext verifies that logs without span context
// do NOT include trace_id or span_id fields.
func TestTraceHandler_NoSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "artifact registered", "handle", "abc")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.Equal(t, "artifact registered", entry["msg"])
	assert.Equal(t, "abc", entry["handle"])
}

// TestTraceHandler_WithSpanContext verifies that valid span contexts are injected.
func TestTraceHandler_WithSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(spanContext(t), "download finished")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewTraceHandler(slog.NewJSONHandler(&buf, nil))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "registry")})
	require.IsType(t, &TraceHandler{}, withAttrs)

	withGroup := withAttrs.WithGroup("sweep")
	require.IsType(t, &TraceHandler{}, withGroup)

	slog.New(withGroup).InfoContext(spanContext(t), "reclaimed", "count", 2)

	out := buf.String()
	assert.Contains(t, out, `"component":"registry"`)
	assert.Contains(t, out, `"sweep":{`)
	assert.True(t, strings.Contains(out, "trace_id"))
}

func TestTraceHandler_InjectsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithRequestID(context.Background(), "req-42")
	logger.InfoContext(ctx, "artifact served")

	entry := decode(t, &buf)
	assert.Equal(t, "req-42", entry["request_id"])
}

func TestTraceHandler_DoesNotDuplicateBoundRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil))).With("request_id", "req-42")

	ctx := WithRequestID(context.Background(), "req-42")
	logger.WithGroup("download").InfoContext(ctx, "download finished", "handle", "h1")

	assert.Equal(t, 1, strings.Count(buf.String(), `"request_id"`), "output: %s", buf.String())
}

func TestTraceHandler_NoRequestIDOutsideRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "cleanup pass finished")

	assert.NotContains(t, decode(t, &buf), "request_id")
}

func TestTraceHandler_NilHandler(t *testing.T) {
	assert.Panics(t, func() { NewTraceHandler(nil) })
}
