package logctx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerFromContext_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), LoggerFromContext(context.Background()))
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx = With(ctx, "request_id", "r-1")
	LoggerFromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), `"request_id":"r-1"`)
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("visible", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"visible"`)
	assert.IsType(t, &TraceHandler{}, logger.Handler())
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", slog.LevelDebug)

	logger.Debug("sweeping", "expired", 3)

	out := buf.String()
	assert.Contains(t, out, "sweeping")
	assert.Contains(t, out, "expired=3")
	assert.NotContains(t, out, `"msg"`)
}
