package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RecordHTTPRequest records HTTP request metrics. route must be the matched
// route pattern, never the raw path.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, route, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(ctx, 1, attrs)
	t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight(ctx context.Context) {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight(ctx context.Context) {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, -1)
	}
}

// RecordExtraction records one extractor run. operation is "download" or
// "info", platform is the matched domain and status the failure kind or "success".
func (t *Telemetry) RecordExtraction(ctx context.Context, operation, platform, status string, duration time.Duration) {
	if t == nil || t.extractionsTotal == nil {
		return
	}

	t.extractionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("platform", platform),
		attribute.String("status", status),
	))
	t.extractionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func (t *Telemetry) IncrementActiveExtractions(ctx context.Context) {
	if t != nil && t.extractionsActive != nil {
		t.extractionsActive.Add(ctx, 1)
	}
}

func (t *Telemetry) DecrementActiveExtractions(ctx context.Context) {
	if t != nil && t.extractionsActive != nil {
		t.extractionsActive.Add(ctx, -1)
	}
}

// RecordArtifactRegistered counts a new retrievable artifact.
func (t *Telemetry) RecordArtifactRegistered(ctx context.Context) {
	if t == nil || t.artifactsTotal == nil {
		return
	}

	t.artifactsTotal.Add(ctx, 1)
	t.artifactsActive.Add(ctx, 1)
}

// RecordArtifactReclaimed counts artifacts leaving the registry. reason is one
// of "expired", "missing" or "shutdown".
func (t *Telemetry) RecordArtifactReclaimed(ctx context.Context, reason string, n int) {
	if t == nil || t.artifactsReclaimed == nil || n == 0 {
		return
	}

	t.artifactsReclaimed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
	t.artifactsActive.Add(ctx, -int64(n))
}

// RecordBytesServed records artifact bytes written to a client.
func (t *Telemetry) RecordBytesServed(ctx context.Context, n int64) {
	if t != nil && t.bytesServed != nil && n > 0 {
		t.bytesServed.Add(ctx, n)
	}
}

// RecordRateLimitDenial records a request rejected by the rate limiter.
func (t *Telemetry) RecordRateLimitDenial(ctx context.Context, route string) {
	if t != nil && t.rateLimitDenials != nil {
		t.rateLimitDenials.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
	}
}

// RecordNotification records an operator notification attempt.
func (t *Telemetry) RecordNotification(ctx context.Context, event, status string) {
	if t != nil && t.notificationsTotal != nil {
		t.notificationsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event", event),
			attribute.String("status", status),
		))
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(ctx context.Context, component, errorType string) {
	if t != nil && t.systemErrors != nil {
		t.systemErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("error_type", errorType),
		))
	}
}
