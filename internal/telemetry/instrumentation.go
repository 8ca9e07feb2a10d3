package telemetry

import (
	"context"
	"time"

	"github.com/italolelis/mediagrab/internal/media"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span and metric attributes must stay bounded: operation names, platform
// domains, failure kinds. Media URLs, titles, handles and error messages go
// to logs or the span status, never to attributes.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation runs fn inside a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentExtraction wraps one extractor run with a span, the active gauge
// and the extraction counters.
func (t *Telemetry) InstrumentExtraction(ctx context.Context, operation, platform string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveExtractions(ctx)
	defer t.DecrementActiveExtractions(ctx)

	err := t.InstrumentOperation(ctx, "extract_"+operation, "extractor", func(ctx context.Context) error {
		return fn(ctx)
	})

	t.RecordExtraction(ctx, operation, platform, ExtractionStatus(err), time.Since(start))

	return err
}

// ExtractionStatus maps an extractor result to a bounded status label: success
// or the classified failure kind.
func ExtractionStatus(err error) string {
	if err == nil {
		return "success"
	}

	return media.KindOf(err).String()
}
