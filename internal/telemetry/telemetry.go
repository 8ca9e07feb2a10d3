package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	registry       *promclient.Registry
	startedAt      time.Time

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Business Metrics
	extractionsTotal   metric.Int64Counter
	extractionsActive  metric.Int64UpDownCounter
	extractionDuration metric.Float64Histogram
	artifactsTotal     metric.Int64Counter
	artifactsActive    metric.Int64UpDownCounter
	artifactsReclaimed metric.Int64Counter
	bytesServed        metric.Int64Counter
	rateLimitDenials   metric.Int64Counter
	notificationsTotal metric.Int64Counter

	// System health
	systemErrors metric.Int64Counter
	systemUptime metric.Float64ObservableGauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint, when set, additionally pushes metrics over OTLP/gRPC.
	OTLPEndpoint string
}

// New creates a new telemetry instance. A disabled configuration yields a
// Telemetry whose recording methods are no-ops.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName)}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("service.instance.id", InstanceID()),
	)

	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		registry:       registry,
		startedAt:      time.Now(),
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime metrics: %w", err)
	}

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}

	return t.tracer
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.registry == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}

	return errors.Join(
		t.meterProvider.Shutdown(ctx),
		t.tracerProvider.Shutdown(ctx),
	)
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeBusinessMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeBusinessMetrics() error {
	var err error

	t.extractionsTotal, err = t.meter.Int64Counter(
		"extractions_total",
		metric.WithDescription("Total number of extractor runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create extractions_total counter: %w", err)
	}

	t.extractionsActive, err = t.meter.Int64UpDownCounter(
		"extractions_active",
		metric.WithDescription("Number of extractor runs in progress"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create extractions_active counter: %w", err)
	}

	t.extractionDuration, err = t.meter.Float64Histogram(
		"extraction_duration_seconds",
		metric.WithDescription("Extractor run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return fmt.Errorf("failed to create extraction_duration histogram: %w", err)
	}

	t.artifactsTotal, err = t.meter.Int64Counter(
		"artifacts_registered_total",
		metric.WithDescription("Total number of artifacts registered"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create artifacts_registered_total counter: %w", err)
	}

	t.artifactsActive, err = t.meter.Int64UpDownCounter(
		"artifacts_active",
		metric.WithDescription("Number of artifacts currently retrievable"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create artifacts_active counter: %w", err)
	}

	t.artifactsReclaimed, err = t.meter.Int64Counter(
		"artifacts_reclaimed_total",
		metric.WithDescription("Total number of artifacts removed from the registry"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create artifacts_reclaimed_total counter: %w", err)
	}

	t.bytesServed, err = t.meter.Int64Counter(
		"artifact_bytes_served_total",
		metric.WithDescription("Total number of artifact bytes streamed to clients"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create artifact_bytes_served_total counter: %w", err)
	}

	t.rateLimitDenials, err = t.meter.Int64Counter(
		"rate_limit_denials_total",
		metric.WithDescription("Total number of requests denied by the rate limiter"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate_limit_denials_total counter: %w", err)
	}

	t.notificationsTotal, err = t.meter.Int64Counter(
		"notifications_total",
		metric.WithDescription("Total number of operator notifications sent"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create notifications_total counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	t.systemUptime, err = t.meter.Float64ObservableGauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(time.Since(t.startedAt).Seconds())

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}
