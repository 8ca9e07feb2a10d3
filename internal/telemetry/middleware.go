package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const unmatchedRoute = "unmatched"

// HTTPMiddleware provides HTTP telemetry middleware.
type HTTPMiddleware struct {
	telemetry *Telemetry
}

// NewHTTPMiddleware creates a new HTTP middleware for telemetry.
func NewHTTPMiddleware(telemetry *Telemetry) *HTTPMiddleware {
	return &HTTPMiddleware{
		telemetry: telemetry,
	}
}

// Middleware records RED metrics per chi route pattern and annotates the
// current span. Mount it with chi's Use so the route context is populated.
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.telemetry == nil {
			next.ServeHTTP(w, r)

			return
		}

		ctx := r.Context()
		start := time.Now()

		m.telemetry.IncrementHTTPInFlight(ctx)
		defer m.telemetry.DecrementHTTPInFlight(ctx)

		rw := newStatusRecorder(w)

		next.ServeHTTP(rw, r)

		route := routePattern(r)

		span := trace.SpanFromContext(ctx)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", rw.status),
			attribute.Int64("http.response_size", rw.bytesWritten),
		)

		if rw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(rw.status))
		}

		m.telemetry.RecordHTTPRequest(ctx, r.Method, route, statusClass(rw.status), time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}

	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}

	return unmatchedRoute
}
