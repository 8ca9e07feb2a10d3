package telemetry

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mediagrab/internal/logctx"
)

// HTTPLogging logs one line per request: 5xx at ERROR, 4xx at WARN, anything
// else at INFO. The request id comes from the context logger set by RequestID.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logctx.LoggerFromContext(ctx)
		start := time.Now()

		wrapped := newStatusRecorder(w)

		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"size", humanize.Bytes(uint64(wrapped.bytesWritten)),
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case wrapped.status >= http.StatusInternalServerError:
			logger.ErrorContext(ctx, "http request completed", attrs...)
		case wrapped.status >= http.StatusBadRequest:
			logger.WarnContext(ctx, "http request completed", attrs...)
		default:
			logger.InfoContext(ctx, "http request completed", attrs...)
		}
	})
}
