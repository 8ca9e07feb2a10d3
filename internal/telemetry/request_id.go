package telemetry

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/italolelis/mediagrab/internal/logctx"
)

const (
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLen = 128
)

// RequestID middleware generates a unique request_id for each request.
// A well-formed upstream X-Request-ID is reused. The id is stored in the
// context, attached to the context logger and echoed as a response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := logctx.WithRequestID(r.Context(), requestID)
		ctx = logctx.With(ctx, "request_id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request_id from context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	return logctx.RequestIDFromContext(ctx)
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}

	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}

	return true
}
