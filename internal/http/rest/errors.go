package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/italolelis/mediagrab/internal/logctx"
	"github.com/italolelis/mediagrab/internal/media"
	"github.com/italolelis/mediagrab/internal/ratelimit"
)

var errBadRequestBody = errors.New("invalid request body")

type errorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

// apiError maps err to the status code and body sent to the client. Internal
// details never leave the server; they are logged instead.
func apiError(err error) (int, errorResponse) {
	resp := errorResponse{Success: false}

	var (
		validationErr *media.ValidationError
		extractionErr *media.ExtractionError
	)

	switch {
	case errors.Is(err, errBadRequestBody):
		resp.Error = "Invalid request body"

		return http.StatusBadRequest, resp
	case errors.As(err, &validationErr):
		if validationErr.Field == "url" {
			resp.Error = "Please provide a valid URL"
		} else {
			resp.Error = "Invalid " + validationErr.Field + ": " + validationErr.Reason
		}

		return http.StatusBadRequest, resp
	case errors.Is(err, media.ErrUnsupportedPlatform):
		resp.Error = "URL not supported. Please use YouTube, TikTok, Instagram, Facebook, or other supported platforms."

		return http.StatusBadRequest, resp
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		resp.Error = "Rate limit exceeded. Please wait before making another request."

		return http.StatusTooManyRequests, resp
	case errors.Is(err, media.ErrNoFileProduced):
		resp.Error = "Download failed. No file was created."

		return http.StatusInternalServerError, resp
	case errors.Is(err, media.ErrNotFound):
		resp.Error = "File not found or expired"
		resp.Suggestion = "Start the download again to get a fresh link."

		return http.StatusNotFound, resp
	case errors.As(err, &extractionErr):
		return extractionStatus(extractionErr.Kind, resp)
	}

	resp.Error = "An unexpected error occurred"

	return http.StatusInternalServerError, resp
}

func extractionStatus(kind media.ErrorKind, resp errorResponse) (int, errorResponse) {
	switch kind {
	case media.KindChallenge:
		resp.Error = "The platform is asking for bot verification. Please try again later."
		resp.Suggestion = "Wait a few minutes before retrying, or try a different video."

		return http.StatusTooManyRequests, resp
	case media.KindForbidden:
		resp.Error = "This video is private or restricted to members."
		resp.Suggestion = "Only public videos can be downloaded."

		return http.StatusForbidden, resp
	case media.KindNotFound:
		resp.Error = "This video is unavailable or has been removed."
		resp.Suggestion = "Check that the link is correct and the video still exists."

		return http.StatusNotFound, resp
	case media.KindTimeout:
		resp.Error = "The download took too long and was stopped."
		resp.Suggestion = "Try a lower quality or a shorter video."

		return http.StatusGatewayTimeout, resp
	default:
		resp.Error = "Download failed. Please try again."

		return http.StatusInternalServerError, resp
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	status, resp := apiError(err)

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "status", status, "err", err)
	} else {
		logger.WarnContext(ctx, "request rejected", "status", status, "err", err)
	}

	writeJSON(w, r, status, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
