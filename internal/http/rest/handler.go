package rest

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/italolelis/mediagrab/internal/downloader/progress"
	"github.com/italolelis/mediagrab/internal/logctx"
	"github.com/italolelis/mediagrab/internal/media"
	"github.com/italolelis/mediagrab/internal/ratelimit"
	"github.com/italolelis/mediagrab/internal/registry"
	"github.com/italolelis/mediagrab/internal/telemetry"
	"github.com/spf13/afero"
)

const (
	maxBodyBytes     = 64 << 10
	progressInterval = 50 << 20
)

//go:embed static
var staticFiles embed.FS

// Downloader is the work the handler delegates to.
type Downloader interface {
	Download(ctx context.Context, req media.DownloadRequest) (*registry.Artifact, error)
	Info(ctx context.Context, url string) (*media.Info, error)
}

// Files resolves handles to staged artifacts.
type Files interface {
	Open(ctx context.Context, handle string) (afero.File, *registry.Artifact, error)
	Len() int
}

type downloadRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality"`
}

type downloadResponse struct {
	Success  bool   `json:"success"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

type infoRequest struct {
	URL string `json:"url"`
}

type MediaHandler struct {
	downloader Downloader
	files      Files
	limiter    *ratelimit.Limiter
	telemetry  *telemetry.Telemetry
}

// NewMediaHandler creates the public HTTP handler. A nil limiter disables
// rate limiting.
func NewMediaHandler(d Downloader, files Files, limiter *ratelimit.Limiter, t *telemetry.Telemetry) *MediaHandler {
	return &MediaHandler{
		downloader: d,
		files:      files,
		limiter:    limiter,
		telemetry:  t,
	}
}

func (h *MediaHandler) Routes() http.Handler {
	r := chi.NewRouter()

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(fmt.Sprintf("embedded static dir: %v", err))
	}

	r.Get("/", h.HandleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Get("/healthz", h.HandleHealth)
	r.Get("/file/{file_id}", h.HandleFile)

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimitMiddleware)

		r.Post("/download", h.HandleDownload)
		r.Post("/info", h.HandleInfo)
	})

	return r
}

func (h *MediaHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		writeError(w, r, err)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (h *MediaHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "ok",
		"artifacts": h.files.Len(),
	})
}

// HandleDownload runs the extraction and answers with a handle to fetch the
// result from /file/{file_id}.
func (h *MediaHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body downloadRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, err)

		return
	}

	format, err := media.ParseFormat(body.Format)
	if err != nil {
		writeError(w, r, err)

		return
	}

	artifact, err := h.downloader.Download(ctx, media.DownloadRequest{
		URL:     body.URL,
		Format:  format,
		Quality: body.Quality,
	})
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, downloadResponse{
		Success:  true,
		FileID:   artifact.Handle,
		Filename: artifact.Name,
	})
}

func (h *MediaHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	var body infoRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, err)

		return
	}

	info, err := h.downloader.Info(r.Context(), body.URL)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, info)
}

// HandleFile streams a staged artifact as an attachment. Range requests are
// not supported.
func (h *MediaHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle := chi.URLParam(r, "file_id")
	logger := logctx.LoggerFromContext(ctx).With("handle", handle)

	f, artifact, err := h.files.Open(ctx, handle)
	if err != nil {
		writeError(w, r, err)

		return
	}
	defer f.Close()

	contentType := "application/octet-stream"

	mt, err := mimetype.DetectReader(f)
	if err == nil {
		contentType = mt.String()
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		writeError(w, r, fmt.Errorf("failed to rewind artifact: %w", err))

		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Name})
	if disposition == "" {
		disposition = "attachment"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")

	pr := progress.NewReader(f, artifact.Size, progressInterval, func(read, total int64) {
		logger.DebugContext(ctx, "streaming artifact",
			"sent", humanize.Bytes(uint64(read)),
			"total", humanize.Bytes(uint64(total)),
		)
	})

	n, err := io.Copy(w, pr)
	h.telemetry.RecordBytesServed(ctx, n)

	if err != nil {
		logger.WarnContext(ctx, "artifact stream interrupted", "sent", humanize.Bytes(uint64(n)), "err", err)

		return
	}

	logger.InfoContext(ctx, "artifact served", "name", artifact.Name, "size", humanize.Bytes(uint64(n)))
}

func (h *MediaHandler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)

			return
		}

		key := ratelimit.ClientKey(r)

		if !h.limiter.Admit(key) {
			h.telemetry.RecordRateLimitDenial(r.Context(), r.URL.Path)

			w.Header().Set("Retry-After", strconv.Itoa(int(h.limiter.Window().Seconds())))
			writeError(w, r, ratelimit.ErrLimitExceeded)

			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.limiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(h.limiter.Remaining(key)))

		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequestBody, err)
	}

	return nil
}
