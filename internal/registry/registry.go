// Package registry keeps the short-lived mapping from opaque handles to staged
// artifacts on disk and reclaims them once their retention window has passed.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/italolelis/mediagrab/internal/logctx"
	"github.com/italolelis/mediagrab/internal/media"
	"github.com/italolelis/mediagrab/internal/telemetry"
	"github.com/spf13/afero"
)

const (
	stagePrefix    = "stage-"
	maxHandleTries = 5
	reasonExpired  = "expired"
	reasonMissing  = "missing"
	reasonShutdown = "shutdown"
	stageDirPerm   = 0o755
)

var errHandleExhausted = errors.New("could not allocate a unique handle")

// Artifact is a staged file that can be fetched by its handle until it expires.
type Artifact struct {
	Handle    string
	Path      string
	Dir       string
	Name      string
	Size      int64
	CreatedAt time.Time
}

// Registry owns the staging directories under one base directory.
type Registry struct {
	fs        afero.Fs
	baseDir   string
	retention time.Duration
	now       func() time.Time
	newHandle func() (string, error)
	telemetry *telemetry.Telemetry

	mu      sync.Mutex
	records map[string]*Artifact
}

type Option func(*Registry)

// WithClock overrides the time source used for creation and expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithHandleFunc overrides handle generation.
func WithHandleFunc(fn func() (string, error)) Option {
	return func(r *Registry) {
		r.newHandle = fn
	}
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Registry) {
		r.telemetry = t
	}
}

// New creates the base directory if needed and returns an empty registry.
func New(fs afero.Fs, baseDir string, retention time.Duration, opts ...Option) (*Registry, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}

	baseDir = filepath.Clean(baseDir)

	if err := fs.MkdirAll(baseDir, stageDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create download dir %s: %w", baseDir, err)
	}

	r := &Registry{
		fs:        fs,
		baseDir:   baseDir,
		retention: retention,
		now:       time.Now,
		newHandle: newV7Handle,
		records:   make(map[string]*Artifact),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func newV7Handle() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// IsStageDir reports whether path is named like a staging dir created by
// StageDir. Anything else under the base dir is not the registry's to touch.
func IsStageDir(path string) bool {
	name := filepath.Base(filepath.Clean(path))

	return strings.HasPrefix(name, stagePrefix) && len(name) > len(stagePrefix)
}

// BaseDir returns the directory all staging dirs live under.
func (r *Registry) BaseDir() string {
	return r.baseDir
}

// StageDir creates a fresh directory exclusively owned by one extraction.
func (r *Registry) StageDir() (string, error) {
	dir, err := afero.TempDir(r.fs, r.baseDir, stagePrefix)
	if err != nil {
		return "", fmt.Errorf("failed to create staging dir: %w", err)
	}

	return dir, nil
}

// Register publishes the file at path, which must live inside dir, under a
// new handle. The registry takes ownership of dir.
func (r *Registry) Register(ctx context.Context, dir, path, name string) (*Artifact, error) {
	logger := logctx.LoggerFromContext(ctx)

	if !r.within(dir) || !isInside(dir, path) {
		return nil, fmt.Errorf("artifact %s is outside the staging area", path)
	}

	info, err := r.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("artifact %s is not a regular file", path)
	}

	a := &Artifact{
		Path: path,
		Dir:  filepath.Clean(dir),
		Name: name,
		Size: info.Size(),
	}

	r.mu.Lock()

	for i := 0; i < maxHandleTries; i++ {
		handle, err := r.newHandle()
		if err != nil {
			r.mu.Unlock()

			return nil, fmt.Errorf("failed to generate handle: %w", err)
		}

		if _, taken := r.records[handle]; !taken {
			a.Handle = handle

			break
		}
	}

	if a.Handle == "" {
		r.mu.Unlock()

		return nil, errHandleExhausted
	}

	a.CreatedAt = r.now()
	r.records[a.Handle] = a
	r.mu.Unlock()

	r.telemetry.RecordArtifactRegistered(ctx)

	logger.InfoContext(ctx, "artifact registered",
		"handle", a.Handle,
		"name", a.Name,
		"size", humanize.Bytes(uint64(a.Size)),
		"expires_at", a.CreatedAt.Add(r.retention).Format(time.RFC3339),
	)

	out := *a

	return &out, nil
}

// Lookup resolves a handle. Unknown and expired handles, and handles whose
// file has vanished from disk, all yield media.ErrNotFound.
func (r *Registry) Lookup(ctx context.Context, handle string) (*Artifact, error) {
	r.mu.Lock()

	a, ok := r.records[handle]
	if !ok || r.expired(a) {
		r.mu.Unlock()

		return nil, media.ErrNotFound
	}

	out := *a
	r.mu.Unlock()

	if _, err := r.fs.Stat(out.Path); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "artifact file missing, unpublishing",
			"handle", handle, "err", err)

		r.unpublish(ctx, a, reasonMissing)

		return nil, media.ErrNotFound
	}

	return &out, nil
}

// Open resolves a handle and opens its file for reading. The returned file
// stays readable even if a sweep removes the artifact meanwhile.
func (r *Registry) Open(ctx context.Context, handle string) (afero.File, *Artifact, error) {
	a, err := r.Lookup(ctx, handle)
	if err != nil {
		return nil, nil, err
	}

	f, err := r.fs.Open(a.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, media.ErrNotFound
		}

		return nil, nil, fmt.Errorf("failed to open artifact: %w", err)
	}

	return f, a, nil
}

// Sweep unpublishes every artifact older than the retention window and then
// deletes their staging dirs. Deletion failures are logged and skipped.
func (r *Registry) Sweep(ctx context.Context) int {
	r.mu.Lock()

	var expired []*Artifact

	for handle, a := range r.records {
		if r.expired(a) {
			expired = append(expired, a)
			delete(r.records, handle)
		}
	}

	r.mu.Unlock()

	r.remove(ctx, expired)
	r.telemetry.RecordArtifactReclaimed(ctx, reasonExpired, len(expired))

	return len(expired)
}

// Discard removes a staging dir that never became an artifact.
func (r *Registry) Discard(ctx context.Context, dir string) {
	if dir == "" || !r.within(dir) || !IsStageDir(dir) || r.Owns(dir) {
		return
	}

	if err := r.fs.RemoveAll(dir); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to discard staging dir", "dir", dir, "err", err)
	}
}

// Owns reports whether dir belongs to a published artifact.
func (r *Registry) Owns(dir string) bool {
	dir = filepath.Clean(dir)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.records {
		if a.Dir == dir {
			return true
		}
	}

	return false
}

// Len returns the number of published artifacts, expired ones included until
// the next sweep.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.records)
}

// Close unpublishes and deletes every artifact.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()

	all := make([]*Artifact, 0, len(r.records))
	for _, a := range r.records {
		all = append(all, a)
	}

	r.records = make(map[string]*Artifact)
	r.mu.Unlock()

	r.remove(ctx, all)
	r.telemetry.RecordArtifactReclaimed(ctx, reasonShutdown, len(all))
}

func (r *Registry) expired(a *Artifact) bool {
	return r.now().Sub(a.CreatedAt) > r.retention
}

// unpublish drops a only if it is still the record under its handle.
func (r *Registry) unpublish(ctx context.Context, a *Artifact, reason string) {
	r.mu.Lock()

	current, ok := r.records[a.Handle]
	if !ok || current != a {
		r.mu.Unlock()

		return
	}

	delete(r.records, a.Handle)
	r.mu.Unlock()

	r.remove(ctx, []*Artifact{a})
	r.telemetry.RecordArtifactReclaimed(ctx, reason, 1)
}

func (r *Registry) remove(ctx context.Context, artifacts []*Artifact) {
	logger := logctx.LoggerFromContext(ctx)

	for _, a := range artifacts {
		if err := r.fs.RemoveAll(a.Dir); err != nil {
			logger.ErrorContext(ctx, "failed to delete artifact", "handle", a.Handle, "dir", a.Dir, "err", err)

			continue
		}

		logger.DebugContext(ctx, "artifact deleted", "handle", a.Handle, "age", r.now().Sub(a.CreatedAt).String())
	}
}

// within reports whether dir is a direct child of the base dir.
func (r *Registry) within(dir string) bool {
	return filepath.Dir(filepath.Clean(dir)) == r.baseDir
}

func isInside(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
