// Package downloader turns a download request into a registered artifact.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mediagrab/internal/extractor"
	"github.com/italolelis/mediagrab/internal/logctx"
	"github.com/italolelis/mediagrab/internal/media"
	"github.com/italolelis/mediagrab/internal/platform"
	"github.com/italolelis/mediagrab/internal/registry"
	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"
)

const defaultAlertInterval = 10 * time.Minute

// partialSuffixes mark files yt-dlp leaves behind while downloading or merging.
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// ChallengeEvent is emitted when the platform starts demanding bot verification.
type ChallengeEvent struct {
	Platform string
	Message  string
	At       time.Time
}

// Config tunes the Service.
type Config struct {
	MaxParallel   int
	Timeout       time.Duration
	InfoTimeout   time.Duration
	AlertInterval time.Duration
}

// Service orchestrates validation, bounded extraction and registration.
type Service struct {
	extractor extractor.Extractor
	registry  *registry.Registry
	fs        afero.Fs
	sem       *semaphore.Weighted
	cfg       Config
	now       func() time.Time

	alertMu   sync.Mutex
	lastAlert time.Time

	// OnChallenge receives at most one event per AlertInterval. Sends never
	// block and the channel is never closed.
	OnChallenge chan ChallengeEvent
}

func NewService(ext extractor.Extractor, reg *registry.Registry, fs afero.Fs, cfg Config) *Service {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}

	if cfg.AlertInterval <= 0 {
		cfg.AlertInterval = defaultAlertInterval
	}

	return &Service{
		extractor:   ext,
		registry:    reg,
		fs:          fs,
		sem:         semaphore.NewWeighted(int64(cfg.MaxParallel)),
		cfg:         cfg,
		now:         time.Now,
		OnChallenge: make(chan ChallengeEvent, 1),
	}
}

// Download validates req, runs the extractor in a fresh staging dir and
// registers the produced file. The extraction is not cancelled when the
// caller goes away; it is bounded by the configured timeout instead.
func (s *Service) Download(ctx context.Context, req media.DownloadRequest) (*registry.Artifact, error) {
	req.URL = strings.TrimSpace(req.URL)

	domain, err := validate(req.URL)
	if err != nil {
		return nil, err
	}

	if req.Format == "" {
		req.Format = media.FormatVideo
	}

	ctx = logctx.With(ctx, "platform", domain, "format", req.Format)
	logger := logctx.LoggerFromContext(ctx)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire extraction slot: %w", err)
	}
	defer s.sem.Release(1)

	dir, err := s.registry.StageDir()
	if err != nil {
		return nil, err
	}

	extCtx, cancel := s.detached(ctx, s.cfg.Timeout)
	defer cancel()

	start := s.now()

	info, err := s.extractor.Download(extCtx, req, dir)
	if err != nil {
		s.registry.Discard(ctx, dir)
		s.maybeAlert(domain, err)

		return nil, err
	}

	path, err := s.pickArtifact(dir)
	if err != nil {
		s.registry.Discard(ctx, dir)

		return nil, err
	}

	name := media.DisplayName(info.Title, path)

	artifact, err := s.registry.Register(ctx, dir, path, name)
	if err != nil {
		s.registry.Discard(ctx, dir)

		return nil, fmt.Errorf("failed to register artifact: %w", err)
	}

	logger.InfoContext(ctx, "download finished",
		"handle", artifact.Handle,
		"size", humanize.Bytes(uint64(artifact.Size)),
		"took", s.now().Sub(start).Round(time.Millisecond).String(),
	)

	return artifact, nil
}

// Info validates url and returns its metadata without downloading.
func (s *Service) Info(ctx context.Context, url string) (*media.Info, error) {
	url = strings.TrimSpace(url)

	domain, err := validate(url)
	if err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire extraction slot: %w", err)
	}
	defer s.sem.Release(1)

	extCtx, cancel := s.detached(ctx, s.cfg.InfoTimeout)
	defer cancel()

	info, err := s.extractor.Info(extCtx, url)
	if err != nil {
		s.maybeAlert(domain, err)

		return nil, err
	}

	return info, nil
}

func validate(url string) (string, error) {
	if url == "" {
		return "", &media.ValidationError{Field: "url", Reason: "is required"}
	}

	domain, ok := platform.Match(url)
	if !ok {
		return "", media.ErrUnsupportedPlatform
	}

	return domain, nil
}

// detached keeps ctx values (logger, trace) but not its cancellation.
func (s *Service) detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

// pickArtifact returns the largest finished regular file in dir.
func (s *Service) pickArtifact(dir string) (string, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return "", fmt.Errorf("failed to list staging dir: %w", err)
	}

	var (
		best string
		size int64 = -1
	)

	for _, e := range entries {
		if !e.Mode().IsRegular() || isPartial(e.Name()) {
			continue
		}

		if e.Size() > size {
			best, size = filepath.Join(dir, e.Name()), e.Size()
		}
	}

	if best == "" {
		return "", media.ErrNoFileProduced
	}

	return best, nil
}

func isPartial(name string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}

func (s *Service) maybeAlert(domain string, err error) {
	var extErr *media.ExtractionError
	if !errors.As(err, &extErr) || extErr.Kind != media.KindChallenge {
		return
	}

	now := s.now()

	s.alertMu.Lock()
	if !s.lastAlert.IsZero() && now.Sub(s.lastAlert) < s.cfg.AlertInterval {
		s.alertMu.Unlock()

		return
	}

	s.lastAlert = now
	s.alertMu.Unlock()

	select {
	case s.OnChallenge <- ChallengeEvent{Platform: domain, Message: extErr.Message, At: now}:
	default:
	}
}
