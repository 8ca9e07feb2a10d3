package downloader

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/italolelis/mediagrab/internal/media"
	"github.com/italolelis/mediagrab/internal/registry"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeExtractor struct {
	fs       afero.Fs
	files    map[string]string
	title    string
	err      error
	block    chan struct{}
	active   atomic.Int32
	peak     atomic.Int32
	ctxErr   error
	mu       sync.Mutex
	requests []media.DownloadRequest
}

func (f *fakeExtractor) Download(ctx context.Context, req media.DownloadRequest, dir string) (*media.Info, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)

	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	for name, content := range f.files {
		if err := afero.WriteFile(f.fs, filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return nil, err
		}
	}

	return &media.Info{Title: f.title}, nil
}

func (f *fakeExtractor) Info(_ context.Context, _ string) (*media.Info, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &media.Info{Title: f.title, Uploader: "someone"}, nil
}

func newService(t *testing.T, ext *fakeExtractor, cfg Config) (*Service, *registry.Registry, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	ext.fs = fs

	reg, err := registry.New(fs, "/data", time.Hour)
	require.NoError(t, err)

	return NewService(ext, reg, fs, cfg), reg, fs
}

func TestDownload_Validation(t *testing.T) {
	svc, _, _ := newService(t, &fakeExtractor{}, Config{MaxParallel: 1})

	_, err := svc.Download(context.Background(), media.DownloadRequest{URL: "   "})

	var vErr *media.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "url", vErr.Field)

	_, err = svc.Download(context.Background(), media.DownloadRequest{URL: "https://example.com/video.mp4"})
	require.ErrorIs(t, err, media.ErrUnsupportedPlatform)

	_, err = svc.Info(context.Background(), "ftp://youtube.com/watch")
	require.ErrorIs(t, err, media.ErrUnsupportedPlatform)
}

func TestDownload_RegistersLargestFinishedFile(t *testing.T) {
	ext := &fakeExtractor{
		title: "Never: Gonna/Give",
		files: map[string]string{
			"Never Gonna Give.mp4":      "the real thing",
			"Never Gonna Give.f137.mp4": "part",
			"Never Gonna Give.mp4.part": "a much longer partial download",
		},
	}
	svc, reg, _ := newService(t, ext, Config{MaxParallel: 1})
	ctx := context.Background()

	a, err := svc.Download(ctx, media.DownloadRequest{URL: "  " + videoURL + " "})
	require.NoError(t, err)

	assert.Equal(t, "Never_ Gonna_Give.mp4", a.Name)
	assert.Equal(t, int64(len("the real thing")), a.Size)
	assert.Equal(t, media.FormatVideo, ext.requests[0].Format)
	assert.Equal(t, videoURL, ext.requests[0].URL)

	f, _, err := reg.Open(ctx, a.Handle)
	require.NoError(t, err)

	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "the real thing", string(data))
}

func TestDownload_NoFileProduced(t *testing.T) {
	svc, reg, fs := newService(t, &fakeExtractor{title: "x"}, Config{MaxParallel: 1})

	_, err := svc.Download(context.Background(), media.DownloadRequest{URL: videoURL, Format: media.FormatAudio})
	require.ErrorIs(t, err, media.ErrNoFileProduced)
	assert.Equal(t, 0, reg.Len())

	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	assert.Empty(t, entries, "staging dir must be discarded")
}

func TestDownload_ExtractionErrorDiscardsStagingDir(t *testing.T) {
	ext := &fakeExtractor{err: &media.ExtractionError{Kind: media.KindNotFound, Message: "Video unavailable"}}
	svc, _, fs := newService(t, ext, Config{MaxParallel: 1})

	_, err := svc.Download(context.Background(), media.DownloadRequest{URL: videoURL})
	assert.Equal(t, media.KindNotFound, media.KindOf(err))

	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_ChallengeAlertIsThrottled(t *testing.T) {
	ext := &fakeExtractor{err: &media.ExtractionError{Kind: media.KindChallenge, Message: "Sign in to confirm you're not a bot"}}
	svc, _, _ := newService(t, ext, Config{MaxParallel: 1, AlertInterval: time.Hour})

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Download(context.Background(), media.DownloadRequest{URL: videoURL})
	require.Equal(t, media.KindChallenge, media.KindOf(err))

	select {
	case ev := <-svc.OnChallenge:
		assert.Equal(t, "youtube.com", ev.Platform)
		assert.Contains(t, ev.Message, "not a bot")
	default:
		t.Fatal("expected a challenge event")
	}

	_, err = svc.Info(context.Background(), videoURL)
	require.Error(t, err)

	select {
	case <-svc.OnChallenge:
		t.Fatal("second alert within the interval must be suppressed")
	default:
	}

	now = now.Add(2 * time.Hour)

	_, _ = svc.Info(context.Background(), videoURL)

	select {
	case <-svc.OnChallenge:
	default:
		t.Fatal("expected an alert after the interval elapsed")
	}
}

func TestDownload_ExtractionOutlivesCaller(t *testing.T) {
	ext := &fakeExtractor{title: "clip", files: map[string]string{"clip.mp4": "x"}, block: make(chan struct{})}
	svc, _, _ := newService(t, ext, Config{MaxParallel: 1, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		_, err := svc.Download(ctx, media.DownloadRequest{URL: videoURL})
		done <- err
	}()

	require.Eventually(t, func() bool { return ext.active.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	close(ext.block)

	require.NoError(t, <-done)

	ext.mu.Lock()
	defer ext.mu.Unlock()
	assert.NoError(t, ext.ctxErr)
}

func TestDownload_BoundsParallelExtractions(t *testing.T) {
	ext := &fakeExtractor{title: "clip", files: map[string]string{"clip.mp4": "x"}, block: make(chan struct{})}
	svc, reg, _ := newService(t, ext, Config{MaxParallel: 2})

	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := svc.Download(context.Background(), media.DownloadRequest{URL: videoURL})
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return ext.active.Load() == 2 }, time.Second, time.Millisecond)
	close(ext.block)
	wg.Wait()

	assert.LessOrEqual(t, ext.peak.Load(), int32(2))
	assert.Equal(t, 5, reg.Len())
}
