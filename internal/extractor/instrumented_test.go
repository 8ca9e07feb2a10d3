package extractor

import (
	"context"
	"testing"

	"github.com/italolelis/mediagrab/internal/media"
	"github.com/italolelis/mediagrab/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumented_PassesThrough(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: false})
	require.NoError(t, err)

	runner := &fakeRunner{stdout: `{"title":"Clip"}`}
	ext := NewInstrumented(NewYtDLP(runner, Options{}), tel)

	info, err := ext.Info(context.Background(), "https://vimeo.com/1")
	require.NoError(t, err)
	assert.Equal(t, "Clip", info.Title)

	runner.err = &CommandError{ExitCode: 1, Stderr: "ERROR: Private video. Sign in if you've been granted access"}

	_, err = ext.Download(context.Background(), media.DownloadRequest{URL: "https://vimeo.com/1"}, t.TempDir())
	assert.Equal(t, media.KindForbidden, media.KindOf(err))
}

func TestPlatformLabel(t *testing.T) {
	assert.Equal(t, "youtube.com", platformLabel("https://m.youtube.com/watch?v=1"))
	assert.Equal(t, "other", platformLabel("https://example.com"))
}
