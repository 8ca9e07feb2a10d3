package cleanup

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/italolelis/mediagrab/internal/registry"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteOrphans(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/srv/downloads"

	for _, name := range []string{"stage-owned", "stage-orphan", "stage-fresh"} {
		require.NoError(t, fs.MkdirAll(filepath.Join(dir, name), 0o755))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name, "clip.mp4"), []byte("x"), 0o644))
	}

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, fs.Chtimes(filepath.Join(dir, "stage-owned"), old, old))
	require.NoError(t, fs.Chtimes(filepath.Join(dir, "stage-orphan"), old, old))

	keep := func(path string) bool {
		return path == filepath.Join(dir, "stage-owned")
	}

	n, err := DeleteOrphans(context.Background(), fs, dir, keep, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for name, want := range map[string]bool{"stage-owned": true, "stage-orphan": false, "stage-fresh": true} {
		exists, err := afero.DirExists(fs, filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, want, exists, name)
	}
}

func TestDeleteOrphans_ZeroAgeOnlyPurgesStagingDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/srv/shared"

	reg, err := registry.New(fs, dir, time.Hour)
	require.NoError(t, err)

	stage, err := reg.StageDir()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(stage, "a.mp3"), []byte("a"), 0o644))

	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "notes.txt"), []byte("keep me"), 0o644))
	require.NoError(t, fs.MkdirAll(filepath.Join(dir, "photos"), 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "photos", "cat.jpg"), []byte("meow"), 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "stage-looking-file"), []byte("b"), 0o644))

	n, err := DeleteOrphans(context.Background(), fs, dir, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	exists, err := afero.DirExists(fs, stage)
	require.NoError(t, err)
	assert.False(t, exists, "orphaned staging dir should be removed")

	for _, path := range []string{"notes.txt", "photos/cat.jpg", "stage-looking-file"} {
		exists, err := afero.Exists(fs, filepath.Join(dir, path))
		require.NoError(t, err)
		assert.True(t, exists, path)
	}
}

func TestDeleteOrphans_MissingDir(t *testing.T) {
	n, err := DeleteOrphans(context.Background(), afero.NewMemMapFs(), "/nope", nil, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRun_RecoversFromPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32

	done := make(chan struct{})

	go func() {
		defer close(done)

		Run(ctx, 5*time.Millisecond, func(context.Context) {
			if calls.Add(1) == 1 {
				panic("boom")
			}
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
