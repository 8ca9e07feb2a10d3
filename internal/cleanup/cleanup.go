// Package cleanup runs the periodic reclamation of staged downloads.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/italolelis/mediagrab/internal/logctx"
	"github.com/italolelis/mediagrab/internal/registry"
	"github.com/spf13/afero"
)

// Run calls fn every interval until ctx is done. A panicking fn is logged and
// the loop keeps going.
func Run(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-ticker.C:
			runOnce(ctx, fn)
		}
	}
}

func runOnce(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).ErrorContext(ctx, "cleanup pass panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	fn(ctx)
}

// DeleteOrphans removes staging dirs directly under dir that keep does not
// claim and whose modification time is older than olderThan. Regular files
// and directories not named like staging dirs are left alone, so dir may be
// shared with other data. An olderThan of zero removes every unclaimed
// staging dir. It returns how many dirs were removed.
func DeleteOrphans(ctx context.Context, fs afero.Fs, dir string, keep func(path string) bool, olderThan time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	removed := 0

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if !entry.IsDir() || !registry.IsStageDir(path) {
			continue
		}

		if keep != nil && keep(path) {
			continue
		}

		if olderThan > 0 && now.Sub(entry.ModTime()) < olderThan {
			continue
		}

		if err := fs.RemoveAll(path); err != nil {
			logger.Error("Failed to delete orphaned staging dir", "path", path, "err", err)

			continue
		}

		logger.Info("Deleted orphaned staging dir", "path", path)

		removed++
	}

	return removed, nil
}
