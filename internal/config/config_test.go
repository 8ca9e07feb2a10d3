package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.KeepDownloadedFor)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 10000, cfg.RateLimit.MaxClients)
	assert.Equal(t, "yt-dlp", cfg.Extractor.Binary)
	assert.Equal(t, 10*time.Minute, cfg.Extractor.Timeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Web.BindAddress)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "10")
	t.Setenv("RATE_LIMIT_GLOBAL_RPS", "2.5")
	t.Setenv("EXTRACTOR_COOKIES_FILE", "/run/secrets/cookies.txt")
	t.Setenv("TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("WEB_WRITE_TIMEOUT", "20m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.RateLimit.Requests)
	assert.InDelta(t, 2.5, cfg.RateLimit.GlobalRPS, 0.0001)
	assert.Equal(t, "/run/secrets/cookies.txt", cfg.Extractor.CookiesFile)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, 20*time.Minute, cfg.Web.WriteTimeout)
}

func TestLoadConfig_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mediagrab.env")
	require.NoError(t, os.WriteFile(file, []byte("MAX_PARALLEL=7\nLOG_FORMAT=text\n"), 0o600))

	t.Setenv("LOG_FORMAT", "json")
	t.Cleanup(func() { os.Unsetenv("MAX_PARALLEL") })

	cfg, err := LoadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxParallel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_MissingEnvFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.env"))
	require.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("MAX_PARALLEL", "0")
	t.Setenv("KEEP_DOWNLOADED_FOR", "-1m")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_PARALLEL")
	assert.Contains(t, err.Error(), "KEEP_DOWNLOADED_FOR")
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"loud":  slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, (&Config{LogLevel: in}).SlogLevel(), in)
	}
}
