package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultEnvFile = ".env"

// Config struct for environment variables.
type Config struct {
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat         string        `envconfig:"LOG_FORMAT" default:"json"`
	DownloadDir       string        `envconfig:"DOWNLOAD_DIR" default:"/tmp/mediagrab"`
	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"1h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"30m"`
	MaxParallel       int           `envconfig:"MAX_PARALLEL" default:"4"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	RateLimit struct {
		Requests    int           `split_words:"true" default:"5"`
		Window      time.Duration `split_words:"true" default:"60s"`
		MaxClients  int           `split_words:"true" default:"10000"`
		GlobalRPS   float64       `envconfig:"GLOBAL_RPS" default:"0"`
		GlobalBurst int           `split_words:"true" default:"20"`
	} `split_words:"true"`

	Extractor struct {
		Binary      string        `split_words:"true" default:"yt-dlp"`
		Timeout     time.Duration `split_words:"true" default:"10m"`
		InfoTimeout time.Duration `split_words:"true" default:"1m"`
		UserAgent   string        `split_words:"true"`
		Referer     string        `split_words:"true"`
		CookiesFile string        `split_words:"true"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"mediagrab"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"15m"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig populates Config from the environment. Variables found in the
// given env files are applied first without overriding the real environment.
// With no files, a ".env" in the working directory is used when present.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", defaultEnvFile, err)
		}

		return nil
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("error loading env files: %w", err)
	}

	return nil
}

// Validate rejects values that would make the server misbehave at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.DownloadDir == "" {
		errs = append(errs, errors.New("DOWNLOAD_DIR must not be empty"))
	}

	if c.KeepDownloadedFor <= 0 {
		errs = append(errs, errors.New("KEEP_DOWNLOADED_FOR must be positive"))
	}

	if c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("CLEANUP_INTERVAL must be positive"))
	}

	if c.MaxParallel <= 0 {
		errs = append(errs, errors.New("MAX_PARALLEL must be positive"))
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}

	if c.RateLimit.GlobalRPS < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_GLOBAL_RPS must not be negative"))
	}

	return errors.Join(errs...)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
