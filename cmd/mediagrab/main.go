package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/mediagrab/internal/cleanup"
	"github.com/italolelis/mediagrab/internal/config"
	"github.com/italolelis/mediagrab/internal/downloader"
	"github.com/italolelis/mediagrab/internal/extractor"
	"github.com/italolelis/mediagrab/internal/http/rest"
	"github.com/italolelis/mediagrab/internal/logctx"
	"github.com/italolelis/mediagrab/internal/notifier"
	"github.com/italolelis/mediagrab/internal/ratelimit"
	"github.com/italolelis/mediagrab/internal/registry"
	"github.com/italolelis/mediagrab/internal/telemetry"
	"github.com/spf13/afero"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(envFiles []string) error {
	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		slog.Error("config error", "err", err)

		return err
	}

	logger := logctx.NewLogger(os.Stdout, cfg.LogFormat, cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("mediagrab starting...", "version", version, "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		logger.Error("fatal error", "err", err)

		return err
	}

	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Registry
	fs := afero.NewOsFs()

	reg, err := registry.New(fs, cfg.DownloadDir, cfg.KeepDownloadedFor, registry.WithTelemetry(tel))
	if err != nil {
		return fmt.Errorf("failed to setup registry: %w", err)
	}

	// Nothing survives a restart, so every leftover staging dir is an orphan.
	if n, err := cleanup.DeleteOrphans(ctx, fs, reg.BaseDir(), nil, 0); err != nil {
		logger.Warn("failed to purge download dir", "dir", reg.BaseDir(), "err", err)
	} else if n > 0 {
		logger.Info("purged leftovers from previous run", "count", n)
	}

	// =========================================================================
	// Start Rate Limiter
	limiter, err := ratelimit.New(
		cfg.RateLimit.Requests,
		cfg.RateLimit.Window,
		cfg.RateLimit.MaxClients,
		ratelimit.WithGlobalLimit(cfg.RateLimit.GlobalRPS, cfg.RateLimit.GlobalBurst),
	)
	if err != nil {
		return fmt.Errorf("failed to setup rate limiter: %w", err)
	}

	// =========================================================================
	// Start Downloader
	ext := extractor.NewInstrumented(
		extractor.NewYtDLP(extractor.ExecRunner{Binary: cfg.Extractor.Binary}, extractor.Options{
			UserAgent:   cfg.Extractor.UserAgent,
			Referer:     cfg.Extractor.Referer,
			CookiesFile: cfg.Extractor.CookiesFile,
		}),
		tel,
	)

	svc := downloader.NewService(ext, reg, fs, downloader.Config{
		MaxParallel: cfg.MaxParallel,
		Timeout:     cfg.Extractor.Timeout,
		InfoTimeout: cfg.Extractor.InfoTimeout,
	})

	// =========================================================================
	// Start Notification
	setupNotification(ctx, svc, cfg, tel)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, cfg, svc, reg, limiter, tel)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	// =========================================================================
	// Start Cleanup
	// A staging dir without a record is only an orphan once no extraction
	// could still be writing to it.
	orphanAge := max(cfg.Extractor.Timeout, cfg.KeepDownloadedFor) + time.Minute

	g.Go(func() error {
		cleanup.Run(gctx, cfg.CleanupInterval, func(ctx context.Context) {
			sweep(ctx, tel, fs, reg, limiter, orphanAge)
		})

		return nil
	})

	logger.Info("waiting for downloads...",
		"download_dir", reg.BaseDir(),
		"retention", cfg.KeepDownloadedFor.String(),
		"cleanup_interval", cfg.CleanupInterval.String(),
		"max_parallel", cfg.MaxParallel,
	)

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	err = g.Wait()

	reg.Close(context.WithoutCancel(ctx))

	return err
}

func sweep(
	ctx context.Context,
	tel *telemetry.Telemetry,
	fs afero.Fs,
	reg *registry.Registry,
	limiter *ratelimit.Limiter,
	orphanAge time.Duration,
) {
	logger := logctx.LoggerFromContext(ctx)

	_ = tel.InstrumentOperation(ctx, "cleanup_pass", "cleanup", func(ctx context.Context) error {
		expired := reg.Sweep(ctx)

		orphans, err := cleanup.DeleteOrphans(ctx, fs, reg.BaseDir(), reg.Owns, orphanAge)
		if err != nil {
			logger.Error("failed to delete orphaned staging dirs", "err", err)
			tel.RecordSystemError(ctx, "cleanup", "orphan_scan")
		}

		clients := limiter.Prune()

		logger.Debug("cleanup pass finished",
			"expired", expired,
			"orphans", orphans,
			"idle_clients", clients,
			"artifacts", reg.Len(),
		)

		return err
	})
}

func setupNotification(ctx context.Context, svc *downloader.Service, cfg *config.Config, tel *telemetry.Telemetry) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-svc.OnChallenge:
				logger.Warn("platform is demanding bot verification", "platform", event.Platform, "message", event.Message)

				if notif == nil {
					continue
				}

				content := fmt.Sprintf("⚠️ %s is asking for bot verification on %s: %s",
					event.Platform, telemetry.InstanceID(), event.Message)

				status := "success"
				if err := notif.Notify(ctx, content); err != nil {
					status = "error"

					logger.Error("failed to send notification", "err", err)
				}

				tel.RecordNotification(ctx, "challenge", status)
			}
		}
	}()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	cfg *config.Config,
	svc *downloader.Service,
	reg *registry.Registry,
	limiter *ratelimit.Limiter,
	tel *telemetry.Telemetry,
) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", rest.NewMediaHandler(svc, reg, limiter, tel).Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "http_request"),
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}
}
