package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/promptopt/api"
	"github.com/use-agent/promptopt/api/handler"
	"github.com/use-agent/promptopt/cache"
	"github.com/use-agent/promptopt/config"
	"github.com/use-agent/promptopt/metrics"
	"github.com/use-agent/promptopt/pipeline"
	"github.com/use-agent/promptopt/ratelimit"
	"github.com/use-agent/promptopt/store"
	"github.com/use-agent/promptopt/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.Load())
		},
	}
}

func serve(cfg *config.Config) error {
	// ── 1. Logging ──────────────────────────────────────────────────
	logCloser := initLogger(cfg.Log, os.Stdout)
	defer logCloser.Close()
	slog.Info("promptopt starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"target_language", cfg.Translation.TargetLanguage,
		"token_method", cfg.Tokens.Method,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	defer close(done)

	// ── 2. Metrics + pipeline ───────────────────────────────────────
	var (
		m    *metrics.Metrics
		opts []pipeline.Option
	)
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts = append(opts, pipeline.WithObserver(m))
	}
	p, _ := buildPipeline(cfg, opts...)
	if h := p.Health(); h.Status != "healthy" {
		slog.Warn("pipeline degraded", "distillers", h.Distillers, "translators", h.Translators)
	}

	// ── 3. Persistence ──────────────────────────────────────────────
	var st store.Store
	if cfg.Store.DSN != "" {
		s, err := store.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer s.Close()
		st = s
	} else if cfg.Usage.MonthlyLimit > 0 {
		slog.Warn("persistence disabled: enterprise route will refuse requests while a monthly limit is set",
			"monthly_limit", cfg.Usage.MonthlyLimit)
	}

	// ── 4. Cache, limiters, webhooks ────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	go cc.Run(5*time.Minute, done)

	single := ratelimit.New(ratelimit.Config{PerMinute: cfg.RateLimit.PerMinute})
	batch := ratelimit.New(ratelimit.Config{PerMinute: cfg.RateLimit.BatchPerMinute})
	go single.Run(5*time.Minute, done)
	go batch.Run(5*time.Minute, done)

	notifier := webhook.NewNotifier(cfg.Webhook.Secret)
	if cfg.Webhook.Attempts > 0 {
		notifier.Attempts = uint(cfg.Webhook.Attempts)
	}
	notifier.Delay = cfg.Webhook.Delay

	// ── 5. Router ───────────────────────────────────────────────────
	deps := &handler.Deps{
		Pipeline:     p,
		Cache:        cc,
		Store:        st,
		Notifier:     notifier,
		Metrics:      m,
		MonthlyLimit: cfg.Usage.MonthlyLimit,
		StartTime:    time.Now(),
	}
	router := api.NewRouter(deps, cfg, api.Limiters{Single: single, Batch: batch})

	// ── 6. Serve ────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	notifier.Wait()
	slog.Info("promptopt stopped")
	return nil
}
