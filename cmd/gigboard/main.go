package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gigboard/internal/bot"
	"gigboard/internal/config"
	"gigboard/internal/gateway"
	"gigboard/internal/scheduler"
	"gigboard/internal/snapshot"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.SnapshotBackend == "sqlite" {
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				log.Error("create data directory", "path", dir, "error", err)
				os.Exit(1)
			}
		}
	}

	snap, err := snapshot.Open(ctx, cfg.SnapshotBackend, cfg.DatabasePath, cfg.RedisURL)
	if err != nil {
		log.Error("open snapshot store", "backend", cfg.SnapshotBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = snap.Close() }()

	gw := gateway.New(gateway.NewHTTPClient(cfg.RequestTimeout), gateway.Options{
		BaseURL:    cfg.APIBaseURL,
		Token:      cfg.APIToken,
		RateLimit:  cfg.RateLimit,
		Logger:     log.With("component", "gateway"),
		Categories: snap,
	})

	sched := scheduler.New(log.With("component", "scheduler"))
	sched.SetTickInterval(cfg.RefreshInterval)

	b, err := bot.New(cfg.TelegramBotToken, bot.Deps{
		Backend:   gw,
		Snapshots: snap,
		Scheduler: sched,
	}, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, log)
	}

	log.Info("starting bot", "api", cfg.APIBaseURL, "snapshots", cfg.SnapshotBackend)

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}

func serveMetrics(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
