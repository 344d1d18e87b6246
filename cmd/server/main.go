package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fluxboard/internal/api"
	"fluxboard/internal/config"
	"fluxboard/internal/datafile"
	"fluxboard/internal/service"
	"fluxboard/web"
)

func main() {
	configPath := flag.String("config", "fluxboard.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}

	logger := newLogger(cfg.Logging)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("no config file found, using defaults", "path", *configPath)
		} else {
			logger.Error("failed to load config, using defaults", "path", *configPath, "error", err)
		}
	}

	// The worker writes the change file here; make sure the directory
	// exists before it starts.
	if dir := filepath.Dir(cfg.Data.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	logs := service.NewLogBuffer(1000)
	sup := service.NewSupervisor(cfg.Worker, logs, logger.With("module", "supervisor"))

	watcher := datafile.NewWatcher(cfg.Data.File, cfg.Debounce(), logger.With("module", "watcher"))
	if err := watcher.Start(); err != nil {
		logger.Warn("change file watcher unavailable, dashboard falls back to polling", "error", err)
	}

	router, err := api.NewRouter(cfg, sup, watcher, logger.With("module", "api"), web.TemplatesFS(), web.StaticFS())
	if err != nil {
		logger.Error("failed to create router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No write timeout: /api/changes/events holds the connection open.
	}

	// The worker is optional infrastructure: a failed spawn is surfaced
	// in the log and in /api/watch/status, but the HTTP surface still
	// comes up.
	if pid, err := sup.Start(); err != nil {
		logger.Error("failed to start watch worker, serving without it", "error", err)
	} else {
		logger.Info("watch worker started", "pid", pid)
	}

	go func() {
		logger.Info("starting server", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Stop the worker before exiting so it never outlives this process.
	if err := sup.Stop(cfg.GracePeriodDuration()); err != nil && !errors.Is(err, service.ErrWorkerNotRunning) {
		logger.Error("failed to stop watch worker", "error", err)
	}

	if err := watcher.Stop(); err != nil {
		logger.Warn("failed to stop change file watcher", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited gracefully")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
