package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mandalnilabja/chatrelay/internal/app"
	"github.com/mandalnilabja/chatrelay/internal/config"
)

// shutdownTimeout bounds how long in-flight streams may finish on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.EnsureConfigFile(); err != nil {
		slog.Warn("could not create default config file", "error", err)
	}

	cfg := config.Load()
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	deps, err := setup(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer deps.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go deps.pruneRequestLogs(ctx, cfg.LogRetention, logger)

	handler := app.NewRouter(deps.repo, &app.RouterOptions{
		Logger:     logger,
		Metrics:    deps.collector,
		AdminToken: cfg.AdminToken,
	})
	srv := app.NewServer(cfg, handler, logger)

	printStartupBanner(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown incomplete", "error", err)
		}
	}
	return 0
}
