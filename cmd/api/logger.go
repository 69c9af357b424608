package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mandalnilabja/chatrelay/internal/config"
)

func setupLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

// parseLevel maps LOG_LEVEL to a slog level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printStartupBanner(cfg *config.Config) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintln(os.Stderr, "Chatrelay - origin-gated chat completion relay")
	fmt.Fprintln(os.Stderr, "════════════════════════════════════════════════")
	fmt.Fprintf(os.Stderr, "Chat:       http://localhost%s/api/chat/completions\n", cfg.ServerPort)
	fmt.Fprintf(os.Stderr, "Models:     http://localhost%s/api/models\n", cfg.ServerPort)
	fmt.Fprintf(os.Stderr, "Metrics:    http://localhost%s/metrics\n", cfg.ServerPort)
	if cfg.AdminToken != "" {
		fmt.Fprintf(os.Stderr, "Admin API:  http://localhost%s/admin/\n", cfg.ServerPort)
	}
	fmt.Fprintf(os.Stderr, "Upstreams:  %s\n", strings.Join(cfg.Upstreams.Chat, ", "))
	fmt.Fprintf(os.Stderr, "Data:       %s\n", cfg.DBPath)
	fmt.Fprintln(os.Stderr, "════════════════════════════════════════════════")
	fmt.Fprintf(os.Stderr, "\n")
}
