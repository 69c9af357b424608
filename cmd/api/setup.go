package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/mandalnilabja/chatrelay/internal/app"
	"github.com/mandalnilabja/chatrelay/internal/config"
	"github.com/mandalnilabja/chatrelay/internal/metrics"
	"github.com/mandalnilabja/chatrelay/internal/storage"
	"github.com/mandalnilabja/chatrelay/internal/tokenizer"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler"
	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// logPruneInterval is how often expired request logs are removed.
const logPruneInterval = time.Hour

// relay bundles the long-lived dependencies of the server.
type relay struct {
	store     storage.Storage
	cache     *ristretto.Cache[string, any]
	collector *metrics.Collector
	repo      *handler.Repo
}

func setup(cfg *config.Config, logger *slog.Logger) (*relay, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath, cfg.MaxConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: 1e4,
		MaxCost:     32 << 20,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	collector := metrics.NewCollector(nil)

	router := upstream.NewRouter(app.Endpoints(cfg.Upstreams),
		upstream.WithClient(upstream.NewClient(cfg.ConnectTimeout, cfg.RequestTimeout)),
		upstream.WithLogger(logger),
		upstream.WithObserver(collector),
	)

	repo := handler.NewRepo(router, store, tokenizer.New(), cache, cfg.ModelsCacheTTL)
	repo.SetMetrics(collector)
	repo.Relay.Logger = logger

	return &relay{
		store:     store,
		cache:     cache,
		collector: collector,
		repo:      repo,
	}, nil
}

// pruneRequestLogs deletes request logs older than retention until ctx ends.
func (r *relay) pruneRequestLogs(ctx context.Context, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}

	prune := func() {
		deleted, err := r.store.DeleteRequestLogs(time.Now().Add(-retention))
		if err != nil {
			logger.Warn("failed to prune request logs", "error", err)
			return
		}
		if deleted > 0 {
			logger.Info("pruned request logs", "deleted", deleted)
		}
	}

	prune()
	ticker := time.NewTicker(logPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// close waits for pending request logs, then releases storage and cache.
func (r *relay) close() {
	r.repo.Relay.Wait()
	r.cache.Close()
	if err := r.store.Close(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}
}
