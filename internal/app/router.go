// Package app wires handlers, middleware and the HTTP server together.
package app

import (
	"log/slog"
	"net/http"

	"github.com/mandalnilabja/chatrelay/internal/metrics"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/relay"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/middleware"
)

// relayPrefixes are the mount points of every relay route. Browser clients
// call the /api variants.
var relayPrefixes = []string{"", "/api"}

// RouterOptions configures the HTTP router behavior.
type RouterOptions struct {
	Logger  *slog.Logger
	Metrics *metrics.Collector

	// AdminToken enables the /admin routes when non-empty.
	AdminToken string
}

// NewRouter creates and configures the HTTP router with all application routes.
// Returns an http.Handler with middleware applied.
func NewRouter(repo *handler.Repo, opts *RouterOptions) http.Handler {
	if opts == nil {
		opts = &RouterOptions{}
	}
	mux := http.NewServeMux()

	var (
		requests   middleware.RequestRecorder
		rejections middleware.RejectionRecorder
	)
	if opts.Metrics != nil {
		requests = opts.Metrics
		rejections = opts.Metrics
	}

	// gated applies the per-route metrics and origin check of a relay route.
	gated := func(route string, h http.HandlerFunc) http.Handler {
		return middleware.Chain(h,
			middleware.Metrics(requests, route),
			middleware.OriginGuard(rejections),
		)
	}

	for _, p := range relayPrefixes {
		mux.Handle("POST "+p+"/chat/completions", gated(relay.RouteChat, repo.Relay.ChatCompletions))
		mux.Handle(p+"/chat/completions", gated(relay.RouteChat, shared.MethodNotAllowed))

		mux.Handle("GET "+p+"/models", gated(relay.RouteModels, repo.Relay.ListModels))
		mux.Handle(p+"/models", gated(relay.RouteModels, shared.MethodNotAllowed))

		mux.Handle("GET "+p+"/ping", gated("ping", repo.Infra.Ping))
		mux.Handle(p+"/ping", gated("ping", shared.MethodNotAllowed))

		mux.Handle("GET "+p+"/search/searx", gated(relay.RouteSearx, repo.Relay.Searx))
		mux.Handle(p+"/search/searx", gated(relay.RouteSearx, shared.MethodNotAllowed))

		mux.Handle("GET "+p+"/search/nvd", gated(relay.RouteNVD, repo.Relay.NVD))
		mux.Handle(p+"/search/nvd", gated(relay.RouteNVD, shared.MethodNotAllowed))
	}

	// Operator routes (not origin gated)
	mux.HandleFunc("GET /health", repo.Infra.HealthCheck)
	mux.HandleFunc("/health", shared.MethodNotAllowed)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
		mux.HandleFunc("/metrics", shared.MethodNotAllowed)
	}
	if opts.AdminToken != "" && repo.Admin != nil {
		registerAdminRoutes(mux, repo, opts.AdminToken)
	}

	// Root returns JSON status
	mux.HandleFunc("GET /{$}", repo.Infra.RootStatus)
	mux.HandleFunc("/{$}", shared.MethodNotAllowed)

	// Apply middleware chain (order: outer to inner)
	var h http.Handler = mux

	// Request logging (if logger provided)
	if opts.Logger != nil {
		h = middleware.RequestLogger(opts.Logger)(h)
	}

	// Request ID (always applied)
	h = middleware.RequestID(h)

	// Responses are never cacheable
	h = middleware.NoStore(h)

	return h
}

// registerAdminRoutes adds the request log and usage routes.
func registerAdminRoutes(mux *http.ServeMux, repo *handler.Repo, token string) {
	adminAuth := middleware.AdminAuth(token)

	// Helper to wrap handler with admin auth
	withAuth := func(h http.HandlerFunc) http.Handler {
		return adminAuth(h)
	}

	mux.Handle("GET /admin/usage", withAuth(repo.Admin.GetUsageStats))
	mux.Handle("GET /admin/usage/daily", withAuth(repo.Admin.GetDailyUsage))
	mux.Handle("GET /admin/logs", withAuth(repo.Admin.GetRequestLogs))
	mux.Handle("DELETE /admin/logs", withAuth(repo.Admin.DeleteRequestLogs))
	mux.Handle("GET /admin/info", withAuth(repo.Admin.AdminInfo))

	for _, path := range []string{"/admin/usage", "/admin/usage/daily", "/admin/logs", "/admin/info"} {
		mux.Handle(path, withAuth(shared.MethodNotAllowed))
	}
}
