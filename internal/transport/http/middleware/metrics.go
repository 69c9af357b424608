package middleware

import (
	"net/http"
	"time"
)

// RequestRecorder records one finished inbound request.
type RequestRecorder interface {
	RecordRequest(route string, status int, duration time.Duration)
}

// Metrics records status and latency of every request under route, a fixed
// label rather than the URL path.
func Metrics(recorder RequestRecorder, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)
			recorder.RecordRequest(route, wrapped.statusCode, time.Since(start))
		})
	}
}

// Chain applies middlewares so that the first one listed runs outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
