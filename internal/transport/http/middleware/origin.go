package middleware

import (
	"net/http"

	"github.com/mandalnilabja/chatrelay/internal/origin"
	"github.com/mandalnilabja/chatrelay/internal/types"
)

// CORS values returned to an accepted cross-origin caller.
const (
	corsAllowMethods = "GET,POST,OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, Accept"
	corsMaxAge       = "86400"
)

// RejectionRecorder counts requests refused by OriginGuard.
type RejectionRecorder interface {
	RecordOriginRejection()
}

// OriginGuard refuses requests whose Origin header names a different host
// than the one the relay was reached under. Refusal happens before the
// wrapped handler runs, so no upstream is contacted.
//
// Preflight requests are answered here: 204 with CORS headers when the
// origin is acceptable, 403 with an empty body otherwise.
func OriginGuard(recorder RejectionRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestOrigin := r.Header.Get("Origin")

			if !origin.Allow(requestOrigin, r.Host) {
				if recorder != nil {
					recorder.RecordOriginRejection()
				}
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				types.WriteError(w, http.StatusForbidden, types.NewRelayError(types.ErrMsgForbiddenOrigin))
				return
			}

			if requestOrigin != "" {
				setCORSHeaders(w.Header(), requestOrigin)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setCORSHeaders(h http.Header, requestOrigin string) {
	h.Set("Access-Control-Allow-Origin", requestOrigin)
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Max-Age", corsMaxAge)
	h.Add("Vary", "Origin")
}

// NoStore marks every response as uncacheable.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
