// Package relay serves the origin-gated proxy routes: chat completions,
// model listing and the search lookups.
package relay

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/mandalnilabja/chatrelay/internal/storage"
	"github.com/mandalnilabja/chatrelay/internal/tokenizer"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/middleware"
	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// Route names used in request logs and metrics.
const (
	RouteChat   = "chat"
	RouteModels = "models"
	RouteSearx  = "searx"
	RouteNVD    = "nvd"
)

// RequestLogWriter persists relay request logs.
type RequestLogWriter interface {
	LogRequest(log *storage.RequestLog) error
}

// CacheRecorder counts model listing cache lookups.
type CacheRecorder interface {
	RecordCacheLookup(hit bool)
}

// Handlers holds the dependencies for relay HTTP handlers.
type Handlers struct {
	Router    *upstream.Router
	Storage   RequestLogWriter
	Tokenizer tokenizer.Tokenizer
	Cache     *ristretto.Cache[string, any]
	CacheTTL  time.Duration
	Metrics   CacheRecorder
	Logger    *slog.Logger

	pending sync.WaitGroup
}

// New creates a new instance of relay handlers. Storage, Tokenizer and Cache
// may be nil.
func New(router *upstream.Router, store RequestLogWriter, tok tokenizer.Tokenizer, cache *ristretto.Cache[string, any], cacheTTL time.Duration) *Handlers {
	return &Handlers{
		Router:    router,
		Storage:   store,
		Tokenizer: tok,
		Cache:     cache,
		CacheTTL:  cacheTTL,
		Logger:    slog.Default(),
	}
}

// Wait blocks until every background request log write has finished.
func (h *Handlers) Wait() {
	h.pending.Wait()
}

// Fingerprint derives a stable, non-reversible identifier for a credential.
// The empty credential has an empty fingerprint.
func Fingerprint(authorization string) string {
	authorization = upstream.NormalizeBearer(authorization)
	if authorization == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(authorization))
	return hex.EncodeToString(sum[:8])
}

// requestID returns the ID assigned by the RequestID middleware.
func requestID(r *http.Request) string {
	if id := middleware.RequestIDFrom(r.Context()); id != "" {
		return id
	}
	return uuid.New().String()
}

// logRequest stores the log entry in the background.
func (h *Handlers) logRequest(entry *storage.RequestLog) {
	if h.Storage == nil {
		return
	}

	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now()

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		if err := h.Storage.LogRequest(entry); err != nil {
			h.Logger.Warn("failed to store request log", "route", entry.Route, "request_id", entry.RequestID, "error", err)
		}
	}()
}

// newLogEntry fills the fields shared by every route.
func newLogEntry(r *http.Request, route string, start time.Time) *storage.RequestLog {
	return &storage.RequestLog{
		RequestID:             requestID(r),
		Route:                 route,
		CredentialFingerprint: Fingerprint(r.Header.Get("Authorization")),
		DurationMs:            time.Since(start).Milliseconds(),
	}
}

// applyResult copies routing details into the log entry.
func applyResult(entry *storage.RequestLog, res *upstream.Result, err error) {
	if res != nil {
		entry.Candidate = res.Candidate
		entry.Attempts = res.Attempts
		entry.StatusCode = res.Response.StatusCode
	}
	if err != nil {
		entry.StatusCode = http.StatusBadGateway
		entry.ErrorMessage = err.Error()
	}
}
