// Package infra serves the relay's own status endpoints.
package infra

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// CandidateLister reports the upstream base URLs of an operation.
type CandidateLister interface {
	Candidates(op upstream.Operation) []string
}

// Handlers holds the dependencies for infrastructure HTTP handlers.
type Handlers struct {
	Cache     *ristretto.Cache[string, any]
	StartTime time.Time

	// Upstreams, when set, lists the configured candidates in /health.
	Upstreams CandidateLister

	// now is replaced in tests.
	now func() time.Time
}

// New creates a new instance of infrastructure handlers.
func New(cache *ristretto.Cache[string, any], startTime time.Time) *Handlers {
	return &Handlers{
		Cache:     cache,
		StartTime: startTime,
		now:       time.Now,
	}
}
