// Package handler composes the HTTP handler groups served by the relay.
package handler

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/mandalnilabja/chatrelay/internal/storage"
	"github.com/mandalnilabja/chatrelay/internal/tokenizer"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/admin"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/infra"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/relay"
	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// Repo composes all domain-specific handlers.
type Repo struct {
	Admin *admin.Handlers
	Relay *relay.Handlers
	Infra *infra.Handlers
}

// NewRepo creates a new instance of the composed handler repository.
// store may be nil, in which case nothing is logged and Admin is nil.
func NewRepo(router *upstream.Router, store storage.Storage, tok tokenizer.Tokenizer, cache *ristretto.Cache[string, any], cacheTTL time.Duration) *Repo {
	startTime := time.Now()

	repo := &Repo{
		Relay: relay.New(router, nil, tok, cache, cacheTTL),
		Infra: infra.New(cache, startTime),
	}
	if router != nil {
		repo.Infra.Upstreams = router
	}
	if store != nil {
		repo.Relay.Storage = store
		repo.Admin = admin.New(store, startTime)
	}
	return repo
}

// SetMetrics wires cache lookup counting into the relay handlers.
func (r *Repo) SetMetrics(m relay.CacheRecorder) {
	r.Relay.Metrics = m
}
