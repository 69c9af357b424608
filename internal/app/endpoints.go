package app

import (
	"time"

	"github.com/mandalnilabja/chatrelay/internal/config"
	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// Per-attempt deadlines of the search relays.
const (
	searxAttemptTimeout = 12 * time.Second
	nvdAttemptTimeout   = 14 * time.Second
)

// Endpoints maps every relay operation to its upstream path and candidates.
// Chat and model listing fail over only when a host does not implement the
// endpoint; searx instances are interchangeable, so any failure, an
// unreadable or non-JSON body included, moves on.
func Endpoints(u config.Upstreams) map[upstream.Operation]upstream.Endpoint {
	return map[upstream.Operation]upstream.Endpoint{
		upstream.OpChat: {
			Path:       "/chat/completions",
			Candidates: u.Chat,
			TryNext:    upstream.TryNextUnimplemented,
		},
		upstream.OpModels: {
			Path:       "/models",
			Candidates: u.Models,
			TryNext:    upstream.TryNextUnimplemented,
		},
		upstream.OpSearx: {
			Path:       "/search",
			Candidates: u.Searx,
			TryNext:    upstream.TryNextOnError,
			Timeout:    searxAttemptTimeout,
			Verify:     upstream.RequireJSON,
		},
		upstream.OpNVD: {
			Path:       "/rest/json/cves/2.0",
			Candidates: u.NVD,
			TryNext:    upstream.TryNextUnimplemented,
			Timeout:    nvdAttemptTimeout,
		},
	}
}
