package upstream

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// Header sets forwarded per operation. Anything not listed stays on the relay.
var (
	ChatHeaders   = []string{"Content-Type", "Accept", "Authorization"}
	ModelsHeaders = []string{"Accept", "Authorization"}
)

// RelayHeaders copies the named headers from in. Authorization values are
// normalized with NormalizeBearer.
func RelayHeaders(in http.Header, names ...string) http.Header {
	out := make(http.Header, len(names))
	for _, name := range names {
		v := in.Get(name)
		if v == "" {
			continue
		}
		if http.CanonicalHeaderKey(name) == "Authorization" {
			v = NormalizeBearer(v)
		}
		out.Set(name, v)
	}
	return out
}

// NormalizeBearer removes one duplicated "Bearer " scheme, as sent by clients
// that prepend the scheme to a token which already carries it.
func NormalizeBearer(v string) string {
	v = strings.TrimSpace(v)
	rest, ok := cutBearer(v)
	if !ok {
		return v
	}
	if _, dup := cutBearer(rest); dup {
		return rest
	}
	return v
}

func cutBearer(v string) (string, bool) {
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return v, false
	}
	return strings.TrimSpace(v[len(bearerPrefix):]), true
}
