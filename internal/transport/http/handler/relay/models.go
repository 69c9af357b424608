package relay

import (
	"io"
	"net/http"
	"time"

	"github.com/mandalnilabja/chatrelay/internal/types"
	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// defaultAuthorization is sent upstream when the client supplies none.
const defaultAuthorization = "Bearer unused"

// modelsCacheKeyPrefix namespaces model listings in the shared cache.
const modelsCacheKeyPrefix = "models:"

// cachedModels is a successful upstream model listing.
type cachedModels struct {
	contentType string
	body        []byte
}

// ListModels relays GET /models. The upstream body is buffered and passed
// through; successful listings are cached per credential.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	header := upstream.RelayHeaders(r.Header, upstream.ModelsHeaders...)
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}
	if header.Get("Authorization") == "" {
		header.Set("Authorization", defaultAuthorization)
	}

	key := modelsCacheKeyPrefix + Fingerprint(header.Get("Authorization"))
	if cached, ok := h.cachedModels(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeBody(w, http.StatusOK, cached.contentType, cached.body)
		return
	}

	res, err := h.Router.Route(r.Context(), upstream.OpModels, &upstream.Request{
		Method: http.MethodGet,
		Header: header,
	})
	entry := newLogEntry(r, RouteModels, start)
	if err != nil {
		applyResult(entry, nil, err)
		h.logRequest(entry)
		h.Logger.Error("models upstream unavailable", "error", err)
		types.WriteError(w, http.StatusBadGateway, types.NewRelayError(types.ErrMsgUpstreamUnavailable))
		return
	}
	defer res.Response.Body.Close()

	body, err := io.ReadAll(res.Response.Body)
	if err != nil {
		applyResult(entry, res, err)
		h.logRequest(entry)
		types.WriteError(w, http.StatusBadGateway, types.NewRelayError(types.ErrMsgUpstreamUnavailable))
		return
	}

	status := res.Response.StatusCode
	contentType := res.Response.Header.Get("Content-Type")
	if status >= 200 && status < 300 {
		h.storeModels(key, &cachedModels{contentType: contentType, body: body})
	}

	applyResult(entry, res, nil)
	entry.DurationMs = time.Since(start).Milliseconds()
	h.logRequest(entry)

	w.Header().Set("X-Cache", "MISS")
	writeBody(w, status, contentType, body)
}

func (h *Handlers) cachedModels(key string) (*cachedModels, bool) {
	if h.Cache == nil || h.CacheTTL <= 0 {
		return nil, false
	}
	value, found := h.Cache.Get(key)
	cached, ok := value.(*cachedModels)
	hit := found && ok
	if h.Metrics != nil {
		h.Metrics.RecordCacheLookup(hit)
	}
	return cached, hit
}

func (h *Handlers) storeModels(key string, m *cachedModels) {
	if h.Cache == nil || h.CacheTTL <= 0 {
		return
	}
	h.Cache.SetWithTTL(key, m, int64(len(m.body)), h.CacheTTL)
}

// writeBody writes a buffered upstream body.
func writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
