package infra

import (
	"net/http"

	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// isoMillis is RFC 3339 with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// pingResponse is the body of GET /ping.
type pingResponse struct {
	OK  bool   `json:"ok"`
	Now string `json:"now"`
}

// Ping reports that the relay is reachable. No upstream is contacted.
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, pingResponse{
		OK:  true,
		Now: h.now().UTC().Format(isoMillis),
	}, http.StatusOK)
}

// RootStatus returns JSON status information at /.
func (h *Handlers) RootStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"name":   "chatrelay",
		"status": "running",
		"routes": []string{
			"/api/chat/completions",
			"/api/models",
			"/api/ping",
			"/api/search/searx",
			"/api/search/nvd",
		},
		"metrics": "/metrics",
	}
	shared.WriteJSON(w, response, http.StatusOK)
}

// HealthCheck handler returns the application health status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":         "active",
		"app":            "chatrelay",
		"uptime_seconds": int64(h.now().Sub(h.StartTime).Seconds()),
	}
	if h.Cache != nil && h.Cache.Metrics != nil {
		response["models_cache"] = map[string]any{
			"hits":      h.Cache.Metrics.Hits(),
			"misses":    h.Cache.Metrics.Misses(),
			"hit_ratio": h.Cache.Metrics.Ratio(),
		}
	}
	if h.Upstreams != nil {
		upstreams := make(map[upstream.Operation][]string, len(upstream.Operations))
		for _, op := range upstream.Operations {
			upstreams[op] = h.Upstreams.Candidates(op)
		}
		response["upstreams"] = upstreams
	}
	shared.WriteJSON(w, response, http.StatusOK)
}
