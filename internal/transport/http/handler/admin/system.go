package admin

import (
	"net/http"
	"runtime"
	"time"

	"github.com/mandalnilabja/chatrelay/internal/storage"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/shared"
)

// AdminInfo handles GET /admin/info.
func (h *Handlers) AdminInfo(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.StartTime)

	status := "healthy"
	stats, err := h.Storage.GetUsageStats(storage.StatsFilter{})
	if err != nil {
		status = "degraded"
		stats = &storage.UsageStats{}
	}

	shared.WriteJSON(w, map[string]any{
		"status":      status,
		"go_version":  runtime.Version(),
		"uptime":      uptime.String(),
		"uptime_secs": int64(uptime.Seconds()),
		"stats": map[string]any{
			"total_requests": stats.TotalRequests,
			"prompt_tokens":  stats.TotalPromptTokens,
			"errors":         stats.ErrorCount,
		},
	}, http.StatusOK)
}
