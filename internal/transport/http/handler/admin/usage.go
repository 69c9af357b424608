package admin

import (
	"net/http"
	"time"

	"github.com/mandalnilabja/chatrelay/internal/storage"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/chatrelay/internal/types"
)

// GetUsageStats handles GET /admin/usage.
func (h *Handlers) GetUsageStats(w http.ResponseWriter, r *http.Request) {
	filter := storage.StatsFilter{
		StartDate: parseDate(r.URL.Query().Get("start_date")),
		EndDate:   parseDate(r.URL.Query().Get("end_date")),
	}

	stats, err := h.Storage.GetUsageStats(filter)
	if err != nil {
		types.WriteError(w, http.StatusInternalServerError, types.NewRelayError("Failed to get usage stats").WithDetail(err.Error()))
		return
	}

	shared.WriteJSON(w, stats, http.StatusOK)
}

// GetDailyUsage handles GET /admin/usage/daily.
func (h *Handlers) GetDailyUsage(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	// Default to last 30 days if not specified
	if startDate == "" {
		startDate = time.Now().AddDate(0, 0, -30).Format(dateLayout)
	}
	if endDate == "" {
		endDate = time.Now().Format(dateLayout)
	}

	usage, err := h.Storage.GetDailyUsage(startDate, endDate)
	if err != nil {
		types.WriteError(w, http.StatusInternalServerError, types.NewRelayError("Failed to get daily usage").WithDetail(err.Error()))
		return
	}

	shared.WriteJSON(w, map[string]any{
		"daily_usage": usage,
		"start_date":  startDate,
		"end_date":    endDate,
	}, http.StatusOK)
}
