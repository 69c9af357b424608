package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mandalnilabja/chatrelay/internal/storage"
	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/chatrelay/internal/types"
)

// GetRequestLogs handles GET /admin/logs.
func (h *Handlers) GetRequestLogs(w http.ResponseWriter, r *http.Request) {
	filter := parseLogFilter(r)

	logs, err := h.Storage.GetRequestLogs(filter)
	if err != nil {
		types.WriteError(w, http.StatusInternalServerError, types.NewRelayError("Failed to get request logs").WithDetail(err.Error()))
		return
	}

	shared.WriteJSON(w, map[string]any{
		"logs":   logs,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	}, http.StatusOK)
}

// DeleteRequestLogs handles DELETE /admin/logs?before_date=YYYY-MM-DD.
func (h *Handlers) DeleteRequestLogs(w http.ResponseWriter, r *http.Request) {
	beforeDate := r.URL.Query().Get("before_date")
	if beforeDate == "" {
		types.WriteError(w, http.StatusBadRequest, types.NewRelayError("before_date query parameter is required (format: YYYY-MM-DD)"))
		return
	}

	before, err := time.Parse(dateLayout, beforeDate)
	if err != nil {
		types.WriteError(w, http.StatusBadRequest, types.NewRelayError("Invalid date format. Use YYYY-MM-DD"))
		return
	}

	deleted, err := h.Storage.DeleteRequestLogs(before)
	if err != nil {
		types.WriteError(w, http.StatusInternalServerError, types.NewRelayError("Failed to delete logs").WithDetail(err.Error()))
		return
	}

	shared.WriteJSON(w, map[string]any{
		"deleted_count": deleted,
		"before_date":   beforeDate,
	}, http.StatusOK)
}

// parseLogFilter creates a LogFilter from query parameters.
func parseLogFilter(r *http.Request) storage.LogFilter {
	filter := storage.LogFilter{
		Limit:  50, // default
		Offset: 0,
	}

	q := r.URL.Query()
	filter.Route = q.Get("route")
	filter.Model = q.Get("model")
	if v := q.Get("status_code"); v != "" {
		if code, err := strconv.Atoi(v); err == nil {
			filter.StatusCode = &code
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = min(limit, 500)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	filter.StartDate = parseDate(q.Get("start_date"))
	filter.EndDate = parseDate(q.Get("end_date"))

	return filter
}

func parseDate(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil
	}
	return &t
}
