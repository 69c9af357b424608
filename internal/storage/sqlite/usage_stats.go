package sqlite

import "github.com/mandalnilabja/chatrelay/internal/storage/models"

// GetUsageStats retrieves aggregated usage statistics
func (s *Storage) GetUsageStats(filter models.StatsFilter) (*models.UsageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	where := " WHERE 1=1"
	var args []interface{}

	if filter.StartDate != nil {
		where += " AND date >= ?"
		args = append(args, filter.StartDate.Format("2006-01-02"))
	}
	if filter.EndDate != nil {
		where += " AND date <= ?"
		args = append(args, filter.EndDate.Format("2006-01-02"))
	}

	stats := &models.UsageStats{
		RouteBreakdown: make(map[string]*models.RouteStats),
	}

	err := s.db.QueryRow(`SELECT
		COALESCE(SUM(request_count), 0),
		COALESCE(SUM(prompt_tokens), 0),
		COALESCE(SUM(error_count), 0)
		FROM usage_daily`+where, args...).Scan(
		&stats.TotalRequests,
		&stats.TotalPromptTokens,
		&stats.ErrorCount,
	)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT route,
		COALESCE(SUM(request_count), 0),
		COALESCE(SUM(prompt_tokens), 0),
		COALESCE(SUM(error_count), 0)
		FROM usage_daily`+where+" GROUP BY route", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rs models.RouteStats
		if err := rows.Scan(&rs.Route, &rs.RequestCount, &rs.PromptTokens, &rs.ErrorCount); err != nil {
			return nil, err
		}
		stats.RouteBreakdown[rs.Route] = &rs
	}

	return stats, rows.Err()
}

// GetDailyUsage retrieves daily usage data for a date range
func (s *Storage) GetDailyUsage(startDate, endDate string) ([]*models.DailyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	rows, err := s.db.Query(`
		SELECT date, route, model, request_count, prompt_tokens, error_count
		FROM usage_daily
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, route ASC, model ASC
	`, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usage []*models.DailyUsage
	for rows.Next() {
		var u models.DailyUsage
		err := rows.Scan(&u.Date, &u.Route, &u.Model, &u.RequestCount, &u.PromptTokens, &u.ErrorCount)
		if err != nil {
			return nil, err
		}
		usage = append(usage, &u)
	}

	return usage, rows.Err()
}
