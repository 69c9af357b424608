package models

import "time"

// DailyUsage represents aggregated usage stats for a day
type DailyUsage struct {
	Date         string `json:"date"` // YYYY-MM-DD
	Route        string `json:"route"`
	Model        string `json:"model"`
	RequestCount int    `json:"request_count"`
	PromptTokens int    `json:"prompt_tokens"`
	ErrorCount   int    `json:"error_count"`
}

// RouteStats represents usage statistics for a specific route
type RouteStats struct {
	Route        string `json:"route"`
	RequestCount int    `json:"request_count"`
	PromptTokens int    `json:"prompt_tokens"`
	ErrorCount   int    `json:"error_count"`
}

// UsageStats represents aggregated usage statistics
type UsageStats struct {
	TotalRequests     int                    `json:"total_requests"`
	TotalPromptTokens int                    `json:"prompt_tokens"`
	ErrorCount        int                    `json:"error_count"`
	RouteBreakdown    map[string]*RouteStats `json:"routes,omitempty"`
}

// StatsFilter contains parameters for filtering usage statistics
type StatsFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
}
