package models

import "time"

// RequestLog records one request proxied by the relay. The credential is
// stored only as a fingerprint.
type RequestLog struct {
	ID                    string    `json:"id"`
	RequestID             string    `json:"request_id"`
	Route                 string    `json:"route"`
	Model                 string    `json:"model,omitempty"`
	Candidate             string    `json:"candidate,omitempty"`
	Attempts              int       `json:"attempts"`
	PromptTokens          int       `json:"prompt_tokens"`
	IsStreaming           bool      `json:"is_streaming"`
	StatusCode            int       `json:"status_code"`
	CredentialFingerprint string    `json:"credential_fingerprint,omitempty"`
	ErrorMessage          string    `json:"error_message,omitempty"`
	DurationMs            int64     `json:"duration_ms"`
	CreatedAt             time.Time `json:"created_at"`
}

// LogFilter contains parameters for filtering request logs
type LogFilter struct {
	Route      string
	Model      string
	StatusCode *int
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}
