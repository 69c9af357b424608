package types

import (
	"encoding/json"
	"net/http"
)

// Relay error messages. These are part of the wire contract with the browser
// client and must not change.
const (
	ErrMsgForbiddenOrigin     = "Forbidden origin"
	ErrMsgMethodNotAllowed    = "Method not allowed"
	ErrMsgUpstreamUnavailable = "Upstream unavailable"
	ErrMsgMissingQuery        = "Missing q"
	ErrMsgSearchFailed        = "Search upstream failed"
)

// RelayError is the flat error body written by the relay.
type RelayError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// NewRelayError creates a relay error body.
func NewRelayError(message string) *RelayError {
	return &RelayError{Error: message}
}

// WithDetail attaches a short diagnostic to the error.
func (e *RelayError) WithDetail(detail string) *RelayError {
	e.Detail = detail
	return e
}

// WriteError writes a relay error to the response writer.
func WriteError(w http.ResponseWriter, statusCode int, err *RelayError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(err)
}
