// Package shared holds response helpers used by every handler group.
package shared

import (
	"encoding/json"
	"net/http"

	"github.com/mandalnilabja/chatrelay/internal/types"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// MethodNotAllowed answers a route called with an unsupported method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	types.WriteError(w, http.StatusMethodNotAllowed, types.NewRelayError(types.ErrMsgMethodNotAllowed))
}
