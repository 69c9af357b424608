// Package sse decodes OpenAI-style event streams into content deltas.
package sse

import "strings"

// Mode says how a Delta combines with the text accumulated so far.
type Mode int

const (
	// ModeAppend concatenates the delta to the accumulated text.
	ModeAppend Mode = iota
	// ModeReplace discards the accumulated text in favour of the delta.
	ModeReplace
)

func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "append"
}

// Delta is the text contribution of one frame.
type Delta struct {
	Text string
	Mode Mode
}

// Apply returns acc updated by d.
func (d Delta) Apply(acc string) string {
	if d.Mode == ModeReplace {
		return d.Text
	}
	return acc + d.Text
}

// IsJSON reports whether a Content-Type denotes a single JSON document rather
// than an event stream.
func IsJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}
