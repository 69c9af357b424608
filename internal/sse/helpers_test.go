package sse_test

import "github.com/mandalnilabja/chatrelay/internal/sse"

// accumulate folds deltas over an empty string in order.
func accumulate(deltas []sse.Delta) string {
	var acc string
	for _, d := range deltas {
		acc = d.Apply(acc)
	}
	return acc
}
