package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mandalnilabja/chatrelay/internal/chat"
)

// terminalSink prints the accumulated reply incrementally. Updates carry the
// whole text so far; only the unseen suffix is written.
type terminalSink struct {
	w       io.Writer
	printed string
}

func newTerminalSink(w io.Writer) *terminalSink {
	return &terminalSink{w: w}
}

// Update implements chat.Sink.
func (s *terminalSink) Update(u chat.Update) {
	switch {
	case strings.HasPrefix(u.Text, s.printed):
		io.WriteString(s.w, u.Text[len(s.printed):])
	default:
		// Placeholder or error text replaces what was shown.
		fmt.Fprintf(s.w, "\n%s", u.Text)
	}
	s.printed = u.Text

	if u.Final {
		io.WriteString(s.w, "\n")
		s.printed = ""
	}
}
