// Package chat drives one conversation's completion requests: it issues the
// call, streams deltas to a Sink, handles cancellation, and falls back to a
// single non-streaming retry when streaming fails.
package chat

import (
	"errors"

	"github.com/mandalnilabja/chatrelay/internal/types"
)

var (
	// ErrCanceled is the cancellation cause recorded by Controller.Cancel.
	ErrCanceled = errors.New("chat: request canceled")

	// ErrSuperseded is the cancellation cause recorded when a new Ask
	// replaces an in-flight request.
	ErrSuperseded = errors.New("chat: request superseded")

	// ErrInvalidSearchBody is returned when a search route answers 2xx with
	// a body that is not JSON.
	ErrInvalidSearchBody = errors.New("chat: search body is not valid JSON")
)

// CanceledPlaceholder is shown when a request is canceled before any text
// arrived.
const CanceledPlaceholder = "_Canceled._"

// ErrorPrefix starts the text of a terminal failure update.
const ErrorPrefix = "**Error:** "

// State is the lifecycle state of a Controller.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateRetrying
	StateFinalizing
	StateCanceling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateRetrying:
		return "retrying"
	case StateFinalizing:
		return "finalizing"
	case StateCanceling:
		return "canceling"
	default:
		return "unknown"
	}
}

// Outcome is how a request ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCanceled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "failed"
	}
}

// Request is one logical completion request. It is not modified once issued.
type Request struct {
	Model       string
	Messages    []types.Message
	Temperature float64
	MaxTokens   *int
	Streaming   bool
}

// body builds the wire request for one attempt.
func (r Request) body(stream bool) *types.ChatCompletionRequest {
	temperature := r.Temperature
	return &types.ChatCompletionRequest{
		Model:       r.Model,
		Messages:    r.Messages,
		Temperature: &temperature,
		MaxTokens:   r.MaxTokens,
		Stream:      stream,
	}
}

// Update is one notification to a Sink. Exactly one Update per request has
// Final set, and it is always the last.
type Update struct {
	Text     string
	Final    bool
	Canceled bool
	Failed   bool
}

// Sink receives the progressively accumulated text of a request. It is only
// called from the goroutine running Ask.
type Sink interface {
	Update(u Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(u Update)

// Update implements Sink.
func (f SinkFunc) Update(u Update) { f(u) }

// Result summarises a finished request. Text is the final text shown to the
// user, including the placeholder or error prefix.
type Result struct {
	Outcome Outcome
	Text    string
	Err     error
}
