package chat

import (
	"github.com/mandalnilabja/chatrelay/internal/types"
)

// Defaults applied by NewSession.
const (
	DefaultModel        = "default"
	DefaultTemperature  = 0.4
	DefaultHistoryTurns = 30
	DefaultSystemPrompt = "You are a helpful assistant. Answer clearly and concisely, using Markdown where it helps."
)

// Session carries the settings of one client: where to send requests and how
// to compose them. It is passed explicitly to the Controller and the Client.
type Session struct {
	BaseURL      string
	Token        string
	Model        string
	Temperature  float64
	MaxTokens    *int
	Streaming    bool
	SystemPrompt string

	// HistoryTurns bounds how many prior user and assistant turns are sent.
	HistoryTurns int
	// TokenBudget, when positive, drops the oldest turns until the prompt fits.
	TokenBudget int
	// LiveSearch lets Enrich ground questions on the relay's search routes.
	LiveSearch bool
}

// NewSession returns a Session with default settings for baseURL.
func NewSession(baseURL, token string) *Session {
	return &Session{
		BaseURL:      baseURL,
		Token:        token,
		Model:        DefaultModel,
		Temperature:  DefaultTemperature,
		Streaming:    true,
		SystemPrompt: DefaultSystemPrompt,
		HistoryTurns: DefaultHistoryTurns,
		LiveSearch:   true,
	}
}

// Compose builds the Request for the next reply to history. counter may be
// nil when no token budget is set. A flagged latest user turn gets
// SafetyNote appended to the system prompt.
func (s *Session) Compose(history []types.Message, counter MessageCounter) (Request, error) {
	messages, err := BuildMessages(s.SystemPrompt, history, HistoryOptions{
		Turns:   s.HistoryTurns,
		Budget:  s.TokenBudget,
		Model:   s.Model,
		Counter: counter,
	})
	if err != nil {
		return Request{}, err
	}
	messages = withSafetyNote(messages)
	return Request{
		Model:       s.Model,
		Messages:    messages,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Streaming:   s.Streaming,
	}, nil
}
