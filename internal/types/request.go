package types

// ChatCompletionRequest is the body sent to /chat/completions.
// Optional fields use pointers to distinguish between unset and zero values.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"` // 0-2, default 1
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}
