package tokenizer

import (
	"strings"
	"sync"
	"testing"

	"github.com/mandalnilabja/chatrelay/internal/chat"
	"github.com/mandalnilabja/chatrelay/internal/types"
)

func TestEncodingFor(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", EncodingO200k},
		{"GPT-4o", EncodingO200k},
		{"openai/gpt-4.1-nano", EncodingO200k},
		{"gpt-5-chat", EncodingO200k},
		{"o3-mini", EncodingO200k},
		{"gpt-4", EncodingCL100k},
		{"gpt-3.5-turbo", EncodingCL100k},
		{"mistral-small-3.1", EncodingCL100k},
		{"deepseek-r1", EncodingCL100k},
		{chat.DefaultModel, EncodingCL100k},
		{"", EncodingCL100k},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := EncodingFor(tt.model); got != tt.want {
				t.Errorf("EncodingFor(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

func TestCountMessage(t *testing.T) {
	tok := New()

	tests := []struct {
		name     string
		msg      types.Message
		minCount int
		maxCount int
	}{
		{"empty content pays role and framing", types.NewTextMessage(types.RoleUser, ""), 4, 4},
		{"short greeting", types.NewTextMessage(types.RoleUser, "Hello, world!"), 7, 9},
		{"sentence", types.NewTextMessage(types.RoleAssistant, "The quick brown fox jumps over the lazy dog."), 12, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tok.CountMessage(tt.msg, "gpt-4o-mini")
			if err != nil {
				t.Fatalf("CountMessage() error: %v", err)
			}
			if got < tt.minCount || got > tt.maxCount {
				t.Errorf("CountMessage() = %d, want between %d and %d", got, tt.minCount, tt.maxCount)
			}
		})
	}
}

func TestCountRequest(t *testing.T) {
	tok := New()
	req := &types.ChatCompletionRequest{
		Model: "gpt-4",
		Messages: []types.Message{
			types.NewTextMessage(types.RoleSystem, "Be brief."),
			types.NewTextMessage(types.RoleUser, "Hello!"),
		},
	}

	got, err := tok.CountRequest(req)
	if err != nil {
		t.Fatalf("CountRequest() error: %v", err)
	}

	want := replyPriming
	for _, m := range req.Messages {
		n, err := tok.CountMessage(m, req.Model)
		if err != nil {
			t.Fatalf("CountMessage() error: %v", err)
		}
		want += n
	}
	if got != want {
		t.Errorf("CountRequest() = %d, want %d", got, want)
	}

	empty, err := tok.CountRequest(&types.ChatCompletionRequest{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("CountRequest() error: %v", err)
	}
	if empty != replyPriming {
		t.Errorf("empty prompt = %d, want %d", empty, replyPriming)
	}
}

func TestEncoderShared(t *testing.T) {
	tok := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tok.CountMessage(types.NewTextMessage(types.RoleUser, "hi"), "gpt-4o"); err != nil {
				t.Errorf("CountMessage() error: %v", err)
			}
		}()
	}
	wg.Wait()

	a, err := tok.encoder("gpt-4o")
	if err != nil {
		t.Fatalf("encoder() error: %v", err)
	}
	b, err := tok.encoder("o1-mini")
	if err != nil {
		t.Fatalf("encoder() error: %v", err)
	}
	if a != b {
		t.Error("models sharing a vocabulary should share the encoder")
	}
}

// The history budget drops the oldest turns until the counted prompt fits.
func TestBudgetTrimsHistory(t *testing.T) {
	tok := New()
	long := strings.Repeat("lorem ipsum dolor sit amet ", 20)
	history := []types.Message{
		types.NewTextMessage(types.RoleUser, long),
		types.NewTextMessage(types.RoleAssistant, long),
		types.NewTextMessage(types.RoleUser, "latest question"),
	}

	latest, err := tok.CountMessage(history[2], "gpt-4o")
	if err != nil {
		t.Fatalf("CountMessage() error: %v", err)
	}

	msgs, err := chat.BuildMessages("", history, chat.HistoryOptions{
		Budget:  latest + 10,
		Model:   "gpt-4o",
		Counter: tok,
	})
	if err != nil {
		t.Fatalf("BuildMessages() error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "latest question" {
		t.Errorf("expected only the latest turn to fit, got %d messages", len(msgs))
	}

	all, err := chat.BuildMessages("", history, chat.HistoryOptions{
		Budget:  100000,
		Model:   "gpt-4o",
		Counter: tok,
	})
	if err != nil {
		t.Fatalf("BuildMessages() error: %v", err)
	}
	if len(all) != len(history) {
		t.Errorf("expected all %d turns within a large budget, got %d", len(history), len(all))
	}
}
