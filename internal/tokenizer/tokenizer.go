// Package tokenizer estimates the prompt size of chat requests with tiktoken.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mandalnilabja/chatrelay/internal/types"
)

// Tokenizer counts the prompt tokens of chat messages. Implementations are
// safe for concurrent use.
type Tokenizer interface {
	CountMessage(msg types.Message, model string) (int, error)
	CountRequest(req *types.ChatCompletionRequest) (int, error)
}

// Vocabularies used for counting.
const (
	EncodingCL100k = "cl100k_base"
	EncodingO200k  = "o200k_base"
)

// o200kFamilies are model name prefixes counted with o200k_base. Every other
// model, including non-OpenAI ones behind the relay, uses cl100k_base.
var o200kFamilies = []string{"gpt-4o", "gpt-4.1", "gpt-5", "chatgpt", "o1", "o3", "o4"}

// EncodingFor returns the vocabulary used to count prompts for model. A
// vendor prefix such as "openai/" is ignored.
func EncodingFor(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	for _, family := range o200kFamilies {
		if strings.HasPrefix(name, family) {
			return EncodingO200k
		}
	}
	return EncodingCL100k
}

// TiktokenTokenizer implements Tokenizer. Encoders are loaded on first use
// and shared afterwards.
type TiktokenTokenizer struct {
	encoders sync.Map // encoding name -> *tiktoken.Tiktoken
}

// New creates a TiktokenTokenizer.
func New() *TiktokenTokenizer {
	return &TiktokenTokenizer{}
}

func (t *TiktokenTokenizer) encoder(model string) (*tiktoken.Tiktoken, error) {
	name := EncodingFor(model)
	if enc, ok := t.encoders.Load(name); ok {
		return enc.(*tiktoken.Tiktoken), nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load %s: %w", name, err)
	}
	actual, _ := t.encoders.LoadOrStore(name, enc)
	return actual.(*tiktoken.Tiktoken), nil
}
