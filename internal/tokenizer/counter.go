package tokenizer

import (
	"github.com/mandalnilabja/chatrelay/internal/types"
)

const (
	// messageFraming is the markup around every message of a chat prompt.
	messageFraming = 3
	// replyPriming is paid once per prompt for the assistant reply header.
	replyPriming = 3
)

// CountMessage counts one message: its role, its content and the framing.
func (t *TiktokenTokenizer) CountMessage(msg types.Message, model string) (int, error) {
	enc, err := t.encoder(model)
	if err != nil {
		return 0, err
	}
	role := enc.Encode(string(msg.Role), nil, nil)
	content := enc.Encode(msg.Content, nil, nil)
	return len(role) + len(content) + messageFraming, nil
}

// CountRequest counts the whole prompt of req, reply priming included.
func (t *TiktokenTokenizer) CountRequest(req *types.ChatCompletionRequest) (int, error) {
	total := replyPriming
	for _, msg := range req.Messages {
		n, err := t.CountMessage(msg, req.Model)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
