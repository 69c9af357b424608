package chat

import (
	"fmt"
	"strings"

	"github.com/mandalnilabja/chatrelay/internal/types"
)

// MessageCounter counts the prompt tokens of one message.
type MessageCounter interface {
	CountMessage(msg types.Message, model string) (int, error)
}

// HistoryOptions bounds the history sent with a request.
type HistoryOptions struct {
	Turns   int // most recent turns kept; zero keeps all
	Budget  int // token budget; zero disables the check
	Model   string
	Counter MessageCounter
}

// BuildMessages composes the messages of a request: the system prompt, then
// the most recent user and assistant turns of history. Empty assistant turns
// and turns of any other role are dropped. With a budget, the oldest turns are
// dropped until the prompt fits, but the latest turn is always kept.
func BuildMessages(systemPrompt string, history []types.Message, opts HistoryOptions) ([]types.Message, error) {
	turns := make([]types.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case types.RoleUser:
		case types.RoleAssistant:
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
		default:
			continue
		}
		turns = append(turns, m)
	}
	if opts.Turns > 0 && len(turns) > opts.Turns {
		turns = turns[len(turns)-opts.Turns:]
	}

	var system []types.Message
	if systemPrompt != "" {
		system = []types.Message{types.NewTextMessage(types.RoleSystem, systemPrompt)}
	}

	if opts.Budget > 0 && opts.Counter != nil {
		var err error
		turns, err = fitBudget(system, turns, opts)
		if err != nil {
			return nil, err
		}
	}

	return append(system, turns...), nil
}

// fitBudget drops turns from the front until system plus turns fit the budget.
func fitBudget(system, turns []types.Message, opts HistoryOptions) ([]types.Message, error) {
	count := func(msgs []types.Message) (int, error) {
		total := 0
		for _, m := range msgs {
			n, err := opts.Counter.CountMessage(m, opts.Model)
			if err != nil {
				return 0, fmt.Errorf("count tokens: %w", err)
			}
			total += n
		}
		return total, nil
	}

	used, err := count(system)
	if err != nil {
		return nil, err
	}

	// Walk backwards, keeping turns while they fit.
	start := len(turns)
	for start > 0 {
		n, err := count(turns[start-1 : start])
		if err != nil {
			return nil, err
		}
		if used+n > opts.Budget && start < len(turns) {
			break
		}
		used += n
		start--
	}
	return turns[start:], nil
}
