package chat_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandalnilabja/chatrelay/internal/chat"
	"github.com/mandalnilabja/chatrelay/internal/types"
)

// lengthCounter counts one token per byte of content.
type lengthCounter struct{ err error }

func (c lengthCounter) CountMessage(msg types.Message, _ string) (int, error) {
	return len(msg.Content), c.err
}

func turns(n int) []types.Message {
	out := make([]types.Message, 0, n)
	for i := range n {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		out = append(out, types.NewTextMessage(role, fmt.Sprintf("m%02d", i)))
	}
	return out
}

func TestBuildMessages_SystemPromptFirst(t *testing.T) {
	msgs, err := chat.BuildMessages("sys", turns(2), chat.HistoryOptions{})
	require.NoError(t, err)

	require.Len(t, msgs, 3)
	assert.Equal(t, types.NewTextMessage(types.RoleSystem, "sys"), msgs[0])
	assert.Equal(t, "m00", msgs[1].Content)
	assert.Equal(t, "m01", msgs[2].Content)
}

func TestBuildMessages_KeepsMostRecentTurns(t *testing.T) {
	msgs, err := chat.BuildMessages("sys", turns(45), chat.HistoryOptions{Turns: chat.DefaultHistoryTurns})
	require.NoError(t, err)

	require.Len(t, msgs, 31)
	assert.Equal(t, "m15", msgs[1].Content)
	assert.Equal(t, "m44", msgs[30].Content)
}

func TestBuildMessages_DropsEmptyAssistantAndForeignRoles(t *testing.T) {
	history := []types.Message{
		types.NewTextMessage(types.RoleUser, "q1"),
		types.NewTextMessage(types.RoleAssistant, "  \n"),
		types.NewTextMessage(types.RoleSystem, "stale system"),
		types.NewTextMessage(types.Role("tool"), "tool output"),
		types.NewTextMessage(types.RoleUser, ""),
		types.NewTextMessage(types.RoleAssistant, "a1"),
	}

	msgs, err := chat.BuildMessages("", history, chat.HistoryOptions{})
	require.NoError(t, err)

	assert.Equal(t, []types.Message{
		types.NewTextMessage(types.RoleUser, "q1"),
		types.NewTextMessage(types.RoleUser, ""),
		types.NewTextMessage(types.RoleAssistant, "a1"),
	}, msgs)
}

func TestBuildMessages_TokenBudget(t *testing.T) {
	// System costs 3, every turn costs 3.
	opts := chat.HistoryOptions{Budget: 12, Counter: lengthCounter{}}

	msgs, err := chat.BuildMessages("sys", turns(10), opts)
	require.NoError(t, err)

	require.Len(t, msgs, 4)
	assert.Equal(t, "sys", msgs[0].Content)
	assert.Equal(t, "m07", msgs[1].Content)
	assert.Equal(t, "m09", msgs[3].Content)
}

func TestBuildMessages_BudgetKeepsLatestTurn(t *testing.T) {
	opts := chat.HistoryOptions{Budget: 1, Counter: lengthCounter{}}

	msgs, err := chat.BuildMessages("sys", turns(4), opts)
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, "m03", msgs[1].Content)
}

func TestBuildMessages_CounterError(t *testing.T) {
	boom := errors.New("no encoding")
	_, err := chat.BuildMessages("sys", turns(2), chat.HistoryOptions{Budget: 10, Counter: lengthCounter{err: boom}})
	assert.ErrorIs(t, err, boom)
}

func TestSession_Compose(t *testing.T) {
	maxTokens := 256
	s := chat.NewSession("http://relay", "")
	s.MaxTokens = &maxTokens

	req, err := s.Compose(turns(3), nil)
	require.NoError(t, err)

	assert.Equal(t, chat.DefaultModel, req.Model)
	assert.Equal(t, chat.DefaultTemperature, req.Temperature)
	assert.Equal(t, &maxTokens, req.MaxTokens)
	assert.True(t, req.Streaming)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, types.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, chat.DefaultSystemPrompt, req.Messages[0].Content)
}
