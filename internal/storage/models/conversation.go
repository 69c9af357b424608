package models

import (
	"strings"
	"time"

	"github.com/mandalnilabja/chatrelay/internal/types"
)

// DefaultTitle is the title of a conversation before its first user message.
const DefaultTitle = "New chat"

// titleRunes bounds a derived title.
const titleRunes = 40

// Conversation is a stored chat history.
type Conversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []types.Message `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ConversationFilter contains parameters for listing conversations.
type ConversationFilter struct {
	Query string // case-insensitive match on title or message text
	Limit int
}

// NewConversation returns an empty conversation with the default title.
func NewConversation() *Conversation {
	now := time.Now().UTC()
	return &Conversation{Title: DefaultTitle, CreatedAt: now, UpdatedAt: now}
}

// Append adds a message and bumps UpdatedAt.
func (c *Conversation) Append(msg types.Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now().UTC()
	c.deriveTitle()
}

// SetLastAssistant replaces the content of the trailing assistant message,
// appending one if the conversation does not end with it.
func (c *Conversation) SetLastAssistant(content string) {
	if n := len(c.Messages); n > 0 && c.Messages[n-1].Role == types.RoleAssistant {
		c.Messages[n-1].Content = content
		c.UpdatedAt = time.Now().UTC()
		return
	}
	c.Append(types.NewTextMessage(types.RoleAssistant, content))
}

// deriveTitle names an untitled conversation after its first user message.
func (c *Conversation) deriveTitle() {
	if c.Title != "" && c.Title != DefaultTitle {
		return
	}
	for _, m := range c.Messages {
		if m.Role != types.RoleUser {
			continue
		}
		title := []rune(strings.TrimSpace(m.Content))
		if len(title) > titleRunes {
			title = title[:titleRunes]
		}
		if len(title) > 0 {
			c.Title = string(title)
			return
		}
	}
	c.Title = DefaultTitle
}
