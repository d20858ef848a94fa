// Package chat defines the conversation domain types shared by the relay,
// its storage drivers, and the client library.
package chat

import (
	"strings"
	"time"
)

// Roles for the two sides of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a thread.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// IsBlank reports whether the message content is empty or whitespace-only.
// Blank assistant messages are never persisted.
func (m Message) IsBlank() bool {
	return strings.TrimSpace(m.Content) == ""
}
