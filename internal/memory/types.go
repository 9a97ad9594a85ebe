// Package memory keeps per-conversation history for the planner.
package memory

import (
	"context"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a conversation
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists conversation messages
type Store interface {
	// Append adds messages to the end of a conversation and refreshes its TTL
	Append(ctx context.Context, conversationID string, msgs ...Message) error

	// Messages returns the retained messages of a conversation, oldest first
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}
