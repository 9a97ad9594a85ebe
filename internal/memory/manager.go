package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"
)

const emptyHistory = "No previous conversation."

// Manager loads conversation history into LangChainGo buffers and records new turns
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager creates a new memory manager
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Session builds a LangChainGo buffer holding the stored history of a conversation
func (m *Manager) Session(ctx context.Context, conversationID string) (*memory.ConversationBuffer, error) {
	msgs, err := m.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	buf := memory.NewConversationBuffer()
	for _, msg := range msgs {
		var chatMsg llms.ChatMessage
		switch msg.Role {
		case RoleUser:
			chatMsg = llms.HumanChatMessage{Content: msg.Content}
		case RoleAssistant:
			chatMsg = llms.AIChatMessage{Content: msg.Content}
		default:
			continue
		}
		if err := buf.ChatHistory.AddMessage(ctx, chatMsg); err != nil {
			return nil, fmt.Errorf("failed to add message to memory: %w", err)
		}
	}
	return buf, nil
}

// FormattedHistory renders the conversation for a prompt
func (m *Manager) FormattedHistory(ctx context.Context, conversationID string) (string, error) {
	buf, err := m.Session(ctx, conversationID)
	if err != nil {
		return "", err
	}

	messages, err := buf.ChatHistory.Messages(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get messages: %w", err)
	}
	if len(messages) == 0 {
		return emptyHistory, nil
	}

	var b strings.Builder
	for _, msg := range messages {
		switch cm := msg.(type) {
		case llms.HumanChatMessage:
			fmt.Fprintf(&b, "Guest: %s\n", cm.Content)
		case llms.AIChatMessage:
			fmt.Fprintf(&b, "Concierge: %s\n", cm.Content)
		}
	}
	return b.String(), nil
}

// AppendTurn records a guest message and the reply it got
func (m *Manager) AppendTurn(ctx context.Context, conversationID, userText, reply string) error {
	now := m.now()
	return m.store.Append(ctx, conversationID,
		Message{Role: RoleUser, Content: userText, Timestamp: now},
		Message{Role: RoleAssistant, Content: reply, Timestamp: now},
	)
}

// Ping checks the backing store when it has a connection to check
func (m *Manager) Ping(ctx context.Context) error {
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Close closes the underlying store
func (m *Manager) Close() error {
	if closer, ok := m.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
