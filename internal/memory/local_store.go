package memory

import (
	"context"
	"sync"
)

// LocalStore keeps conversations in process. It backs single-instance
// deployments without Redis.
type LocalStore struct {
	mu          sync.Mutex
	maxMessages int
	convs       map[string][]Message
}

// NewLocalStore creates an in-process store retaining at most maxMessages per conversation
func NewLocalStore(maxMessages int) *LocalStore {
	return &LocalStore{maxMessages: maxMessages, convs: make(map[string][]Message)}
}

// Append implements Store
func (s *LocalStore) Append(_ context.Context, conversationID string, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := append(s.convs[conversationID], msgs...)
	if s.maxMessages > 0 && len(conv) > s.maxMessages {
		conv = append([]Message(nil), conv[len(conv)-s.maxMessages:]...)
	}
	s.convs[conversationID] = conv
	return nil
}

// Messages implements Store
func (s *LocalStore) Messages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.convs[conversationID]...), nil
}
