package service

import (
	"context"
	"time"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// AIClient is the interface for AI service providers
type AIClient interface {
	// ExtractSlots pulls raw booking slots out of a guest utterance.
	// today anchors relative dates; roomTypes lists the names the model may use.
	ExtractSlots(ctx context.Context, text string, today time.Time, roomTypes []string) (*model.RawSlots, error)

	// CreateEmbeddings generates embeddings for texts
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// IsEnabled returns whether the AI client is configured and ready
	IsEnabled() bool
}

// Embedder turns text into vectors
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Ensure OpenAIClient implements AIClient
var _ AIClient = (*OpenAIClient)(nil)
