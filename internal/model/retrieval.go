package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Knowledge document categories
const (
	CategoryFAQ            = "faq"
	CategoryPolicy         = "policy"
	CategoryAmenity        = "amenity"
	CategoryRecommendation = "recommendation"
)

// KnowledgeDocument is one entry of the hotel knowledge index
type KnowledgeDocument struct {
	ID        string          `json:"id" yaml:"id" db:"doc_id"`
	Seq       int64           `json:"seq" yaml:"-" db:"seq"`
	Category  string          `json:"category" yaml:"category" db:"category"`
	Title     string          `json:"title" yaml:"title" db:"title"`
	Content   string          `json:"content" yaml:"content" db:"content"`
	Keywords  JSONArray       `json:"keywords,omitempty" yaml:"keywords" db:"keywords"`
	Embedding pgvector.Vector `json:"-" yaml:"-" db:"embedding"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"-" db:"updated_at"`
}

// ScoredDocument is a similarity search hit
type ScoredDocument struct {
	KnowledgeDocument
	Score float64 `json:"score" db:"score"`
}

// RetrievalResult is one ranked grounding snippet
type RetrievalResult struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Category   string  `json:"category,omitempty"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}
