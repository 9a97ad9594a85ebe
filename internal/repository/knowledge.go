package repository

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// KnowledgeRepository is the embedded document index
type KnowledgeRepository struct {
	store *Store
}

// NewKnowledgeRepository creates a knowledge repository on the store
func NewKnowledgeRepository(store *Store) *KnowledgeRepository {
	return &KnowledgeRepository{store: store}
}

// UpsertDocuments inserts or replaces documents with their embeddings.
// It returns how many rows were written and one message per failed document.
func (r *KnowledgeRepository) UpsertDocuments(ctx context.Context, docs []model.KnowledgeDocument) (int, []string) {
	success := 0
	var failures []string

	query := r.store.Rebind(`
		INSERT INTO knowledge_documents (doc_id, category, title, content, keywords, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (doc_id) DO UPDATE SET
			category = excluded.category,
			title = excluded.title,
			content = excluded.content,
			keywords = excluded.keywords,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`)

	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return errors.Wrap(err, "failed to prepare statement")
		}
		defer stmt.Close()

		for _, doc := range docs {
			var embedding interface{}
			if len(doc.Embedding.Slice()) > 0 {
				embedding = doc.Embedding
			}
			if _, err := stmt.ExecContext(ctx, doc.ID, doc.Category, doc.Title, doc.Content, doc.Keywords, embedding); err != nil {
				failures = append(failures, fmt.Sprintf("doc %s: %v", doc.ID, err))
				continue
			}
			success++
		}
		return nil
	})
	if err != nil {
		failures = append(failures, err.Error())
		return 0, failures
	}
	return success, failures
}

// CountDocuments returns the number of indexed documents
func (r *KnowledgeRepository) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := r.store.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM knowledge_documents`); err != nil {
		return 0, errors.Wrap(err, "failed to count documents")
	}
	return n, nil
}

// Documents returns every indexed document without its embedding, in insertion order
func (r *KnowledgeRepository) Documents(ctx context.Context) ([]model.KnowledgeDocument, error) {
	var docs []model.KnowledgeDocument
	query := `
		SELECT seq, doc_id, category, title, content, keywords, updated_at
		FROM knowledge_documents
		ORDER BY seq
	`
	if err := r.store.db.SelectContext(ctx, &docs, query); err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	return docs, nil
}

// SimilaritySearch returns the topK documents closest to embedding by cosine
// similarity, best first. Equal scores keep insertion order.
func (r *KnowledgeRepository) SimilaritySearch(ctx context.Context, embedding []float32, topK int) ([]model.ScoredDocument, error) {
	if topK <= 0 {
		return nil, nil
	}
	if r.store.driver == DriverPostgres {
		return r.vectorSearch(ctx, embedding, topK)
	}
	return r.scanSearch(ctx, embedding, topK)
}

func (r *KnowledgeRepository) vectorSearch(ctx context.Context, embedding []float32, topK int) ([]model.ScoredDocument, error) {
	query := `
		SELECT seq, doc_id, category, title, content, keywords, updated_at,
			1 - (embedding <=> $1) AS score
		FROM knowledge_documents
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1, seq
		LIMIT $2
	`
	var docs []model.ScoredDocument
	if err := r.store.db.SelectContext(ctx, &docs, query, pgvector.NewVector(embedding), topK); err != nil {
		return nil, errors.Wrap(err, "failed to search documents")
	}
	sortScored(docs)
	return docs, nil
}

// scanSearch ranks every document in process; used where pgvector is not available
func (r *KnowledgeRepository) scanSearch(ctx context.Context, embedding []float32, topK int) ([]model.ScoredDocument, error) {
	var docs []model.KnowledgeDocument
	query := `
		SELECT seq, doc_id, category, title, content, keywords, embedding, updated_at
		FROM knowledge_documents
		WHERE embedding IS NOT NULL
		ORDER BY seq
	`
	if err := r.store.db.SelectContext(ctx, &docs, query); err != nil {
		return nil, errors.Wrap(err, "failed to scan documents")
	}

	scored := make([]model.ScoredDocument, 0, len(docs))
	for _, d := range docs {
		score := CosineSimilarity(embedding, d.Embedding.Slice())
		d.Embedding = pgvector.Vector{}
		scored = append(scored, model.ScoredDocument{KnowledgeDocument: d, Score: score})
	}
	sortScored(scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func sortScored(docs []model.ScoredDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].Seq < docs[j].Seq
	})
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is empty or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
