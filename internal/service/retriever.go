package service

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// KnowledgeIndex is the document store behind the retriever
type KnowledgeIndex interface {
	SimilaritySearch(ctx context.Context, embedding []float32, topK int) ([]model.ScoredDocument, error)
	Documents(ctx context.Context) ([]model.KnowledgeDocument, error)
}

// DocumentWriter stores documents with their embeddings
type DocumentWriter interface {
	UpsertDocuments(ctx context.Context, docs []model.KnowledgeDocument) (int, []string)
}

// Retriever answers knowledge questions from the hotel document index
type Retriever struct {
	embedder     Embedder // nil means keyword ranking
	index        KnowledgeIndex
	ranker       *Ranker
	defaultTopK  int
	maxTopK      int
	snippetRunes int
	logger       *zap.Logger
}

// NewRetriever creates a retriever. A nil embedder switches to keyword ranking.
func NewRetriever(embedder Embedder, index KnowledgeIndex, cfg config.RetrievalConfig, logger *zap.Logger) *Retriever {
	r := &Retriever{
		embedder:     embedder,
		index:        index,
		ranker:       DefaultRanker(),
		defaultTopK:  cfg.DefaultTopK,
		maxTopK:      cfg.MaxTopK,
		snippetRunes: cfg.SnippetRunes,
		logger:       logging.OrNop(logger).Named("retriever"),
	}
	if r.maxTopK < 1 {
		r.maxTopK = 20
	}
	if r.defaultTopK < 1 {
		r.defaultTopK = 3
	}
	return r
}

// DefaultTopK is the result count used when a caller has no preference
func (r *Retriever) DefaultTopK() int {
	return r.defaultTopK
}

// Retrieve returns ranked snippets for query. Failures degrade to an empty
// result and are logged.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) []model.RetrievalResult {
	results, err := r.Search(ctx, query, topK)
	if err != nil {
		r.logger.Warn("knowledge retrieval degraded", zap.Error(err))
		return []model.RetrievalResult{}
	}
	return results
}

// Search is Retrieve with the failure reported, for callers that retry
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]model.RetrievalResult, error) {
	const op = "retriever.search"
	k := r.clamp(topK)

	if strings.TrimSpace(query) == "" {
		return []model.RetrievalResult{}, nil
	}

	var hits []model.ScoredDocument
	if r.embedder != nil {
		vectors, err := r.embedder.CreateEmbeddings(ctx, []string{query})
		if err != nil {
			return nil, classifyToolErr(op, err)
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			return nil, apperr.New(apperr.KindToolError, op, "embedder returned no vector", nil)
		}
		hits, err = r.index.SimilaritySearch(ctx, vectors[0], k)
		if err != nil {
			return nil, classifyToolErr(op, err)
		}
	} else {
		docs, err := r.index.Documents(ctx)
		if err != nil {
			return nil, classifyToolErr(op, err)
		}
		hits = r.ranker.Rank(query, docs, k)
	}

	results := make([]model.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, model.RetrievalResult{
			DocumentID: h.ID,
			Title:      h.Title,
			Category:   h.Category,
			Score:      h.Score,
			Snippet:    snippet(h.Content, r.snippetRunes),
		})
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (r *Retriever) clamp(topK int) int {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	if topK > r.maxTopK {
		topK = r.maxTopK
	}
	return max(topK, 1)
}

// IndexDocuments embeds documents in batches and writes them to the index.
// It returns how many documents were stored and the per-document failures.
func IndexDocuments(ctx context.Context, embedder Embedder, writer DocumentWriter, docs []model.KnowledgeDocument, batchSize int, logger *zap.Logger) (int, []string, error) {
	logger = logging.OrNop(logger)
	if batchSize <= 0 {
		batchSize = 100
	}

	stored := 0
	var failures []string
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		batch := append([]model.KnowledgeDocument(nil), docs[start:end]...)

		if embedder != nil {
			texts := make([]string, len(batch))
			for i, d := range batch {
				texts[i] = d.Title + "\n" + d.Content
			}
			vectors, err := embedder.CreateEmbeddings(ctx, texts)
			if err != nil {
				return stored, failures, classifyToolErr("retriever.index", err)
			}
			for i := range batch {
				if i < len(vectors) {
					batch[i].Embedding = pgvector.NewVector(vectors[i])
				}
			}
		}

		n, batchFailures := writer.UpsertDocuments(ctx, batch)
		stored += n
		failures = append(failures, batchFailures...)
		logger.Info("indexed knowledge batch",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("stored", n),
			zap.Int("failed", len(batchFailures)))
	}
	return stored, failures, nil
}

// snippet trims content to at most n runes, cutting at a word boundary
func snippet(content string, n int) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if n <= 0 || len(runes) <= n {
		return content
	}
	cut := n
	for i := n; i > n/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "..."
}

// classifyToolErr keeps pipeline errors and marks the rest as tool failures
func classifyToolErr(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if apperr.KindOf(err) == apperr.KindToolTimeout {
		return apperr.ToolTimeout(op, err)
	}
	return apperr.ToolError(op, err)
}
