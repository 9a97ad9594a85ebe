package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/repository"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		// one axis per topic keeps similarity predictable
		switch {
		case strings.Contains(strings.ToLower(text), "pool"):
			out[i] = []float32{1, 0, 0}
		case strings.Contains(strings.ToLower(text), "pet"):
			out[i] = []float32{0, 1, 0}
		default:
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

type fakeIndex struct {
	docs    []model.ScoredDocument
	gotTopK int
	err     error
}

func (f *fakeIndex) SimilaritySearch(_ context.Context, _ []float32, topK int) ([]model.ScoredDocument, error) {
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	if len(f.docs) > topK {
		return f.docs[:topK], nil
	}
	return f.docs, nil
}

func (f *fakeIndex) Documents(context.Context) ([]model.KnowledgeDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.KnowledgeDocument, len(f.docs))
	for i, d := range f.docs {
		out[i] = d.KnowledgeDocument
	}
	return out, nil
}

func retrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{DefaultTopK: 3, MaxTopK: 20, SnippetRunes: 60}
}

func scoredDocs(n int) []model.ScoredDocument {
	docs := make([]model.ScoredDocument, n)
	for i := range docs {
		docs[i] = model.ScoredDocument{
			KnowledgeDocument: model.KnowledgeDocument{ID: fmt.Sprintf("doc-%02d", i), Seq: int64(i + 1), Title: "Doc", Content: "content"},
			Score:             1 - float64(i)/100,
		}
	}
	return docs
}

func TestRetrieveClampsTopK(t *testing.T) {
	index := &fakeIndex{docs: scoredDocs(30)}
	r := NewRetriever(&fakeEmbedder{}, index, retrievalConfig(), nil)
	ctx := context.Background()

	assert.Len(t, r.Retrieve(ctx, "pool", 50), 20)
	assert.Equal(t, 20, index.gotTopK)

	assert.Len(t, r.Retrieve(ctx, "pool", 0), 3)
	assert.Equal(t, 3, index.gotTopK)

	got := r.Retrieve(ctx, "pool", 5)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRetrieveDegradesToEmpty(t *testing.T) {
	ctx := context.Background()

	r := NewRetriever(&fakeEmbedder{err: assert.AnError}, &fakeIndex{}, retrievalConfig(), nil)
	got := r.Retrieve(ctx, "pool hours", 3)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err := r.Search(ctx, "pool hours", 3)
	assert.True(t, apperr.Is(err, apperr.KindToolError))

	r = NewRetriever(&fakeEmbedder{}, &fakeIndex{err: assert.AnError}, retrievalConfig(), nil)
	assert.Empty(t, r.Retrieve(ctx, "pool hours", 3))

	emb := &fakeEmbedder{}
	r = NewRetriever(emb, &fakeIndex{docs: scoredDocs(2)}, retrievalConfig(), nil)
	assert.Empty(t, r.Retrieve(ctx, "   ", 3))
	assert.Equal(t, 0, emb.calls)
}

func TestRetrieveWithEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := repository.NewKnowledgeRepository(s)
	docs, err := catalog.LoadKnowledge("../../config/knowledge.yaml")
	require.NoError(t, err)

	emb := &fakeEmbedder{}
	stored, failures, err := IndexDocuments(ctx, emb, repo, docs, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, len(docs), stored)
	assert.Equal(t, (len(docs)+1)/2, emb.calls)

	r := NewRetriever(emb, repo, retrievalConfig(), nil)
	got := r.Retrieve(ctx, "When is the pool open?", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "faq-pool-hours", got[0].DocumentID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.True(t, strings.HasSuffix(got[0].Snippet, "..."))
	assert.LessOrEqual(t, len([]rune(got[0].Snippet)), 63)
}

func TestRetrieveWithKeywords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := repository.NewKnowledgeRepository(s)
	docs, err := catalog.LoadKnowledge("../../config/knowledge.yaml")
	require.NoError(t, err)

	stored, failures, err := IndexDocuments(ctx, nil, repo, docs, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, len(docs), stored)

	r := NewRetriever(nil, repo, config.RetrievalConfig{DefaultTopK: 3, MaxTopK: 20}, nil)
	got := r.Retrieve(ctx, "What are the pool hours?", 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "faq-pool-hours", got[0].DocumentID)
	assert.Contains(t, got[0].Snippet, "7:00 AM to 10:00 PM")

	assert.Empty(t, r.Retrieve(ctx, "xylophone", 3))
}

func TestIndexDocumentsStopsOnEmbedderFailure(t *testing.T) {
	index := &fakeWriter{}
	docs := []model.KnowledgeDocument{{ID: "a", Content: "x"}}
	_, _, err := IndexDocuments(context.Background(), &fakeEmbedder{err: assert.AnError}, index, docs, 10, nil)
	require.Error(t, err)
	assert.Zero(t, index.calls)
}

type fakeWriter struct{ calls int }

func (f *fakeWriter) UpsertDocuments(_ context.Context, docs []model.KnowledgeDocument) (int, []string) {
	f.calls++
	return len(docs), nil
}

func TestRankerOrdersByOverlapThenSeq(t *testing.T) {
	docs := []model.KnowledgeDocument{
		{ID: "spa", Seq: 1, Title: "Spa", Content: "Massages daily", Keywords: model.JSONArray{"spa"}},
		{ID: "pool-a", Seq: 2, Title: "Pool", Content: "Open late", Keywords: model.JSONArray{"pool"}},
		{ID: "pool-b", Seq: 3, Title: "Pool", Content: "Open late", Keywords: model.JSONArray{"pool"}},
		{ID: "pool-hours", Seq: 4, Title: "Pool hours", Content: "The pool opens at 7", Keywords: model.JSONArray{"pool", "hours"}},
	}
	got := DefaultRanker().Rank("pool hours", docs, 10)
	require.Len(t, got, 3)
	assert.Equal(t, "pool-hours", got[0].ID)
	assert.Equal(t, "pool-a", got[1].ID)
	assert.Equal(t, "pool-b", got[2].ID)

	assert.Len(t, DefaultRanker().Rank("pool hours", docs, 1), 1)
	assert.Empty(t, DefaultRanker().Rank("the of and", docs, 10))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet("  short ", 20))
	assert.Equal(t, "one two...", snippet("one two three four", 9))
	assert.Equal(t, "abcdefgh...", snippet("abcdefghijkl", 8))
}
