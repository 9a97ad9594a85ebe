package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

func TestLoadKnowledgeFile(t *testing.T) {
	docs, err := LoadKnowledge("../../config/knowledge.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "faq-pool-hours", docs[0].ID)
	assert.Contains(t, docs[0].Content, "7:00 AM to 10:00 PM")
	assert.Equal(t, model.JSONArray{"pool", "swimming", "hours", "rooftop"}, docs[0].Keywords)
}

func TestParseKnowledge(t *testing.T) {
	docs, err := ParseKnowledge([]byte(`
documents:
  - id: a
    title: Parking
    content: Valet parking is available.
`))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.CategoryFAQ, docs[0].Category)

	_, err = ParseKnowledge([]byte("documents:\n  - id: a\n    content: x\n  - id: a\n    content: y\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseKnowledge([]byte("documents:\n  - title: nothing\n    content: x\n"))
	assert.ErrorContains(t, err, "no id")

	_, err = ParseKnowledge([]byte("documents: ["))
	assert.Error(t, err)
}
