package service

import (
	"sort"
	"strings"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/utils"
)

// Words too common to say anything about a document
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "do": true, "does": true,
	"what": true, "when": true, "where": true, "how": true, "can": true, "i": true,
	"you": true, "your": true, "my": true, "to": true, "of": true, "in": true, "on": true,
	"at": true, "for": true, "and": true, "or": true, "it": true, "there": true, "we": true,
	"me": true, "any": true, "have": true, "has": true, "be": true, "with": true, "please": true,
}

// Ranker scores knowledge documents by term overlap. It serves retrieval
// when no embedding model is configured.
type Ranker struct {
	weightTitle    float64
	weightKeywords float64
	weightContent  float64
}

// NewRanker creates a new ranker with specified weights
func NewRanker(weightTitle, weightKeywords, weightContent float64) *Ranker {
	return &Ranker{
		weightTitle:    weightTitle,
		weightKeywords: weightKeywords,
		weightContent:  weightContent,
	}
}

// DefaultRanker weighs titles and curated keywords above body text
func DefaultRanker() *Ranker {
	return NewRanker(0.4, 0.4, 0.2)
}

// Rank returns the topK documents that share at least one term with query,
// best first. Equal scores keep insertion order.
func (r *Ranker) Rank(query string, docs []model.KnowledgeDocument, topK int) []model.ScoredDocument {
	terms := queryTerms(query)
	if len(terms) == 0 || topK <= 0 {
		return nil
	}

	results := make([]model.ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		titleScore := overlap(terms, doc.Title)
		keywordScore := overlap(terms, strings.Join(doc.Keywords, " "))
		contentScore := overlap(terms, doc.Content)

		score := (r.weightTitle * titleScore) +
			(r.weightKeywords * keywordScore) +
			(r.weightContent * contentScore)
		if score == 0 {
			continue
		}
		results = append(results, model.ScoredDocument{KnowledgeDocument: doc, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Seq < results[j].Seq
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func queryTerms(query string) []string {
	var terms []string
	seen := map[string]bool{}
	for _, w := range strings.Fields(utils.NormalizeTerm(query)) {
		if stopWords[w] || len(w) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

// overlap is the share of terms found in text as whole words
func overlap(terms []string, text string) float64 {
	if text == "" {
		return 0
	}
	hit := 0
	for _, t := range terms {
		if utils.ContainsPhrase(text, t) || utils.ContainsPhrase(text, strings.TrimSuffix(t, "s")) {
			hit++
		}
	}
	return float64(hit) / float64(len(terms))
}
