package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

type knowledgeFile struct {
	Documents []model.KnowledgeDocument `yaml:"documents"`
}

// LoadKnowledge reads the hotel knowledge documents from a YAML file
func LoadKnowledge(path string) ([]model.KnowledgeDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}
	return ParseKnowledge(data)
}

// ParseKnowledge decodes knowledge documents. Every document needs an id and
// content, and ids must be unique.
func ParseKnowledge(data []byte) ([]model.KnowledgeDocument, error) {
	var f knowledgeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file: %w", err)
	}

	seen := make(map[string]bool, len(f.Documents))
	for i, d := range f.Documents {
		switch {
		case d.ID == "":
			return nil, fmt.Errorf("knowledge: document %d has no id", i)
		case d.Content == "":
			return nil, fmt.Errorf("knowledge: document %s has no content", d.ID)
		case seen[d.ID]:
			return nil, fmt.Errorf("knowledge: duplicate document %s", d.ID)
		}
		seen[d.ID] = true
		if d.Category == "" {
			f.Documents[i].Category = model.CategoryFAQ
		}
	}
	return f.Documents, nil
}
