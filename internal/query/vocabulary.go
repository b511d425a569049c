package query

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultVocabulary is the expansion vocabulary used when no file is configured.
var DefaultVocabulary = []string{
	"artificial intelligence",
	"data science",
	"analytics",
	"computer vision",
	"deep learning",
	"machine learning",
	"nlp",
	"natural language processing",
}

// LoadVocabulary reads expansion terms from a YAML file of the form:
//
//	vocabulary:
//	  - machine learning
//	  - analytics
func LoadVocabulary(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "query: read vocabulary %s", path)
	}

	var doc struct {
		Vocabulary []string `yaml:"vocabulary"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "query: parse vocabulary")
	}

	terms := make([]string, 0, len(doc.Vocabulary))
	seen := make(map[string]bool, len(doc.Vocabulary))
	for _, t := range doc.Vocabulary {
		t = strings.TrimSpace(strings.ToLower(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		return nil, eris.Errorf("query: vocabulary %s is empty", path)
	}
	return terms, nil
}
