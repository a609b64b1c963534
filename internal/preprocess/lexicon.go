package preprocess

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/archivist-labs/chronicle/internal/model"
)

//go:embed verbs.yaml
var verbsYAML []byte

// Lexicon maps verb lemmas to event categories with per-category weights.
// It backs relevancy tagging when the helper process is unavailable and
// supplies category weights for the condensed prompt context.
type Lexicon struct {
	weights map[string]float64 // category -> weight
	lemmas  map[string]string  // lemma -> category
}

type lexiconFile struct {
	Categories map[string]struct {
		Weight float64  `yaml:"weight"`
		Lemmas []string `yaml:"lemmas"`
	} `yaml:"categories"`
}

var (
	lexOnce sync.Once
	lex     *Lexicon
	lexErr  error
)

// DefaultLexicon parses the embedded verb lexicon once and returns it.
func DefaultLexicon() (*Lexicon, error) {
	lexOnce.Do(func() {
		lex, lexErr = parseLexicon(verbsYAML)
	})
	return lex, lexErr
}

func parseLexicon(data []byte) (*Lexicon, error) {
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "preprocess: parse verb lexicon")
	}

	l := &Lexicon{
		weights: make(map[string]float64, len(f.Categories)),
		lemmas:  make(map[string]string),
	}
	for category, def := range f.Categories {
		l.weights[category] = def.Weight
		for _, lemma := range def.Lemmas {
			l.lemmas[strings.ToLower(lemma)] = category
		}
	}
	return l, nil
}

// CategoryWeight returns a category's weight, or 0 for unknown categories.
func (l *Lexicon) CategoryWeight(category string) float64 {
	return l.weights[category]
}

// Categories returns the category-to-weight map.
func (l *Lexicon) Categories() map[string]float64 {
	out := make(map[string]float64, len(l.weights))
	for k, v := range l.weights {
		out[k] = v
	}
	return out
}

// MatchVerbs scans a sentence for lexicon verbs, good enough for
// degraded-mode annotation.
func (l *Lexicon) MatchVerbs(sentence string) []model.VerbMatch {
	var matches []model.VerbMatch
	pos := 0
	for _, word := range strings.Fields(sentence) {
		cleaned := strings.ToLower(strings.Trim(word, ".,;:!?\"'()"))
		lemma := l.stem(cleaned)
		if category, ok := l.lemmas[lemma]; ok {
			matches = append(matches, model.VerbMatch{
				Text:     word,
				Lemma:    lemma,
				Category: category,
				Position: pos,
			})
		}
		pos += len(word) + 1
	}
	return matches
}

// stem strips common verb inflections so "opened" and "opening" both reach
// the "open" lemma. A proper lemmatizer lives in the helper process.
func (l *Lexicon) stem(w string) string {
	if _, ok := l.lemmas[w]; ok {
		return w
	}
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if strings.HasSuffix(w, suffix) && len(w) > len(suffix)+2 {
			stripped := strings.TrimSuffix(w, suffix)
			// "razed" strips to "raz"; restore the trailing e for
			// e-final lemmas before giving up.
			if suffix == "ed" || suffix == "ing" {
				if _, ok := l.lemmas[stripped+"e"]; ok {
					return stripped + "e"
				}
			}
			if _, ok := l.lemmas[stripped]; ok {
				return stripped
			}
		}
	}
	return w
}
