package preprocess

import (
	"sort"
	"strings"

	"github.com/archivist-labs/chronicle/internal/model"
)

// contextLimit caps the condensed context string passed to extraction
// prompts in ready mode.
const contextLimit = 2000

// buildContext condenses an annotated document into a short string for
// prompt assembly: timeline sentences first (strongest category weight
// first), then likely-timeline ones, topped off with profile sentences
// while the budget lasts.
func buildContext(sentences []model.AnnotatedSentence, lexicon *Lexicon) string {
	type scored struct {
		text  string
		score float64
	}

	var picks []scored
	for _, s := range sentences {
		var base float64
		switch s.Relevancy {
		case model.RelevancyTimeline:
			base = 2
		case model.RelevancyTimelinePossible:
			base = 1
		case model.RelevancyProfile:
			base = 0.5
		default:
			continue
		}

		weight := 0.0
		if lexicon != nil {
			for _, v := range s.Verbs {
				if w := lexicon.CategoryWeight(v.Category); w > weight {
					weight = w
				}
			}
		}
		picks = append(picks, scored{text: s.Text, score: base + weight + s.Confidence})
	}

	sort.SliceStable(picks, func(i, j int) bool { return picks[i].score > picks[j].score })

	var b strings.Builder
	for _, p := range picks {
		if b.Len()+len(p.text)+1 > contextLimit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.text)
	}
	return b.String()
}
