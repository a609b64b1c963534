package preprocess

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/archivist-labs/chronicle/internal/model"
)

var (
	errStartupTimeout  = eris.New("preprocess: helper did not become ready before startup timeout")
	errProbeAfterSpawn = eris.New("preprocess: helper printed readiness marker but failed health probe")
)

// NormalizeName canonicalizes an entity name for deduplication: Unicode
// NFKC, lowercase, punctuation trimmed, whitespace collapsed.
func NormalizeName(name string) string {
	s := norm.NFKC.String(name)
	s = strings.ToLower(s)
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".,;:'\"()")
	}
	return strings.Join(fields, " ")
}

// candidateSet aggregates entity mentions keyed by normalized name.
type candidateSet struct {
	byKey map[string]*model.ProfileCandidate
	order []string
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byKey: make(map[string]*model.ProfileCandidate)}
}

func (cs *candidateSet) add(name string, sentenceIdx int, sentence string) {
	key := NormalizeName(name)
	if key == "" {
		return
	}

	c, ok := cs.byKey[key]
	if !ok {
		c = &model.ProfileCandidate{
			Name:           strings.TrimSpace(name),
			NormalizedName: key,
		}
		cs.byKey[key] = c
		cs.order = append(cs.order, key)
	}
	c.Mentions++
	c.SentenceIdx = append(c.SentenceIdx, sentenceIdx)
	if len(c.Contexts) < 3 {
		c.Contexts = append(c.Contexts, truncate(sentence, 200))
	}
}

// candidates returns the aggregated candidates, most-mentioned first with
// first-seen order as the tie-break.
func (cs *candidateSet) candidates() []model.ProfileCandidate {
	out := make([]model.ProfileCandidate, 0, len(cs.order))
	for _, key := range cs.order {
		out = append(out, *cs.byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mentions > out[j].Mentions })
	return out
}
