package preprocess

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/archivist-labs/chronicle/internal/model"
)

// fallbackConfidence is the fixed relevance confidence assigned to every
// sentence produced without the helper process. Degraded output is weaker
// signal, not an error.
const fallbackConfidence = 0.3

// fallbackContextLimit caps the condensed context string in degraded mode.
const fallbackContextLimit = 1500

var (
	sentenceSplitRe = regexp.MustCompile(`[.!?]+[\s\n]+|[.!?]+$`)

	monthNames = map[string]string{
		"january": "01", "february": "02", "march": "03", "april": "04",
		"may": "05", "june": "06", "july": "07", "august": "08",
		"september": "09", "october": "10", "november": "11", "december": "12",
		"jan": "01", "feb": "02", "mar": "03", "apr": "04", "jun": "06",
		"jul": "07", "aug": "08", "sep": "09", "sept": "09", "oct": "10",
		"nov": "11", "dec": "12",
	}

	// Date reference patterns, most specific first.
	monthDayYearRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept?|Oct|Nov|Dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	monthYearRe    = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept?|Oct|Nov|Dec)\.?,?\s+(\d{4})\b`)
	isoDateRe      = regexp.MustCompile(`\b(\d{4})-(\d{2})(?:-(\d{2}))?\b`)
	numericDateRe  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	decadeRe       = regexp.MustCompile(`\b(\d{3})0s\b`)
	bareYearRe     = regexp.MustCompile(`\b(1[6-9]\d{2}|20\d{2})\b`)
)

// fallbackPreprocess produces a degraded PreprocessingResult from naive
// sentence splitting. Every sentence carries relevancy "context" and the
// fixed low confidence; verb and date annotations are still attached so
// downstream prompt assembly has something to work with.
func fallbackPreprocess(text string, lexicon *Lexicon, maxSentences int) *model.PreprocessingResult {
	sentences := splitSentences(text, maxSentences)

	result := &model.PreprocessingResult{
		Sentences: make([]model.AnnotatedSentence, 0, len(sentences)),
		Degraded:  true,
	}

	words := 0
	for i, s := range sentences {
		words += len(strings.Fields(s))
		annotated := model.AnnotatedSentence{
			Text:       s,
			Index:      i,
			Relevancy:  model.RelevancyContext,
			Confidence: fallbackConfidence,
		}
		if lexicon != nil {
			annotated.Verbs = lexicon.MatchVerbs(s)
		}
		annotated.DateRefs = findDateRefs(s)
		annotated.HasDate = len(annotated.DateRefs) > 0
		result.Sentences = append(result.Sentences, annotated)

		for _, v := range annotated.Verbs {
			if result.Stats.VerbCounts == nil {
				result.Stats.VerbCounts = make(map[string]int)
			}
			result.Stats.VerbCounts[v.Category]++
		}
	}

	result.Stats.TotalSentences = len(result.Sentences)
	result.Stats.TotalWords = words
	result.Context = truncate(strings.TrimSpace(text), fallbackContextLimit)
	return result
}

// splitSentences performs whitespace/punctuation sentence splitting.
func splitSentences(text string, maxSentences int) []string {
	var out []string
	for _, part := range sentenceSplitRe.Split(text, -1) {
		s := strings.TrimSpace(part)
		if s == "" {
			continue
		}
		out = append(out, s)
		if maxSentences > 0 && len(out) >= maxSentences {
			break
		}
	}
	return out
}

// findDateRefs extracts date references from a sentence with best-effort
// normalization: full dates, month-year, ISO forms, numeric M/D/YYYY,
// decades, and bare years.
func findDateRefs(sentence string) []model.DateRef {
	var refs []model.DateRef
	covered := make([]bool, len(sentence))

	mark := func(loc []int) {
		for i := loc[0]; i < loc[1] && i < len(covered); i++ {
			covered[i] = true
		}
	}
	overlaps := func(loc []int) bool {
		for i := loc[0]; i < loc[1] && i < len(covered); i++ {
			if covered[i] {
				return true
			}
		}
		return false
	}

	for _, loc := range monthDayYearRe.FindAllStringSubmatchIndex(sentence, -1) {
		m := monthDayYearRe.FindStringSubmatch(sentence[loc[0]:loc[1]])
		month := monthNames[strings.ToLower(strings.TrimSuffix(m[1], "."))]
		refs = append(refs, model.DateRef{
			Text:       sentence[loc[0]:loc[1]],
			Normalized: fmt.Sprintf("%s-%s-%s", m[3], month, pad2(m[2])),
			Precision:  string(model.PrecisionExact),
		})
		mark(loc)
	}
	for _, loc := range monthYearRe.FindAllStringSubmatchIndex(sentence, -1) {
		if overlaps(loc) {
			continue
		}
		m := monthYearRe.FindStringSubmatch(sentence[loc[0]:loc[1]])
		month := monthNames[strings.ToLower(strings.TrimSuffix(m[1], "."))]
		refs = append(refs, model.DateRef{
			Text:       sentence[loc[0]:loc[1]],
			Normalized: m[2] + "-" + month,
			Precision:  string(model.PrecisionMonth),
		})
		mark(loc)
	}
	for _, loc := range isoDateRe.FindAllStringSubmatchIndex(sentence, -1) {
		if overlaps(loc) {
			continue
		}
		m := isoDateRe.FindStringSubmatch(sentence[loc[0]:loc[1]])
		ref := model.DateRef{Text: sentence[loc[0]:loc[1]]}
		if m[3] != "" {
			ref.Normalized = m[1] + "-" + m[2] + "-" + m[3]
			ref.Precision = string(model.PrecisionExact)
		} else {
			ref.Normalized = m[1] + "-" + m[2]
			ref.Precision = string(model.PrecisionMonth)
		}
		refs = append(refs, ref)
		mark(loc)
	}
	for _, loc := range numericDateRe.FindAllStringSubmatchIndex(sentence, -1) {
		if overlaps(loc) {
			continue
		}
		m := numericDateRe.FindStringSubmatch(sentence[loc[0]:loc[1]])
		refs = append(refs, model.DateRef{
			Text:       sentence[loc[0]:loc[1]],
			Normalized: fmt.Sprintf("%s-%s-%s", m[3], pad2(m[1]), pad2(m[2])),
			Precision:  string(model.PrecisionExact),
		})
		mark(loc)
	}
	for _, loc := range decadeRe.FindAllStringSubmatchIndex(sentence, -1) {
		if overlaps(loc) {
			continue
		}
		m := decadeRe.FindStringSubmatch(sentence[loc[0]:loc[1]])
		refs = append(refs, model.DateRef{
			Text:       sentence[loc[0]:loc[1]],
			Normalized: m[1] + "0",
			Precision:  "decade",
		})
		mark(loc)
	}
	for _, loc := range bareYearRe.FindAllStringSubmatchIndex(sentence, -1) {
		if overlaps(loc) {
			continue
		}
		refs = append(refs, model.DateRef{
			Text:       sentence[loc[0]:loc[1]],
			Normalized: sentence[loc[0]:loc[1]],
			Precision:  string(model.PrecisionYear),
		})
		mark(loc)
	}

	return refs
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
