package model

// Relevancy classifies what a sentence is likely useful for downstream.
type Relevancy string

const (
	RelevancyTimeline         Relevancy = "timeline"
	RelevancyTimelinePossible Relevancy = "timeline_possible"
	RelevancyProfile          Relevancy = "profile"
	RelevancyContext          Relevancy = "context"
)

// VerbMatch is a timeline-relevant verb found in a sentence.
type VerbMatch struct {
	Text     string `json:"text"`
	Lemma    string `json:"lemma"`
	Category string `json:"category"`
	Position int    `json:"position"`
}

// EntitySpan is a named-entity span within a sentence.
type EntitySpan struct {
	Text  string `json:"text"`
	Label string `json:"label"` // PERSON, ORG, DATE, GPE, FAC, ...
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// DateRef is a date reference found in a sentence, with best-effort
// normalization.
type DateRef struct {
	Text       string `json:"text"`
	Normalized string `json:"normalized,omitempty"`
	Precision  string `json:"precision"` // exact, month, year, decade, approximate
}

// AnnotatedSentence is one sentence with its linguistic annotations.
type AnnotatedSentence struct {
	Text       string       `json:"text"`
	Index      int          `json:"index"`
	Relevancy  Relevancy    `json:"relevancy"`
	Confidence float64      `json:"confidence"`
	Verbs      []VerbMatch  `json:"verbs,omitempty"`
	Entities   []EntitySpan `json:"entities,omitempty"`
	DateRefs   []DateRef    `json:"date_refs,omitempty"`
	HasDate    bool         `json:"has_date"`
	HasPerson  bool         `json:"has_person"`
	HasOrg     bool         `json:"has_org"`
}

// ProfileCandidate is a person or organization repeatedly mentioned in the
// text, with a normalized name for deduplication.
type ProfileCandidate struct {
	Name           string   `json:"name"`
	NormalizedName string   `json:"normalized_name"`
	Role           string   `json:"role,omitempty"`
	Mentions       int      `json:"mentions"`
	SentenceIdx    []int    `json:"sentence_indices,omitempty"`
	Contexts       []string `json:"contexts,omitempty"`
}

// DocumentStats summarizes a preprocessed document.
type DocumentStats struct {
	TotalSentences    int            `json:"total_sentences"`
	TotalWords        int            `json:"total_words"`
	TimelineSentences int            `json:"timeline_sentences"`
	EntityCounts      map[string]int `json:"entity_counts,omitempty"`
	VerbCounts        map[string]int `json:"verb_counts,omitempty"`
}

// PreprocessingResult is the (always well-formed) output of the
// preprocessing coordinator. Degraded mode still populates every field:
// all sentences carry RelevancyContext and a fixed low confidence.
type PreprocessingResult struct {
	Sentences     []AnnotatedSentence `json:"sentences"`
	People        []ProfileCandidate  `json:"people"`
	Organizations []ProfileCandidate  `json:"organizations"`
	Stats         DocumentStats       `json:"stats"`
	Context       string              `json:"context"` // condensed prompt context
	Degraded      bool                `json:"degraded"`
}
