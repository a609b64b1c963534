package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivist-labs/chronicle/internal/model"
)

func TestFallbackPreprocess(t *testing.T) {
	t.Parallel()

	lexicon, err := DefaultLexicon()
	require.NoError(t, err)

	text := "The concert hall opened in June 1923. It was demolished on March 3, 1960. Nothing else is known."
	result := fallbackPreprocess(text, lexicon, 100)

	assert.True(t, result.Degraded)
	require.Len(t, result.Sentences, 3)

	// Every sentence carries the context relevancy at fixed low confidence.
	for _, s := range result.Sentences {
		assert.Equal(t, model.RelevancyContext, s.Relevancy)
		assert.Equal(t, fallbackConfidence, s.Confidence)
	}

	// Annotations still land.
	first := result.Sentences[0]
	require.Len(t, first.Verbs, 1)
	assert.Equal(t, "opening", first.Verbs[0].Category)
	require.Len(t, first.DateRefs, 1)
	assert.Equal(t, "1923-06", first.DateRefs[0].Normalized)
	assert.True(t, first.HasDate)

	second := result.Sentences[1]
	require.Len(t, second.DateRefs, 1)
	assert.Equal(t, "1960-03-03", second.DateRefs[0].Normalized)

	assert.Equal(t, 3, result.Stats.TotalSentences)
	assert.Equal(t, 1, result.Stats.VerbCounts["opening"])
	assert.Equal(t, 1, result.Stats.VerbCounts["demolition"])
	assert.NotEmpty(t, result.Context)
}

func TestFallbackRespectsMaxSentences(t *testing.T) {
	t.Parallel()

	text := "One. Two. Three. Four. Five."
	result := fallbackPreprocess(text, nil, 2)
	assert.Len(t, result.Sentences, 2)
}

func TestFallbackTruncatesContext(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 1000)
	result := fallbackPreprocess(text, nil, 10)
	assert.LessOrEqual(t, len(result.Context), fallbackContextLimit)
}

func TestFindDateRefs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sentence  string
		want      string
		precision string
	}{
		{name: "month day year", sentence: "It opened on June 15, 1923 to great fanfare.", want: "1923-06-15", precision: "exact"},
		{name: "ordinal day", sentence: "Dedicated March 3rd, 1960.", want: "1960-03-03", precision: "exact"},
		{name: "month year", sentence: "Renovations began in October 1947.", want: "1947-10", precision: "month"},
		{name: "abbreviated month", sentence: "Listed in Sept 1988.", want: "1988-09", precision: "month"},
		{name: "iso date", sentence: "Filed 1923-06-15 per record.", want: "1923-06-15", precision: "exact"},
		{name: "iso month", sentence: "Filed 1923-06 per record.", want: "1923-06", precision: "month"},
		{name: "numeric slash", sentence: "Recorded 6/15/1923 in the ledger.", want: "1923-06-15", precision: "exact"},
		{name: "decade", sentence: "Popular through the 1950s.", want: "1950", precision: "decade"},
		{name: "bare year", sentence: "Completed in 1923.", want: "1923", precision: "year"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			refs := findDateRefs(tt.sentence)
			require.NotEmpty(t, refs, "expected a date ref in %q", tt.sentence)
			assert.Equal(t, tt.want, refs[0].Normalized)
			assert.Equal(t, tt.precision, refs[0].Precision)
		})
	}
}

func TestFindDateRefsNoDoubleCount(t *testing.T) {
	t.Parallel()

	// The year inside "June 15, 1923" must not also match as a bare year.
	refs := findDateRefs("It opened on June 15, 1923.")
	require.Len(t, refs, 1)
	assert.Equal(t, "1923-06-15", refs[0].Normalized)
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	out := splitSentences("First sentence. Second one! Third?\nFourth without terminator", 0)
	require.Len(t, out, 4)
	assert.Equal(t, "First sentence", out[0])
	assert.Equal(t, "Fourth without terminator", out[3])
}
