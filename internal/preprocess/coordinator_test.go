package preprocess

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivist-labs/chronicle/internal/config"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/pkg/nlp"
)

// fakeNLPClient implements nlp.Client for coordinator tests.
type fakeNLPClient struct {
	healthErr      error
	healthResp     *nlp.HealthResponse
	preprocessErr  error
	preprocessResp *nlp.PreprocessResponse
	healthCalls    int
	preprocessCalls int
}

func (f *fakeNLPClient) Health(ctx context.Context) (*nlp.HealthResponse, error) {
	f.healthCalls++
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	if f.healthResp != nil {
		return f.healthResp, nil
	}
	return &nlp.HealthResponse{Status: "healthy", SpacyModel: "en_core_web_sm", Version: "1.0.0"}, nil
}

func (f *fakeNLPClient) Preprocess(ctx context.Context, req nlp.PreprocessRequest) (*nlp.PreprocessResponse, error) {
	f.preprocessCalls++
	if f.preprocessErr != nil {
		return nil, f.preprocessErr
	}
	return f.preprocessResp, nil
}

func (f *fakeNLPClient) VerbCategories(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{"opening": 0.95}, nil
}

func testNLPConfig() config.NLPConfig {
	return config.NLPConfig{
		BaseURL:            "http://127.0.0.1:8100",
		StartupTimeoutSecs: 1,
		RequestTimeoutSecs: 1,
		MaxSentences:       100,
	}
}

func TestCoordinatorBecomesReadyOnHealthyProbe(t *testing.T) {
	t.Parallel()

	client := &fakeNLPClient{}
	c := NewCoordinator(testNLPConfig(), client)

	assert.Equal(t, StateUninitialized, c.State())
	assert.True(t, c.Available(context.Background()))
	assert.Equal(t, StateReady, c.State())

	// Subsequent calls don't probe again.
	assert.True(t, c.Available(context.Background()))
	assert.Equal(t, 1, client.healthCalls)
}

func TestCoordinatorDegradesWithoutLoadedModel(t *testing.T) {
	t.Parallel()

	// The helper answers but reports no model: not usable for annotation.
	client := &fakeNLPClient{healthResp: &nlp.HealthResponse{Status: "healthy"}}
	c := NewCoordinator(testNLPConfig(), client)

	assert.False(t, c.Available(context.Background()))
	assert.Equal(t, StateDegraded, c.State())
}

func TestCoordinatorDegradesWhenHelperUnreachable(t *testing.T) {
	t.Parallel()

	client := &fakeNLPClient{healthErr: errors.New("connection refused")}
	c := NewCoordinator(testNLPConfig(), client)

	assert.False(t, c.Available(context.Background()))
	assert.Equal(t, StateDegraded, c.State())

	// Degraded is permanent: no re-probe on later calls.
	assert.False(t, c.Available(context.Background()))
	assert.Equal(t, 1, client.healthCalls)
}

func TestCoordinatorDegradedPreprocessSkipsNetwork(t *testing.T) {
	t.Parallel()

	client := &fakeNLPClient{healthErr: errors.New("connection refused")}
	c := NewCoordinator(testNLPConfig(), client)

	result := c.Preprocess(context.Background(), "The hall opened in June 1923.", "")
	require.NotNil(t, result)
	assert.True(t, result.Degraded)
	assert.Equal(t, 0, client.preprocessCalls)
	require.Len(t, result.Sentences, 1)
	assert.Equal(t, model.RelevancyContext, result.Sentences[0].Relevancy)
}

func TestCoordinatorPerCallFallbackKeepsReady(t *testing.T) {
	t.Parallel()

	client := &fakeNLPClient{preprocessErr: errors.New("boom")}
	c := NewCoordinator(testNLPConfig(), client)

	result := c.Preprocess(context.Background(), "Some text here.", "")
	require.NotNil(t, result)
	assert.True(t, result.Degraded)

	// A per-call failure must not poison the coordinator state.
	assert.Equal(t, StateReady, c.State())
	assert.True(t, c.Available(context.Background()))
}

func TestCoordinatorMapsHelperResponse(t *testing.T) {
	t.Parallel()

	client := &fakeNLPClient{
		preprocessResp: &nlp.PreprocessResponse{
			WordCount: 24,
			Sentences: []nlp.SentenceAnnotation{
				{
					Text:               "The hall opened in June 1923.",
					Index:              0,
					IsTimelineRelevant: true,
					RelevanceScore:     0.95,
					Verbs:              []nlp.VerbAnnotation{{Text: "opened", Lemma: "open", Category: "opening"}},
					Dates:              []nlp.DateAnnotation{{Text: "June 1923", Normalized: "1923-06", Precision: "month"}},
				},
				{
					Text:           "Something may have happened around then.",
					Index:          1,
					RelevanceScore: 0.4,
				},
				{
					Text:     "Clara Jones managed the venue with Clara  Jones listed as owner.",
					Index:    2,
					Entities: []nlp.EntityAnnotation{{Text: "Clara Jones", Label: "PERSON"}, {Text: "Clara  Jones", Label: "PERSON"}},
				},
				{
					Text:  "The weather was mild.",
					Index: 3,
				},
			},
		},
	}
	c := NewCoordinator(testNLPConfig(), client)

	result := c.Preprocess(context.Background(), "ignored, helper responds", "1923-06-20")
	require.NotNil(t, result)
	assert.False(t, result.Degraded)
	require.Len(t, result.Sentences, 4)

	assert.Equal(t, model.RelevancyTimeline, result.Sentences[0].Relevancy)
	assert.True(t, result.Sentences[0].HasDate)
	assert.Equal(t, model.RelevancyTimelinePossible, result.Sentences[1].Relevancy)
	assert.Equal(t, model.RelevancyProfile, result.Sentences[2].Relevancy)
	assert.True(t, result.Sentences[2].HasPerson)
	assert.Equal(t, model.RelevancyContext, result.Sentences[3].Relevancy)

	// Mentions with differing whitespace dedupe to one candidate.
	require.Len(t, result.People, 1)
	assert.Equal(t, "Clara Jones", result.People[0].Name)
	assert.Equal(t, "clara jones", result.People[0].NormalizedName)
	assert.Equal(t, 2, result.People[0].Mentions)

	assert.Equal(t, 1, result.Stats.TimelineSentences)
	assert.Equal(t, 24, result.Stats.TotalWords)
	assert.Equal(t, 2, result.Stats.EntityCounts["PERSON"])
	assert.Contains(t, result.Context, "The hall opened in June 1923.")
	assert.NotContains(t, result.Context, "The weather was mild.")
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Clara Jones", "clara jones"},
		{"  CLARA   JONES  ", "clara jones"},
		{"Clara Jones,", "clara jones"},
		{"J. P. Morgan", "j p morgan"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestLexiconMatchVerbs(t *testing.T) {
	t.Parallel()

	lexicon, err := DefaultLexicon()
	require.NoError(t, err)

	matches := lexicon.MatchVerbs("The theater was demolished and later rebuilt.")
	require.Len(t, matches, 2)
	assert.Equal(t, "demolition", matches[0].Category)
	assert.Equal(t, "demolish", matches[0].Lemma)
	assert.Equal(t, "renovation", matches[1].Category)

	assert.Equal(t, 1.0, lexicon.CategoryWeight("build_date"))
	assert.Equal(t, 0.0, lexicon.CategoryWeight("unknown"))
}
