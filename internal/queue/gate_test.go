package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivist-labs/chronicle/internal/config"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testGateConfig() config.GateConfig {
	return config.GateConfig{AutoApprove: 0.85, Review: 0.5}
}

func testJob() *model.ExtractionJob {
	return &model.ExtractionJob{
		ID:          "job-1",
		SourceType:  model.SourceWebPage,
		SourceID:    "src-1",
		SubjectID:   "subj-1",
		Tasks:       model.TaskSet(model.AllTasks),
		MaxAttempts: 3,
	}
}

func resultWith(dates ...model.ExtractedDate) *model.ExtractionResult {
	return &model.ExtractionResult{
		Dates:    dates,
		Provider: "anthropic",
		Model:    "claude-haiku-4-5-20251001",
	}
}

func TestGateDateBands(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	g := NewGate(st, testGateConfig())

	outcome, err := g.Apply(ctx, testJob(), nil, resultWith(
		model.ExtractedDate{RawText: "June 1923", Normalized: "1923-06", Category: "opening", Confidence: 0.95},
		model.ExtractedDate{RawText: "around 1950", Normalized: "1950", Category: "renovation", Confidence: 0.6},
		model.ExtractedDate{RawText: "maybe 1960", Normalized: "1960", Category: "closure", Confidence: 0.3},
	))
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Approved)
	assert.Equal(t, 1, outcome.Pending)
	assert.Equal(t, 1, outcome.Discarded)
	assert.Equal(t, 1, outcome.TimelineEntries)
	assert.Equal(t, 2, outcome.Stored())

	stored, err := st.ListExtractions(ctx, store.ExtractionFilter{SubjectID: "subj-1"})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	entries, err := st.ListTimeline(ctx, "subj-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "opening", entries[0].Category)
	assert.Equal(t, "1923-06", entries[0].Display)
	assert.Equal(t, model.PrecisionMonth, entries[0].Precision)
	assert.Equal(t, 19230615, entries[0].SortKey)
	assert.Equal(t, "web_page:src-1", entries[0].SourceRef)
}

func TestGateBoundaryConfidences(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	g := NewGate(st, testGateConfig())

	// Thresholds are inclusive: exactly 0.85 auto-approves, exactly 0.5
	// lands in review, just under 0.5 is discarded.
	outcome, err := g.Apply(ctx, testJob(), nil, resultWith(
		model.ExtractedDate{RawText: "June 1923", Normalized: "1923-06-15", Category: "opening", Confidence: 0.85},
		model.ExtractedDate{RawText: "1950", Normalized: "1950", Category: "renovation", Confidence: 0.5},
		model.ExtractedDate{RawText: "1960", Normalized: "1960", Category: "closure", Confidence: 0.4999},
	))
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Approved)
	assert.Equal(t, 1, outcome.Pending)
	assert.Equal(t, 1, outcome.Discarded)

	approved, err := st.ListExtractions(ctx, store.ExtractionFilter{SubjectID: "subj-1", Status: model.ReviewApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "1923-06-15", approved[0].Value)

	pending, err := st.ListExtractions(ctx, store.ExtractionFilter{SubjectID: "subj-1", Status: model.ReviewPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "1950", pending[0].Value)
}

func TestGateUnparseableDateNeverAutoApproves(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	g := NewGate(st, testGateConfig())

	outcome, err := g.Apply(ctx, testJob(), nil, resultWith(
		model.ExtractedDate{RawText: "the early twenties", Normalized: "early 1920s", Category: "opening", Confidence: 0.9},
	))
	require.NoError(t, err)

	assert.Equal(t, 0, outcome.Approved)
	assert.Equal(t, 1, outcome.Pending)
	assert.Equal(t, 0, outcome.TimelineEntries)

	stored, err := st.ListExtractions(ctx, store.ExtractionFilter{SubjectID: "subj-1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.ReviewPending, stored[0].Status)
}

func TestGateNoSubjectSkipsTimeline(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	g := NewGate(st, testGateConfig())

	job := testJob()
	job.SubjectID = ""
	outcome, err := g.Apply(context.Background(), job, nil, resultWith(
		model.ExtractedDate{RawText: "June 1923", Normalized: "1923-06", Category: "opening", Confidence: 0.95},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Approved)
	assert.Equal(t, 0, outcome.TimelineEntries)
}

func TestGateEntitiesAndSummary(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	g := NewGate(st, testGateConfig())

	result := &model.ExtractionResult{
		People: []model.ExtractedEntity{
			{Name: "Clara Jones", Role: "architect", Confidence: 0.9},
			{Name: "Unknown Person", Confidence: 0.2},
		},
		Organizations: []model.ExtractedEntity{
			{Name: "Jones & Sons", Confidence: 0.7},
		},
		Summary:  "A concert hall with a long history.",
		Provider: "anthropic",
		Model:    "claude-haiku-4-5-20251001",
	}

	outcome, err := g.Apply(ctx, testJob(), nil, result)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Approved)
	// Organization at 0.7 and summary at its fixed 0.8 both land in review.
	assert.Equal(t, 2, outcome.Pending)
	assert.Equal(t, 1, outcome.Discarded)

	people, err := st.ListExtractions(ctx, store.ExtractionFilter{SubjectID: "subj-1", Kind: model.KindPerson})
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "architect", people[0].FieldName)
	assert.Equal(t, "Clara Jones", people[0].Value)

	summaries, err := st.ListExtractions(ctx, store.ExtractionFilter{SubjectID: "subj-1", Kind: model.KindSummary})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, model.ReviewPending, summaries[0].Status)
}

func TestGateFillsMissingSourceTitle(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	g := NewGate(st, testGateConfig())

	src := model.Source{Type: model.SourceWebPage, ID: "src-1", Text: "text"}
	require.NoError(t, st.UpsertSource(ctx, src))

	result := resultWith()
	result.Title = "Grand Hall History"
	_, err := g.Apply(ctx, testJob(), &src, result)
	require.NoError(t, err)

	got, err := st.GetSource(ctx, model.SourceWebPage, "src-1")
	require.NoError(t, err)
	assert.Equal(t, "Grand Hall History", got.Title)

	// An existing title is never overwritten.
	result.Title = "Different Title"
	_, err = g.Apply(ctx, testJob(), got, result)
	require.NoError(t, err)

	again, err := st.GetSource(ctx, model.SourceWebPage, "src-1")
	require.NoError(t, err)
	assert.Equal(t, "Grand Hall History", again.Title)
}
