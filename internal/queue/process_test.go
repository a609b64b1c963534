package queue

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivist-labs/chronicle/internal/extract"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/resilience"
	"github.com/archivist-labs/chronicle/internal/store"
)

type fakePre struct {
	result *model.PreprocessingResult
	calls  atomic.Int32
}

func (f *fakePre) Preprocess(ctx context.Context, text, articleDate string) *model.PreprocessingResult {
	f.calls.Add(1)
	if f.result != nil {
		return f.result
	}
	return &model.PreprocessingResult{Degraded: true, Context: text}
}

type fakeProvider struct {
	result *model.ExtractionResult
	err    error
	calls  atomic.Int32
	panics bool
	block  chan struct{}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Extract(ctx context.Context, req extract.Request) (*model.ExtractionResult, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("provider exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeDetector struct {
	subjects []string
}

func (f *fakeDetector) DetectSubject(ctx context.Context, subjectID string) ([]model.FactConflict, error) {
	f.subjects = append(f.subjects, subjectID)
	return nil, nil
}

const testText = "The concert hall opened in June 1923 and stood for decades before closing."

func seedSource(t *testing.T, st store.Store, text string) {
	t.Helper()
	require.NoError(t, st.UpsertSource(context.Background(), model.Source{
		Type: model.SourceWebPage,
		ID:   "src-1",
		Text: text,
	}))
}

func newProcessor(st store.Store, pre Preprocessor, provider extract.Provider, detector ConflictDetector) *Processor {
	return NewProcessor(st, pre, provider, NewGate(st, testGateConfig()), detector, 50)
}

func TestProcessCompletesJob(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seedSource(t, st, testText)

	pre := &fakePre{}
	detector := &fakeDetector{}
	provider := &fakeProvider{result: &model.ExtractionResult{
		Dates:    []model.ExtractedDate{{RawText: "June 1923", Normalized: "1923-06", Category: "opening", Confidence: 0.95}},
		Provider: "fake",
		Model:    "m",
	}}

	p := newProcessor(st, pre, provider, detector)
	payload, status, err := p.Process(context.Background(), testJob())
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, status)
	assert.Equal(t, int32(1), pre.calls.Load())
	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, []string{"subj-1"}, detector.subjects)
	assert.Contains(t, string(payload), `"aggregate_confidence":0.95`)
	assert.Contains(t, string(payload), `"degraded_preprocessing":true`)
}

func TestProcessMissingSourceIsPermanent(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	p := newProcessor(st, &fakePre{}, &fakeProvider{}, nil)

	_, _, err := p.Process(context.Background(), testJob())
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
}

func TestProcessShortTextIsPermanent(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seedSource(t, st, "too short")

	provider := &fakeProvider{}
	p := newProcessor(st, &fakePre{}, provider, nil)

	_, _, err := p.Process(context.Background(), testJob())
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestProcessProviderErrorPassesThrough(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seedSource(t, st, testText)

	transient := resilience.NewTransientError(assert.AnError, 503)
	p := newProcessor(st, &fakePre{}, &fakeProvider{err: transient}, nil)

	_, _, err := p.Process(context.Background(), testJob())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestProcessNothingStoredIsPartial(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seedSource(t, st, testText)

	provider := &fakeProvider{result: &model.ExtractionResult{
		Dates:    []model.ExtractedDate{{RawText: "maybe", Normalized: "1960", Category: "closure", Confidence: 0.2}},
		Provider: "fake",
		Model:    "m",
	}}
	p := newProcessor(st, &fakePre{}, provider, nil)

	payload, status, err := p.Process(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, model.JobPartial, status)
	assert.Contains(t, string(payload), `"discarded":1`)
}

func TestProcessLongTextAccepted(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seedSource(t, st, strings.Repeat("history ", 50))

	p := newProcessor(st, &fakePre{}, &fakeProvider{result: &model.ExtractionResult{Provider: "fake", Model: "m"}}, nil)
	_, status, err := p.Process(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, model.JobPartial, status)
}
