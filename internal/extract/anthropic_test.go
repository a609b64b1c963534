package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivist-labs/chronicle/internal/config"
	"github.com/archivist-labs/chronicle/internal/cost"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/resilience"
	"github.com/archivist-labs/chronicle/pkg/anthropic"
)

// fakeAnthropic implements anthropic.Client, returning canned responses in
// sequence.
type fakeAnthropic struct {
	responses []*anthropic.MessageResponse
	errs      []error
	calls     int
	lastReq   anthropic.MessageRequest
}

func (f *fakeAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := f.calls
	f.calls++
	f.lastReq = req
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 1200, OutputTokens: 180},
	}
}

func testAnthropicConfig() config.AnthropicConfig {
	return config.AnthropicConfig{
		ExtractModel:     "claude-haiku-4-5-20251001",
		MaxTokens:        2048,
		TimeoutSecs:      5,
		RequestsPerMin:   6000,
		CircuitThreshold: 5,
	}
}

func testRequest() Request {
	return Request{
		Source: &model.Source{Type: model.SourceWebPage, ID: "p1", Text: "The hall opened in June 1923."},
		Tasks:  model.TaskSet{model.TaskDates},
	}
}

func TestAnthropicProviderExtract(t *testing.T) {
	t.Parallel()

	client := &fakeAnthropic{responses: []*anthropic.MessageResponse{
		textResponse(`{"dates":[{"raw_text":"June 1923","normalized":"1923-06","category":"opening","confidence":0.92}]}`),
	}}
	tracker := cost.NewTracker(cost.DefaultRates())
	p := NewAnthropicProvider(client, testAnthropicConfig(), tracker)

	result, err := p.Extract(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, result.Dates, 1)
	assert.Equal(t, "anthropic", result.Provider)
	assert.Equal(t, "claude-haiku-4-5-20251001", result.Model)

	// The system prompt carries a cache breakpoint.
	require.Len(t, client.lastReq.System, 1)
	require.NotNil(t, client.lastReq.System[0].CacheControl)
	assert.Equal(t, "1h", client.lastReq.System[0].CacheControl.TTL)

	totals := tracker.Totals()
	require.Contains(t, totals, "extraction")
	assert.Equal(t, 1, totals["extraction"].Calls)
	assert.Greater(t, totals["extraction"].USD, 0.0)
}

func TestAnthropicProviderRetriesTransient(t *testing.T) {
	t.Parallel()

	client := &fakeAnthropic{
		errs: []error{resilience.NewTransientError(assert.AnError, 529)},
		responses: []*anthropic.MessageResponse{
			nil,
			textResponse(`{"dates":[]}`),
		},
	}
	p := NewAnthropicProvider(client, testAnthropicConfig(), nil)
	p.retry.InitialBackoff = time.Millisecond
	p.retry.MaxBackoff = time.Millisecond

	result, err := p.Extract(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, 2, client.calls)
}

func TestAnthropicProviderPermanentFailureNoRetry(t *testing.T) {
	t.Parallel()

	client := &fakeAnthropic{errs: []error{resilience.NewPermanentError(assert.AnError)}}
	p := NewAnthropicProvider(client, testAnthropicConfig(), nil)

	_, err := p.Extract(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Equal(t, 1, client.calls)
}

func TestAnthropicProviderUnparseableIsPermanent(t *testing.T) {
	t.Parallel()

	client := &fakeAnthropic{responses: []*anthropic.MessageResponse{textResponse("no json here")}}
	p := NewAnthropicProvider(client, testAnthropicConfig(), nil)

	_, err := p.Extract(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	p := NewAnthropicProvider(&fakeAnthropic{responses: []*anthropic.MessageResponse{textResponse("{}")}}, testAnthropicConfig(), nil)
	r.Register(p)

	got, err := r.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, []string{"anthropic"}, r.Names())

	_, err = r.Get("missing")
	assert.Error(t, err)
}
