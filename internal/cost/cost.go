// Package cost tracks API token usage and estimated spend across the
// extraction pipeline.
package cost

import (
	"sync"
)

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates maps model names to pricing.
type Rates map[string]ModelRate

// DefaultRates returns current Anthropic pricing for the models the
// pipeline uses.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001": {
			Input: 0.80, Output: 4.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
	}
}

// Usage is one API call's token counts.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
}

// Estimate computes the USD cost of a call against the known rates.
// Unknown models cost zero.
func (r Rates) Estimate(model string, u Usage) float64 {
	rate, ok := r[model]
	if !ok {
		return 0
	}
	in := (float64(u.InputTokens) / 1e6) * rate.Input
	out := (float64(u.OutputTokens) / 1e6) * rate.Output
	cw := (float64(u.CacheWriteTokens) / 1e6) * rate.Input * rate.CacheWriteMul
	cr := (float64(u.CacheReadTokens) / 1e6) * rate.Input * rate.CacheReadMul
	return in + out + cw + cr
}

// PurposeTotals aggregates spend for one pipeline purpose.
type PurposeTotals struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	USD          float64 `json:"usd"`
}

// Tracker accumulates per-purpose usage across a run. Safe for use from
// concurrent workers.
type Tracker struct {
	mu     sync.Mutex
	rates  Rates
	totals map[string]*PurposeTotals
}

// NewTracker creates a Tracker using the given rates.
func NewTracker(rates Rates) *Tracker {
	return &Tracker{
		rates:  rates,
		totals: make(map[string]*PurposeTotals),
	}
}

// Record adds one call's usage under a purpose such as "extraction" or
// "conflict_resolution".
func (t *Tracker) Record(purpose, model string, u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pt, ok := t.totals[purpose]
	if !ok {
		pt = &PurposeTotals{}
		t.totals[purpose] = pt
	}
	pt.Calls++
	pt.InputTokens += u.InputTokens + u.CacheWriteTokens + u.CacheReadTokens
	pt.OutputTokens += u.OutputTokens
	pt.USD += t.rates.Estimate(model, u)
}

// Totals returns a snapshot of accumulated spend by purpose.
func (t *Tracker) Totals() map[string]PurposeTotals {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]PurposeTotals, len(t.totals))
	for purpose, pt := range t.totals {
		out[purpose] = *pt
	}
	return out
}

// TotalUSD returns the combined spend across all purposes.
func (t *Tracker) TotalUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sum float64
	for _, pt := range t.totals {
		sum += pt.USD
	}
	return sum
}
