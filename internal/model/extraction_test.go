package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result ExtractionResult
		want   float64
	}{
		{
			name: "mean across kinds",
			result: ExtractionResult{
				Dates:  []ExtractedDate{{Confidence: 0.9}, {Confidence: 0.7}},
				People: []ExtractedEntity{{Confidence: 0.8}},
			},
			want: 0.8,
		},
		{
			name: "summary weighted at fixed 0.8",
			result: ExtractionResult{
				Dates:   []ExtractedDate{{Confidence: 0.6}},
				Summary: "a summary",
			},
			want: 0.7,
		},
		{name: "empty result", result: ExtractionResult{}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, tt.result.AggregateConfidence(), 1e-9)
		})
	}
}

func TestPairKey(t *testing.T) {
	t.Parallel()

	lo, hi := PairKey("1925", "1923")
	assert.Equal(t, "1923", lo)
	assert.Equal(t, "1925", hi)

	lo2, hi2 := PairKey("1923", "1925")
	assert.Equal(t, lo, lo2)
	assert.Equal(t, hi, hi2)
}

func TestSourceRef(t *testing.T) {
	t.Parallel()

	src := Source{Type: SourceDocument, ID: "doc-9"}
	assert.Equal(t, "document:doc-9", src.Ref())
}
