package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNormalizedDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		dateStart string
		precision DatePrecision
		sortKey   int
	}{
		{in: "1923-06-15", dateStart: "1923-06-15", precision: PrecisionExact, sortKey: 19230615},
		{in: "1923-06", dateStart: "1923-06-01", precision: PrecisionMonth, sortKey: 19230615},
		{in: "1923", dateStart: "1923-01-01", precision: PrecisionYear, sortKey: 19230701},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			parsed, err := ParseNormalizedDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.dateStart, parsed.DateStart)
			assert.Equal(t, tt.precision, parsed.Precision)
			assert.Equal(t, tt.in, parsed.Display)
			assert.Equal(t, tt.sortKey, parsed.SortKey)
		})
	}
}

func TestParseNormalizedDateRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "early 1920s", "23-06-15", "1923-6", "1923/06/15"} {
		_, err := ParseNormalizedDate(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestMidpointPaddingInterleavesSensibly(t *testing.T) {
	t.Parallel()

	// A year-only event sorts after the first half of that year's exact
	// events and before the second half.
	year, err := ParseNormalizedDate("1923")
	require.NoError(t, err)
	march, err := ParseNormalizedDate("1923-03-01")
	require.NoError(t, err)
	october, err := ParseNormalizedDate("1923-10-01")
	require.NoError(t, err)

	assert.Greater(t, year.SortKey, march.SortKey)
	assert.Less(t, year.SortKey, october.SortKey)
}

func TestDateSpecificity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, DateSpecificity("1923-06-15"))
	assert.Equal(t, 2, DateSpecificity("1923-06"))
	assert.Equal(t, 1, DateSpecificity("1923"))
	assert.Equal(t, 0, DateSpecificity("192"))
	assert.Equal(t, 0, DateSpecificity("next year"))
}

func TestDateYear(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1923, DateYear("1923-06-15"))
	assert.Equal(t, 1923, DateYear("1923"))
	assert.Equal(t, 0, DateYear("19"))
}
