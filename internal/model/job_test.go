package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTaskSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want TaskSet
	}{
		{name: "empty means all", in: "", want: TaskSet(AllTasks)},
		{name: "whitespace means all", in: "  ", want: TaskSet(AllTasks)},
		{name: "subset", in: "dates,summary", want: TaskSet{TaskDates, TaskSummary}},
		{name: "spaces tolerated", in: " dates , entities ", want: TaskSet{TaskDates, TaskEntities}},
		{name: "unknown names dropped", in: "dates,sentiment", want: TaskSet{TaskDates}},
		{name: "only unknown falls back to all", in: "sentiment", want: TaskSet(AllTasks)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseTaskSet(tt.in))
		})
	}
}

func TestTaskSetRoundTrip(t *testing.T) {
	t.Parallel()

	ts := TaskSet{TaskDates, TaskTitle}
	assert.Equal(t, "dates,title", ts.String())
	assert.Equal(t, ts, ParseTaskSet(ts.String()))
	assert.True(t, ts.Has(TaskDates))
	assert.False(t, ts.Has(TaskSummary))
}

func TestJobRetryable(t *testing.T) {
	t.Parallel()

	j := &ExtractionJob{Attempts: 2, MaxAttempts: 3}
	assert.True(t, j.Retryable())
	j.Attempts = 3
	assert.False(t, j.Retryable())
}

func TestValidSourceType(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidSourceType(SourceWebPage))
	assert.True(t, ValidSourceType(SourceDocument))
	assert.True(t, ValidSourceType(SourceMediaCaption))
	assert.False(t, ValidSourceType("tweet"))
}
