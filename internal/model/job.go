package model

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of an extraction job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobPartial    JobStatus = "partial"
)

// SourceType identifies where a job's raw text comes from.
type SourceType string

const (
	SourceWebPage      SourceType = "web_page"
	SourceDocument     SourceType = "document"
	SourceMediaCaption SourceType = "media_caption"
)

// ValidSourceType reports whether s is a known source type.
func ValidSourceType(s SourceType) bool {
	switch s {
	case SourceWebPage, SourceDocument, SourceMediaCaption:
		return true
	}
	return false
}

// Task names the extraction sub-tasks a job may request.
type Task string

const (
	TaskDates    Task = "dates"
	TaskEntities Task = "entities"
	TaskTitle    Task = "title"
	TaskSummary  Task = "summary"
)

// AllTasks is the default full task set, in canonical order.
var AllTasks = []Task{TaskDates, TaskEntities, TaskTitle, TaskSummary}

// TaskSet is an ordered set of extraction tasks.
type TaskSet []Task

// Has reports whether the set contains t.
func (ts TaskSet) Has(t Task) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

// String renders the set as a comma-separated list.
func (ts TaskSet) String() string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// ParseTaskSet parses a comma-separated task list, dropping unknown names.
// An empty input yields the full default task set.
func ParseTaskSet(s string) TaskSet {
	if strings.TrimSpace(s) == "" {
		return TaskSet(AllTasks)
	}
	var ts TaskSet
	for _, part := range strings.Split(s, ",") {
		switch t := Task(strings.TrimSpace(part)); t {
		case TaskDates, TaskEntities, TaskTitle, TaskSummary:
			ts = append(ts, t)
		}
	}
	if len(ts) == 0 {
		return TaskSet(AllTasks)
	}
	return ts
}

// ExtractionJob is one unit of background extraction work. Exactly one job
// row exists per (SourceType, SourceID); re-enqueue returns the existing id.
type ExtractionJob struct {
	ID          string     `json:"id"`
	SourceType  SourceType `json:"source_type"`
	SourceID    string     `json:"source_id"`
	SubjectID   string     `json:"subject_id,omitempty"`
	Tasks       TaskSet    `json:"tasks"`
	Status      JobStatus  `json:"status"`
	Priority    int        `json:"priority"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Result      []byte     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Retryable reports whether a failed attempt may be retried.
func (j *ExtractionJob) Retryable() bool {
	return j.Attempts < j.MaxAttempts
}

// JobCounts is a snapshot of queue depth by status.
type JobCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// QueueStatus is the queue-level status surface.
type QueueStatus struct {
	Running    bool      `json:"running"`
	ActiveJobs int       `json:"active_jobs"`
	Counts     JobCounts `json:"counts"`
}
