// Package store persists jobs, sources, extracted facts, timeline entries,
// conflicts, and source authority ratings. Two backends implement the same
// interface: SQLite for single-node deployments and Postgres for servers.
package store

import (
	"context"
	"time"

	"github.com/archivist-labs/chronicle/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// ExtractionFilter specifies criteria for listing stored extractions.
type ExtractionFilter struct {
	SubjectID string               `json:"subject_id,omitempty"`
	FieldName string               `json:"field_name,omitempty"`
	Kind      model.ExtractionKind `json:"kind,omitempty"`
	Status    model.ReviewStatus   `json:"status,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
}

// ConflictFilter specifies criteria for listing conflicts.
type ConflictFilter struct {
	SubjectID       string `json:"subject_id,omitempty"`
	IncludeResolved bool   `json:"include_resolved,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

// EnqueueRequest carries the parameters for creating or refreshing a job.
type EnqueueRequest struct {
	SourceType  model.SourceType
	SourceID    string
	SubjectID   string
	Tasks       model.TaskSet
	Priority    int
	MaxAttempts int
}

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Sources
	UpsertSource(ctx context.Context, src model.Source) error
	GetSource(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.Source, error)

	// Jobs. EnqueueJob is idempotent per (source_type, source_id): an
	// existing pending/processing/completed row is returned unchanged and a
	// failed row is reset to pending with attempts zeroed. ClaimNextJob
	// atomically transitions the highest-priority oldest pending row to
	// processing, incrementing its attempt counter; it returns (nil, nil)
	// when the queue is empty.
	EnqueueJob(ctx context.Context, req EnqueueRequest) (*model.ExtractionJob, error)
	ClaimNextJob(ctx context.Context) (*model.ExtractionJob, error)
	CompleteJob(ctx context.Context, jobID string, status model.JobStatus, result []byte) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
	RequeueJob(ctx context.Context, jobID string, errMsg string) error
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
	GetJob(ctx context.Context, jobID string) (*model.ExtractionJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.ExtractionJob, error)
	CountJobs(ctx context.Context) (model.JobCounts, error)

	// Extractions are never deleted, only status-transitioned.
	InsertExtraction(ctx context.Context, ex model.StoredExtraction) (*model.StoredExtraction, error)
	UpdateExtractionStatus(ctx context.Context, id string, status model.ReviewStatus) error
	ListExtractions(ctx context.Context, filter ExtractionFilter) ([]model.StoredExtraction, error)

	// Timeline
	InsertTimelineEntry(ctx context.Context, entry model.TimelineEntry) (*model.TimelineEntry, error)
	FlagTimelineForReview(ctx context.Context, subjectID, category string) (int, error)
	ListTimeline(ctx context.Context, subjectID string) ([]model.TimelineEntry, error)

	// Conflicts. FindConflictByPair treats the value pair as unordered.
	InsertConflict(ctx context.Context, c model.FactConflict) (*model.FactConflict, error)
	FindConflictByPair(ctx context.Context, subjectID, fieldName, valueA, valueB string) (*model.FactConflict, error)
	GetConflict(ctx context.Context, id string) (*model.FactConflict, error)
	ResolveConflict(ctx context.Context, id string, res model.Resolution, notes, resolvedBy string) error
	ListConflicts(ctx context.Context, filter ConflictFilter) ([]model.FactConflict, error)

	// Authorities. Unknown domains resolve to model.DefaultAuthorityTier.
	UpsertAuthority(ctx context.Context, domain string, tier int, notes string) error
	GetAuthorityTier(ctx context.Context, domain string) (int, error)
	ListAuthorities(ctx context.Context) ([]model.SourceAuthority, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
