package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivist-labs/chronicle/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func pgJobRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "source_type", "source_id", "subject_id", "tasks", "status",
		"priority", "attempts", "max_attempts", "result", "error",
		"created_at", "started_at", "completed_at",
	})
}

func TestPostgresStore_ClaimNextJob_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`UPDATE extraction_jobs SET status = 'processing'`).
		WillReturnError(pgx.ErrNoRows)

	job, err := s.ClaimNextJob(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimNextJob_ReturnsClaimedRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	started := now
	mock.ExpectQuery(`UPDATE extraction_jobs SET status = 'processing'`).
		WillReturnRows(pgJobRows().AddRow(
			"job-1", "web_page", "page-1", "subject-1", "dates,entities", "processing",
			0, 1, 3, []byte(nil), "", now, &started, (*time.Time)(nil),
		))

	job, err := s.ClaimNextJob(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, model.JobProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, model.TaskSet{model.TaskDates, model.TaskEntities}, job.Tasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueJob_New(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM extraction_jobs WHERE source_type = \$1 AND source_id = \$2`).
		WithArgs("web_page", "page-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO extraction_jobs`).
		WithArgs(pgxmock.AnyArg(), "web_page", "page-1", "subject-1", "dates,entities,title,summary", 0, 3, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.EnqueueJob(context.Background(), EnqueueRequest{
		SourceType:  model.SourceWebPage,
		SourceID:    "page-1",
		SubjectID:   "subject-1",
		Tasks:       model.TaskSet(model.AllTasks),
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueJob_FailedReset(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	completed := now
	mock.ExpectQuery(`SELECT .+ FROM extraction_jobs WHERE source_type = \$1 AND source_id = \$2`).
		WithArgs("web_page", "page-1").
		WillReturnRows(pgJobRows().AddRow(
			"job-1", "web_page", "page-1", "subject-1", "", "failed",
			0, 3, 3, []byte(nil), "provider exploded", now, (*time.Time)(nil), &completed,
		))
	mock.ExpectQuery(`UPDATE extraction_jobs\s+SET status = 'pending'`).
		WithArgs("subject-1", "dates,entities,title,summary", 0, 3, "job-1").
		WillReturnRows(pgJobRows().AddRow(
			"job-1", "web_page", "page-1", "subject-1", "dates,entities,title,summary", "pending",
			0, 0, 3, []byte(nil), "", now, (*time.Time)(nil), (*time.Time)(nil),
		))

	job, err := s.EnqueueJob(context.Background(), EnqueueRequest{
		SourceType:  model.SourceWebPage,
		SourceID:    "page-1",
		SubjectID:   "subject-1",
		Tasks:       model.TaskSet(model.AllTasks),
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, model.JobPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAuthorityTier_DefaultForUnknown(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT tier FROM source_authorities`).
		WithArgs("unknown.example").
		WillReturnError(pgx.ErrNoRows)

	tier, err := s.GetAuthorityTier(context.Background(), "unknown.example")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultAuthorityTier, tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveConflict_AlreadyResolved(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE fact_conflicts SET resolved = true`).
		WithArgs("claim_a", "higher authority", "system", "conflict-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.ResolveConflict(context.Background(), "conflict-1", model.ResolutionClaimA, "higher authority", "system")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved conflict not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RequeueStale(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Exhausted stale rows fail terminally; the rest go back to pending.
	mock.ExpectExec(`UPDATE extraction_jobs\s+SET status = 'failed'`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE extraction_jobs SET status = 'pending'`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := s.RequeueStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindConflictByPair_CanonicalOrder(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// (1925, 1923-06) must query with the canonical lo/hi ordering.
	mock.ExpectQuery(`SELECT .+ FROM fact_conflicts`).
		WithArgs("subject-1", "opening", "1923-06", "1925").
		WillReturnError(pgx.ErrNoRows)

	c, err := s.FindConflictByPair(context.Background(), "subject-1", "opening", "1925", "1923-06")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}
