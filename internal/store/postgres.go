package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/archivist-labs/chronicle/internal/db"
	"github.com/archivist-labs/chronicle/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest store operations in the poll loop.
var preparedStatements = map[string]string{
	"claim_next_job": `UPDATE extraction_jobs SET status = 'processing', attempts = attempts + 1, started_at = now()
		WHERE id = (SELECT id FROM extraction_jobs WHERE status = 'pending' ORDER BY priority DESC, created_at ASC, id ASC LIMIT 1 FOR UPDATE SKIP LOCKED)
		RETURNING id, source_type, source_id, subject_id, tasks, status, priority, attempts, max_attempts, result, error, created_at, started_at, completed_at`,
	"count_jobs": `SELECT status, COUNT(*) FROM extraction_jobs GROUP BY status`,
	"get_source": `SELECT source_type, source_id, subject_id, title, body, domain, article_date, created_at FROM sources WHERE source_type = $1 AND source_id = $2`,
	"get_authority_tier": `SELECT tier FROM source_authorities WHERE domain = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	source_type  TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	subject_id   TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	domain       TEXT NOT NULL DEFAULT '',
	article_date TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source_type, source_id)
);

CREATE TABLE IF NOT EXISTS extraction_jobs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_type  TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	subject_id   TEXT NOT NULL DEFAULT '',
	tasks        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	priority     INTEGER NOT NULL DEFAULT 0,
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	result       JSONB,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	UNIQUE (source_type, source_id)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON extraction_jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON extraction_jobs(status, priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS extractions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject_id  TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	field_name  TEXT NOT NULL DEFAULT '',
	raw_text    TEXT NOT NULL DEFAULT '',
	value       TEXT NOT NULL DEFAULT '',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	provider    TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extractions_subject ON extractions(subject_id, field_name);
CREATE INDEX IF NOT EXISTS idx_extractions_status ON extractions(status);

CREATE TABLE IF NOT EXISTS timeline_entries (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject_id   TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	date_start   TEXT NOT NULL,
	precision    TEXT NOT NULL DEFAULT 'exact',
	display      TEXT NOT NULL DEFAULT '',
	sort_key     INTEGER NOT NULL DEFAULT 0,
	source_type  TEXT NOT NULL DEFAULT '',
	source_ref   TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	needs_review BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_timeline_subject ON timeline_entries(subject_id, sort_key);

CREATE TABLE IF NOT EXISTS fact_conflicts (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject_id    TEXT NOT NULL,
	conflict_type TEXT NOT NULL DEFAULT 'date_mismatch',
	field_name    TEXT NOT NULL DEFAULT '',
	claim_a       JSONB NOT NULL,
	claim_b       JSONB NOT NULL,
	value_lo      TEXT NOT NULL,
	value_hi      TEXT NOT NULL,
	resolved      BOOLEAN NOT NULL DEFAULT false,
	resolution    TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	resolved_by   TEXT NOT NULL DEFAULT '',
	resolved_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conflicts_subject ON fact_conflicts(subject_id, resolved);
CREATE INDEX IF NOT EXISTS idx_conflicts_pair ON fact_conflicts(subject_id, field_name, value_lo, value_hi);

CREATE TABLE IF NOT EXISTS source_authorities (
	domain     TEXT PRIMARY KEY,
	tier       INTEGER NOT NULL DEFAULT 3,
	notes      TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Sources

func (s *PostgresStore) UpsertSource(ctx context.Context, src model.Source) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sources (source_type, source_id, subject_id, title, body, domain, article_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (source_type, source_id) DO UPDATE SET
		   subject_id = $3, title = $4, body = $5, domain = $6, article_date = $7`,
		string(src.Type), src.ID, src.SubjectID, src.Title, src.Text, src.Domain, src.ArticleDate, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: upsert source")
}

func (s *PostgresStore) GetSource(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.Source, error) {
	var src model.Source
	err := s.pool.QueryRow(ctx,
		`SELECT source_type, source_id, subject_id, title, body, domain, article_date, created_at
		 FROM sources WHERE source_type = $1 AND source_id = $2`,
		string(sourceType), sourceID,
	).Scan(&src.Type, &src.ID, &src.SubjectID, &src.Title, &src.Text, &src.Domain, &src.ArticleDate, &src.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get source %s:%s", sourceType, sourceID)
	}
	return &src, nil
}

// Jobs

const pgJobColumns = `id, source_type, source_id, subject_id, tasks, status, priority, attempts, max_attempts, result, error, created_at, started_at, completed_at`

func (s *PostgresStore) EnqueueJob(ctx context.Context, req EnqueueRequest) (*model.ExtractionJob, error) {
	existing, err := s.getJobBySource(ctx, req.SourceType, req.SourceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != model.JobFailed {
			return existing, nil
		}
		// Re-enqueue of a failed job resets it in place.
		row := s.pool.QueryRow(ctx,
			`UPDATE extraction_jobs
			 SET status = 'pending', subject_id = $1, tasks = $2, priority = $3, max_attempts = $4,
			     attempts = 0, result = NULL, error = '', started_at = NULL, completed_at = NULL
			 WHERE id = $5
			 RETURNING `+pgJobColumns,
			req.SubjectID, req.Tasks.String(), req.Priority, req.MaxAttempts, existing.ID,
		)
		job, err := scanPGJob(row)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: reset failed job %s", existing.ID)
		}
		return job, nil
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO extraction_jobs (id, source_type, source_id, subject_id, tasks, status, priority, attempts, max_attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'pending', $6, 0, $7, $8)`,
		id, string(req.SourceType), req.SourceID, req.SubjectID, req.Tasks.String(), req.Priority, req.MaxAttempts, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.ExtractionJob{
		ID:          id,
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
		SubjectID:   req.SubjectID,
		Tasks:       req.Tasks,
		Status:      model.JobPending,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
		CreatedAt:   now,
	}, nil
}

func (s *PostgresStore) ClaimNextJob(ctx context.Context) (*model.ExtractionJob, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE extraction_jobs SET status = 'processing', attempts = attempts + 1, started_at = now()
		 WHERE id = (SELECT id FROM extraction_jobs WHERE status = 'pending' ORDER BY priority DESC, created_at ASC, id ASC LIMIT 1 FOR UPDATE SKIP LOCKED)
		 RETURNING `+pgJobColumns,
	)
	job, err := scanPGJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: claim next job")
	}
	return job, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, status model.JobStatus, result []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_jobs SET status = $1, result = $2, error = '', completed_at = now() WHERE id = $3`,
		string(status), result, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_jobs SET status = 'failed', error = $1, completed_at = now() WHERE id = $2`,
		errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) RequeueJob(ctx context.Context, jobID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_jobs SET status = 'pending', error = $1, started_at = NULL WHERE id = $2`,
		errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: requeue job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	// A stale row already on its last attempt has no retry budget left;
	// re-pending it would let the next claim push attempts past the cap.
	failed, err := s.pool.Exec(ctx,
		`UPDATE extraction_jobs
		 SET status = 'failed', error = 'abandoned mid-processing with no attempts remaining', started_at = NULL, completed_at = now()
		 WHERE status = 'processing' AND started_at <= $1 AND attempts >= max_attempts`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: fail exhausted stale")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_jobs SET status = 'pending', started_at = NULL
		 WHERE status = 'processing' AND started_at <= $1 AND attempts < max_attempts`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: requeue stale")
	}
	return int(failed.RowsAffected() + tag.RowsAffected()), nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.ExtractionJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgJobColumns+` FROM extraction_jobs WHERE id = $1`, jobID)
	job, err := scanPGJob(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return job, nil
}

func (s *PostgresStore) getJobBySource(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.ExtractionJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgJobColumns+` FROM extraction_jobs WHERE source_type = $1 AND source_id = $2`,
		string(sourceType), sourceID)
	job, err := scanPGJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get job by source")
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ExtractionJob, error) {
	query := `SELECT ` + pgJobColumns + ` FROM extraction_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ExtractionJob
	for rows.Next() {
		job, err := scanPGJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) CountJobs(ctx context.Context) (model.JobCounts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM extraction_jobs GROUP BY status`)
	if err != nil {
		return model.JobCounts{}, eris.Wrap(err, "postgres: count jobs")
	}
	defer rows.Close()

	var counts model.JobCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.JobCounts{}, eris.Wrap(err, "postgres: scan job count")
		}
		applyJobCount(&counts, model.JobStatus(status), n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count jobs iterate")
}

// Extractions

func (s *PostgresStore) InsertExtraction(ctx context.Context, ex model.StoredExtraction) (*model.StoredExtraction, error) {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extractions (id, subject_id, source_type, source_id, kind, field_name, raw_text, value, confidence, provider, model, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ex.ID, ex.SubjectID, string(ex.SourceType), ex.SourceID, string(ex.Kind), ex.FieldName,
		ex.RawText, ex.Value, ex.Confidence, ex.Provider, ex.Model, string(ex.Status), ex.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert extraction")
	}
	return &ex, nil
}

func (s *PostgresStore) UpdateExtractionStatus(ctx context.Context, id string, status model.ReviewStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extractions SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update extraction status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("extraction not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListExtractions(ctx context.Context, filter ExtractionFilter) ([]model.StoredExtraction, error) {
	query := `SELECT id, subject_id, source_type, source_id, kind, field_name, raw_text, value, confidence, provider, model, status, created_at
	          FROM extractions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SubjectID != "" {
		query += fmt.Sprintf(` AND subject_id = $%d`, argIdx)
		args = append(args, filter.SubjectID)
		argIdx++
	}
	if filter.FieldName != "" {
		query += fmt.Sprintf(` AND field_name = $%d`, argIdx)
		args = append(args, filter.FieldName)
		argIdx++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extractions")
	}
	defer rows.Close()

	var out []model.StoredExtraction
	for rows.Next() {
		var ex model.StoredExtraction
		if err := rows.Scan(&ex.ID, &ex.SubjectID, &ex.SourceType, &ex.SourceID, &ex.Kind, &ex.FieldName,
			&ex.RawText, &ex.Value, &ex.Confidence, &ex.Provider, &ex.Model, &ex.Status, &ex.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction")
		}
		out = append(out, ex)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list extractions iterate")
}

// Timeline

func (s *PostgresStore) InsertTimelineEntry(ctx context.Context, entry model.TimelineEntry) (*model.TimelineEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO timeline_entries (id, subject_id, category, date_start, precision, display, sort_key, source_type, source_ref, notes, needs_review, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.SubjectID, entry.Category, entry.DateStart, string(entry.Precision), entry.Display,
		entry.SortKey, string(entry.SourceType), entry.SourceRef, entry.Notes, entry.NeedsReview, entry.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert timeline entry")
	}
	return &entry, nil
}

func (s *PostgresStore) FlagTimelineForReview(ctx context.Context, subjectID, category string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE timeline_entries SET needs_review = true WHERE subject_id = $1 AND category = $2`,
		subjectID, category,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: flag timeline for review")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListTimeline(ctx context.Context, subjectID string) ([]model.TimelineEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, category, date_start, precision, display, sort_key, source_type, source_ref, notes, needs_review, created_at
		 FROM timeline_entries WHERE subject_id = $1 ORDER BY sort_key ASC, created_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list timeline")
	}
	defer rows.Close()

	var out []model.TimelineEntry
	for rows.Next() {
		var e model.TimelineEntry
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Category, &e.DateStart, &e.Precision, &e.Display,
			&e.SortKey, &e.SourceType, &e.SourceRef, &e.Notes, &e.NeedsReview, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan timeline entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list timeline iterate")
}

// Conflicts

const pgConflictColumns = `id, subject_id, conflict_type, field_name, claim_a, claim_b, resolved, resolution, notes, resolved_by, resolved_at, created_at`

func (s *PostgresStore) InsertConflict(ctx context.Context, c model.FactConflict) (*model.FactConflict, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	claimA, err := json.Marshal(c.ClaimA)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal claim a")
	}
	claimB, err := json.Marshal(c.ClaimB)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal claim b")
	}
	lo, hi := model.PairKey(c.ClaimA.Value, c.ClaimB.Value)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO fact_conflicts (id, subject_id, conflict_type, field_name, claim_a, claim_b, value_lo, value_hi, resolved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)`,
		c.ID, c.SubjectID, string(c.Type), c.FieldName, claimA, claimB, lo, hi, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert conflict")
	}
	return &c, nil
}

func (s *PostgresStore) FindConflictByPair(ctx context.Context, subjectID, fieldName, valueA, valueB string) (*model.FactConflict, error) {
	lo, hi := model.PairKey(valueA, valueB)
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgConflictColumns+` FROM fact_conflicts
		 WHERE subject_id = $1 AND field_name = $2 AND value_lo = $3 AND value_hi = $4
		 ORDER BY created_at DESC LIMIT 1`,
		subjectID, fieldName, lo, hi,
	)
	c, err := scanPGConflict(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find conflict by pair")
	}
	return c, nil
}

func (s *PostgresStore) GetConflict(ctx context.Context, id string) (*model.FactConflict, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgConflictColumns+` FROM fact_conflicts WHERE id = $1`, id)
	c, err := scanPGConflict(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get conflict %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ResolveConflict(ctx context.Context, id string, res model.Resolution, notes, resolvedBy string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fact_conflicts SET resolved = true, resolution = $1, notes = $2, resolved_by = $3, resolved_at = now()
		 WHERE id = $4 AND resolved = false`,
		string(res), notes, resolvedBy, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve conflict %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("unresolved conflict not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListConflicts(ctx context.Context, filter ConflictFilter) ([]model.FactConflict, error) {
	query := `SELECT ` + pgConflictColumns + ` FROM fact_conflicts WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SubjectID != "" {
		query += fmt.Sprintf(` AND subject_id = $%d`, argIdx)
		args = append(args, filter.SubjectID)
		argIdx++
	}
	if !filter.IncludeResolved {
		query += ` AND resolved = false`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list conflicts")
	}
	defer rows.Close()

	var out []model.FactConflict
	for rows.Next() {
		c, err := scanPGConflict(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan conflict")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list conflicts iterate")
}

// Authorities

func (s *PostgresStore) UpsertAuthority(ctx context.Context, domain string, tier int, notes string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_authorities (domain, tier, notes, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (domain) DO UPDATE SET tier = $2, notes = $3, updated_at = now()`,
		domain, tier, notes,
	)
	return eris.Wrap(err, "postgres: upsert authority")
}

func (s *PostgresStore) GetAuthorityTier(ctx context.Context, domain string) (int, error) {
	var tier int
	err := s.pool.QueryRow(ctx,
		`SELECT tier FROM source_authorities WHERE domain = $1`, domain).Scan(&tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultAuthorityTier, nil
		}
		return 0, eris.Wrapf(err, "postgres: get authority tier %s", domain)
	}
	return tier, nil
}

func (s *PostgresStore) ListAuthorities(ctx context.Context) ([]model.SourceAuthority, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, tier, notes, updated_at FROM source_authorities ORDER BY tier ASC, domain ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list authorities")
	}
	defer rows.Close()

	var out []model.SourceAuthority
	for rows.Next() {
		var a model.SourceAuthority
		if err := rows.Scan(&a.Domain, &a.Tier, &a.Notes, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan authority")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list authorities iterate")
}

// scan helpers

func scanPGJob(row scannable) (*model.ExtractionJob, error) {
	var j model.ExtractionJob
	var tasks string
	var result []byte
	var startedAt, completedAt *time.Time

	err := row.Scan(&j.ID, &j.SourceType, &j.SourceID, &j.SubjectID, &tasks, &j.Status,
		&j.Priority, &j.Attempts, &j.MaxAttempts, &result, &j.Error, &j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	j.Tasks = model.ParseTaskSet(tasks)
	j.Result = result
	j.StartedAt = startedAt
	j.CompletedAt = completedAt
	return &j, nil
}

func scanPGConflict(row scannable) (*model.FactConflict, error) {
	var c model.FactConflict
	var claimA, claimB []byte
	var resolvedAt *time.Time

	err := row.Scan(&c.ID, &c.SubjectID, &c.Type, &c.FieldName, &claimA, &claimB,
		&c.Resolved, &c.Resolution, &c.Notes, &c.ResolvedBy, &resolvedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(claimA, &c.ClaimA); err != nil {
		return nil, eris.Wrap(err, "unmarshal claim a")
	}
	if err := json.Unmarshal(claimB, &c.ClaimB); err != nil {
		return nil, eris.Wrap(err, "unmarshal claim b")
	}
	c.ResolvedAt = resolvedAt
	return &c, nil
}
