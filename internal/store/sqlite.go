package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/archivist-labs/chronicle/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	source_type  TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	subject_id   TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	domain       TEXT NOT NULL DEFAULT '',
	article_date TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (source_type, source_id)
);

CREATE TABLE IF NOT EXISTS extraction_jobs (
	id           TEXT PRIMARY KEY,
	source_type  TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	subject_id   TEXT NOT NULL DEFAULT '',
	tasks        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	priority     INTEGER NOT NULL DEFAULT 0,
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	result       TEXT,
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at   DATETIME,
	completed_at DATETIME,
	UNIQUE (source_type, source_id)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON extraction_jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON extraction_jobs(status, priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS extractions (
	id          TEXT PRIMARY KEY,
	subject_id  TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	field_name  TEXT NOT NULL DEFAULT '',
	raw_text    TEXT NOT NULL DEFAULT '',
	value       TEXT NOT NULL DEFAULT '',
	confidence  REAL NOT NULL DEFAULT 0,
	provider    TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_extractions_subject ON extractions(subject_id, field_name);
CREATE INDEX IF NOT EXISTS idx_extractions_status ON extractions(status);

CREATE TABLE IF NOT EXISTS timeline_entries (
	id           TEXT PRIMARY KEY,
	subject_id   TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	date_start   TEXT NOT NULL,
	precision    TEXT NOT NULL DEFAULT 'exact',
	display      TEXT NOT NULL DEFAULT '',
	sort_key     INTEGER NOT NULL DEFAULT 0,
	source_type  TEXT NOT NULL DEFAULT '',
	source_ref   TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	needs_review INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_timeline_subject ON timeline_entries(subject_id, sort_key);

CREATE TABLE IF NOT EXISTS fact_conflicts (
	id            TEXT PRIMARY KEY,
	subject_id    TEXT NOT NULL,
	conflict_type TEXT NOT NULL DEFAULT 'date_mismatch',
	field_name    TEXT NOT NULL DEFAULT '',
	claim_a       TEXT NOT NULL,
	claim_b       TEXT NOT NULL,
	value_lo      TEXT NOT NULL,
	value_hi      TEXT NOT NULL,
	resolved      INTEGER NOT NULL DEFAULT 0,
	resolution    TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	resolved_by   TEXT NOT NULL DEFAULT '',
	resolved_at   DATETIME,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_conflicts_subject ON fact_conflicts(subject_id, resolved);
CREATE INDEX IF NOT EXISTS idx_conflicts_pair ON fact_conflicts(subject_id, field_name, value_lo, value_hi);

CREATE TABLE IF NOT EXISTS source_authorities (
	domain     TEXT PRIMARY KEY,
	tier       INTEGER NOT NULL DEFAULT 3,
	notes      TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Sources

func (s *SQLiteStore) UpsertSource(ctx context.Context, src model.Source) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (source_type, source_id, subject_id, title, body, domain, article_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_type, source_id) DO UPDATE SET
		   subject_id = excluded.subject_id, title = excluded.title, body = excluded.body,
		   domain = excluded.domain, article_date = excluded.article_date`,
		string(src.Type), src.ID, src.SubjectID, src.Title, src.Text, src.Domain, src.ArticleDate, now,
	)
	return eris.Wrap(err, "sqlite: upsert source")
}

func (s *SQLiteStore) GetSource(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.Source, error) {
	var src model.Source
	err := s.db.QueryRowContext(ctx,
		`SELECT source_type, source_id, subject_id, title, body, domain, article_date, created_at
		 FROM sources WHERE source_type = ? AND source_id = ?`,
		string(sourceType), sourceID,
	).Scan(&src.Type, &src.ID, &src.SubjectID, &src.Title, &src.Text, &src.Domain, &src.ArticleDate, &src.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s:%s", sourceType, sourceID)
	}
	return &src, nil
}

// Jobs

const sqliteJobColumns = `id, source_type, source_id, subject_id, tasks, status, priority, attempts, max_attempts, result, error, created_at, started_at, completed_at`

func (s *SQLiteStore) EnqueueJob(ctx context.Context, req EnqueueRequest) (*model.ExtractionJob, error) {
	existing, err := s.getJobBySource(ctx, req.SourceType, req.SourceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != model.JobFailed {
			return existing, nil
		}
		// Re-enqueue of a failed job resets it in place.
		_, err = s.db.ExecContext(ctx,
			`UPDATE extraction_jobs
			 SET status = 'pending', subject_id = ?, tasks = ?, priority = ?, max_attempts = ?,
			     attempts = 0, result = NULL, error = '', started_at = NULL, completed_at = NULL
			 WHERE id = ?`,
			req.SubjectID, req.Tasks.String(), req.Priority, req.MaxAttempts, existing.ID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: reset failed job %s", existing.ID)
		}
		return s.GetJob(ctx, existing.ID)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_jobs (id, source_type, source_id, subject_id, tasks, status, priority, attempts, max_attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, 'pending', ?, 0, ?, ?)`,
		id, string(req.SourceType), req.SourceID, req.SubjectID, req.Tasks.String(), req.Priority, req.MaxAttempts, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
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

func (s *SQLiteStore) ClaimNextJob(ctx context.Context) (*model.ExtractionJob, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE extraction_jobs
		 SET status = 'processing', attempts = attempts + 1, started_at = ?
		 WHERE id = (
		   SELECT id FROM extraction_jobs WHERE status = 'pending'
		   ORDER BY priority DESC, created_at ASC, id ASC LIMIT 1
		 )
		 RETURNING `+sqliteJobColumns,
		time.Now().UTC(),
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim next job")
	}
	return job, nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, status model.JobStatus, result []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET status = ?, result = ?, error = '', completed_at = ? WHERE id = ?`,
		string(status), nullableString(result), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET status = 'failed', error = ?, completed_at = ? WHERE id = ?`,
		errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) RequeueJob(ctx context.Context, jobID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET status = 'pending', error = ?, started_at = NULL WHERE id = ?`,
		errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: requeue job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	// A stale row already on its last attempt has no retry budget left;
	// re-pending it would let the next claim push attempts past the cap.
	failed, err := s.db.ExecContext(ctx,
		`UPDATE extraction_jobs
		 SET status = 'failed', error = 'abandoned mid-processing with no attempts remaining', started_at = NULL, completed_at = ?
		 WHERE status = 'processing' AND started_at <= ? AND attempts >= max_attempts`,
		time.Now().UTC(), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: fail exhausted stale")
	}
	nFailed, err := failed.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET status = 'pending', started_at = NULL
		 WHERE status = 'processing' AND started_at <= ? AND attempts < max_attempts`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: requeue stale")
	}
	n, err := res.RowsAffected()
	return int(nFailed + n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.ExtractionJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM extraction_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return job, nil
}

func (s *SQLiteStore) getJobBySource(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.ExtractionJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM extraction_jobs WHERE source_type = ? AND source_id = ?`,
		string(sourceType), sourceID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get job by source")
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ExtractionJob, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM extraction_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.ExtractionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) CountJobs(ctx context.Context) (model.JobCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM extraction_jobs GROUP BY status`)
	if err != nil {
		return model.JobCounts{}, eris.Wrap(err, "sqlite: count jobs")
	}
	defer rows.Close()

	var counts model.JobCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.JobCounts{}, eris.Wrap(err, "sqlite: scan job count")
		}
		applyJobCount(&counts, model.JobStatus(status), n)
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count jobs iterate")
}

// Extractions

func (s *SQLiteStore) InsertExtraction(ctx context.Context, ex model.StoredExtraction) (*model.StoredExtraction, error) {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extractions (id, subject_id, source_type, source_id, kind, field_name, raw_text, value, confidence, provider, model, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.SubjectID, string(ex.SourceType), ex.SourceID, string(ex.Kind), ex.FieldName,
		ex.RawText, ex.Value, ex.Confidence, ex.Provider, ex.Model, string(ex.Status), ex.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert extraction")
	}
	return &ex, nil
}

func (s *SQLiteStore) UpdateExtractionStatus(ctx context.Context, id string, status model.ReviewStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extractions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update extraction status %s", id)
	}
	return checkRowsAffected(res, "extraction", id)
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, filter ExtractionFilter) ([]model.StoredExtraction, error) {
	query := `SELECT id, subject_id, source_type, source_id, kind, field_name, raw_text, value, confidence, provider, model, status, created_at
	          FROM extractions WHERE 1=1`
	var args []any

	if filter.SubjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, filter.SubjectID)
	}
	if filter.FieldName != "" {
		query += ` AND field_name = ?`
		args = append(args, filter.FieldName)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extractions")
	}
	defer rows.Close()

	var out []model.StoredExtraction
	for rows.Next() {
		var ex model.StoredExtraction
		if err := rows.Scan(&ex.ID, &ex.SubjectID, &ex.SourceType, &ex.SourceID, &ex.Kind, &ex.FieldName,
			&ex.RawText, &ex.Value, &ex.Confidence, &ex.Provider, &ex.Model, &ex.Status, &ex.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction")
		}
		out = append(out, ex)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list extractions iterate")
}

// Timeline

func (s *SQLiteStore) InsertTimelineEntry(ctx context.Context, entry model.TimelineEntry) (*model.TimelineEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timeline_entries (id, subject_id, category, date_start, precision, display, sort_key, source_type, source_ref, notes, needs_review, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SubjectID, entry.Category, entry.DateStart, string(entry.Precision), entry.Display,
		entry.SortKey, string(entry.SourceType), entry.SourceRef, entry.Notes, entry.NeedsReview, entry.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert timeline entry")
	}
	return &entry, nil
}

func (s *SQLiteStore) FlagTimelineForReview(ctx context.Context, subjectID, category string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE timeline_entries SET needs_review = 1 WHERE subject_id = ? AND category = ?`,
		subjectID, category,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: flag timeline for review")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ListTimeline(ctx context.Context, subjectID string) ([]model.TimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, category, date_start, precision, display, sort_key, source_type, source_ref, notes, needs_review, created_at
		 FROM timeline_entries WHERE subject_id = ? ORDER BY sort_key ASC, created_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list timeline")
	}
	defer rows.Close()

	var out []model.TimelineEntry
	for rows.Next() {
		var e model.TimelineEntry
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Category, &e.DateStart, &e.Precision, &e.Display,
			&e.SortKey, &e.SourceType, &e.SourceRef, &e.Notes, &e.NeedsReview, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan timeline entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list timeline iterate")
}

// Conflicts

func (s *SQLiteStore) InsertConflict(ctx context.Context, c model.FactConflict) (*model.FactConflict, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	claimA, err := json.Marshal(c.ClaimA)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal claim a")
	}
	claimB, err := json.Marshal(c.ClaimB)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal claim b")
	}
	lo, hi := model.PairKey(c.ClaimA.Value, c.ClaimB.Value)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fact_conflicts (id, subject_id, conflict_type, field_name, claim_a, claim_b, value_lo, value_hi, resolved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		c.ID, c.SubjectID, string(c.Type), c.FieldName, string(claimA), string(claimB), lo, hi, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert conflict")
	}
	return &c, nil
}

const sqliteConflictColumns = `id, subject_id, conflict_type, field_name, claim_a, claim_b, resolved, resolution, notes, resolved_by, resolved_at, created_at`

func (s *SQLiteStore) FindConflictByPair(ctx context.Context, subjectID, fieldName, valueA, valueB string) (*model.FactConflict, error) {
	lo, hi := model.PairKey(valueA, valueB)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteConflictColumns+` FROM fact_conflicts
		 WHERE subject_id = ? AND field_name = ? AND value_lo = ? AND value_hi = ?
		 ORDER BY created_at DESC LIMIT 1`,
		subjectID, fieldName, lo, hi,
	)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find conflict by pair")
	}
	return c, nil
}

func (s *SQLiteStore) GetConflict(ctx context.Context, id string) (*model.FactConflict, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteConflictColumns+` FROM fact_conflicts WHERE id = ?`, id)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("conflict not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get conflict %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ResolveConflict(ctx context.Context, id string, res model.Resolution, notes, resolvedBy string) error {
	r, err := s.db.ExecContext(ctx,
		`UPDATE fact_conflicts SET resolved = 1, resolution = ?, notes = ?, resolved_by = ?, resolved_at = ?
		 WHERE id = ? AND resolved = 0`,
		string(res), notes, resolvedBy, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve conflict %s", id)
	}
	return checkRowsAffected(r, "unresolved conflict", id)
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, filter ConflictFilter) ([]model.FactConflict, error) {
	query := `SELECT ` + sqliteConflictColumns + ` FROM fact_conflicts WHERE 1=1`
	var args []any

	if filter.SubjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, filter.SubjectID)
	}
	if !filter.IncludeResolved {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list conflicts")
	}
	defer rows.Close()

	var out []model.FactConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conflict")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list conflicts iterate")
}

// Authorities

func (s *SQLiteStore) UpsertAuthority(ctx context.Context, domain string, tier int, notes string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_authorities (domain, tier, notes, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (domain) DO UPDATE SET tier = excluded.tier, notes = excluded.notes, updated_at = excluded.updated_at`,
		domain, tier, notes, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert authority")
}

func (s *SQLiteStore) GetAuthorityTier(ctx context.Context, domain string) (int, error) {
	var tier int
	err := s.db.QueryRowContext(ctx,
		`SELECT tier FROM source_authorities WHERE domain = ?`, domain).Scan(&tier)
	if err == sql.ErrNoRows {
		return model.DefaultAuthorityTier, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: get authority tier %s", domain)
	}
	return tier, nil
}

func (s *SQLiteStore) ListAuthorities(ctx context.Context) ([]model.SourceAuthority, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, tier, notes, updated_at FROM source_authorities ORDER BY tier ASC, domain ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list authorities")
	}
	defer rows.Close()

	var out []model.SourceAuthority
	for rows.Next() {
		var a model.SourceAuthority
		if err := rows.Scan(&a.Domain, &a.Tier, &a.Notes, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan authority")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list authorities iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.ExtractionJob, error) {
	var j model.ExtractionJob
	var tasks string
	var result sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.SourceType, &j.SourceID, &j.SubjectID, &tasks, &j.Status,
		&j.Priority, &j.Attempts, &j.MaxAttempts, &result, &j.Error, &j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	j.Tasks = model.ParseTaskSet(tasks)
	if result.Valid {
		j.Result = []byte(result.String)
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func scanConflict(row scannable) (*model.FactConflict, error) {
	var c model.FactConflict
	var claimA, claimB string
	var resolvedAt sql.NullTime

	err := row.Scan(&c.ID, &c.SubjectID, &c.Type, &c.FieldName, &claimA, &claimB,
		&c.Resolved, &c.Resolution, &c.Notes, &c.ResolvedBy, &resolvedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(claimA), &c.ClaimA); err != nil {
		return nil, eris.Wrap(err, "unmarshal claim a")
	}
	if err := json.Unmarshal([]byte(claimB), &c.ClaimB); err != nil {
		return nil, eris.Wrap(err, "unmarshal claim b")
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}

func applyJobCount(counts *model.JobCounts, status model.JobStatus, n int) {
	switch status {
	case model.JobPending:
		counts.Pending += n
	case model.JobProcessing:
		counts.Processing += n
	case model.JobCompleted, model.JobPartial:
		counts.Completed += n
	case model.JobFailed:
		counts.Failed += n
	}
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
