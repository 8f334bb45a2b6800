package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/wizzardx/davinci/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/davinci.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

// SaveRun writes the run and one run_results row per result in a single
// transaction. Saving the same id twice fails.
func (s *LibSQLStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "run id is required")
	}
	results := run.Results
	if results == nil {
		results = []schema.VerificationResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin save run", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, origin, document_digest, total, proven, violated, inconclusive, failed, structural_error, results, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Origin, run.DocumentDigest,
		run.Total, run.Proven, run.Violated, run.Inconclusive, boolInt(run.Failed),
		nullStr(run.StructuralErr), string(resultsJSON),
		timeOrNow(run.StartedAt), timeOrNow(run.FinishedAt),
	)
	if err != nil {
		return storeErr("insert run "+run.ID, err)
	}

	for i, r := range results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO run_results (run_id, position, property_id, scope, method, severity, status, component, location, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, r.PropertyID, r.Scope, string(r.Method), string(r.Severity), string(r.Status),
			nullStr(r.Component), nullStr(r.Location), nullStr(r.Reason),
		)
		if err != nil {
			return storeErr("insert run result", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit run "+run.ID, err)
	}
	return nil
}

const runColumns = `id, source, origin, document_digest, total, proven, violated, inconclusive, failed, structural_error, results, started_at, finished_at`

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Since != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Digest != "" {
		clauses = append(clauses, "document_digest = ?")
		args = append(args, filter.Digest)
	}
	if filter.FailedOnly {
		clauses = append(clauses, "failed = 1")
	}

	q := `SELECT ` + runColumns + ` FROM runs`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("list runs", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows, filter.WithResults)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) PropertyHistory(ctx context.Context, propertyID string, limit int) ([]*PropertyOutcome, error) {
	q := `SELECT rr.run_id, rr.property_id, rr.scope, rr.method, rr.severity, rr.status,
	             rr.component, rr.location, rr.reason, r.started_at
	      FROM run_results rr JOIN runs r ON r.id = rr.run_id
	      WHERE rr.property_id = ?
	      ORDER BY r.started_at DESC, rr.run_id DESC, rr.position`
	args := []any{propertyID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("property history", err)
	}
	defer rows.Close()

	var out []*PropertyOutcome
	for rows.Next() {
		var (
			o                           PropertyOutcome
			method, severity, status    string
			component, location, reason sql.NullString
		)
		if err := rows.Scan(&o.RunID, &o.PropertyID, &o.Scope, &method, &severity, &status,
			&component, &location, &reason, &o.StartedAt); err != nil {
			return nil, storeErr("scan property outcome", err)
		}
		o.Method = schema.Method(method)
		o.Severity = schema.Severity(severity)
		o.Status = schema.Status(status)
		o.Component, o.Location, o.Reason = component.String, location.String, reason.String
		out = append(out, &o)
	}
	return out, rows.Err()
}

// PruneRuns deletes runs that started before the cutoff and returns how
// many were removed.
func (s *LibSQLStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin prune", err)
	}
	defer tx.Rollback()

	// Explicit so pruning does not depend on foreign_keys being enabled.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM run_results WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, before); err != nil {
		return 0, storeErr("prune run results", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, before)
	if err != nil {
		return 0, storeErr("prune runs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit prune", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, withResults bool) (*Run, error) {
	var (
		run         Run
		failed      int
		structural  sql.NullString
		resultsJSON string
	)
	err := row.Scan(&run.ID, &run.Source, &run.Origin, &run.DocumentDigest,
		&run.Total, &run.Proven, &run.Violated, &run.Inconclusive, &failed,
		&structural, &resultsJSON, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	run.Failed = failed != 0
	run.StructuralErr = structural.String
	if withResults && resultsJSON != "" {
		if err := json.Unmarshal([]byte(resultsJSON), &run.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// --- Scheduled Jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	patterns, err := json.Marshal(nonNil(job.Patterns))
	if err != nil {
		return fmt.Errorf("marshal patterns: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, name, cron_expression, root, patterns, enabled, last_run_at, next_run_at, last_run_status, last_run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.CronExpression, job.Root, string(patterns), boolInt(job.Enabled),
		nullTime(job.LastRunAt), nullTime(job.NextRunAt), nullStr(job.LastRunStatus), nullStr(job.LastRunID),
		timeOrNow(job.CreatedAt),
	)
	if err != nil {
		return storeErr("create scheduled job "+job.ID, err)
	}
	return nil
}

const jobColumns = `id, name, cron_expression, root, patterns, enabled, last_run_at, next_run_at, last_run_status, last_run_id, created_at`

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("scheduled job", id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var (
		sets []string
		args []any
	)
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if update.LastRunID != "" {
		sets = append(sets, "last_run_id = ?")
		args = append(args, update.LastRunID)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return storeErr("update scheduled job "+id, err)
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	q := `SELECT ` + jobColumns + ` FROM scheduled_jobs`
	var args []any
	if filter.Enabled != nil {
		q += " WHERE enabled = ?"
		args = append(args, boolInt(*filter.Enabled))
	}
	q += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("list scheduled jobs", err)
	}
	defer rows.Close()

	var out []*ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete scheduled job "+id, err)
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func scanJob(row rowScanner) (*ScheduledJob, error) {
	var (
		job                   ScheduledJob
		patterns              string
		enabled               int
		lastRun, nextRun      sql.NullTime
		lastStatus, lastRunID sql.NullString
	)
	err := row.Scan(&job.ID, &job.Name, &job.CronExpression, &job.Root, &patterns, &enabled,
		&lastRun, &nextRun, &lastStatus, &lastRunID, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(patterns), &job.Patterns); err != nil {
		return nil, fmt.Errorf("unmarshal patterns of job %s: %w", job.ID, err)
	}
	if len(job.Patterns) == 0 {
		job.Patterns = nil
	}
	job.Enabled = enabled != 0
	if lastRun.Valid {
		job.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		job.NextRunAt = &nextRun.Time
	}
	job.LastRunStatus = lastStatus.String
	job.LastRunID = lastRunID.String
	return &job, nil
}

// --- helpers ---

func storeNotFound(resource, id string) *schema.DavinciError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeErr(op string, err error) *schema.DavinciError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
