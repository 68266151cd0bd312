package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lakerunner/internal/domain"
)

var _ domain.JobStore = (*SQLiteJobStore)(nil)

// SQLiteJobStore persists job lifecycle state in SQLite. Each transition is
// one UPDATE guarded by the expected source state, so terminal states are
// never overwritten and readers see state and payload move together.
//
// Writes go through the single-connection write pool; polling reads go
// through the wider read pool so they never queue behind a transition.
type SQLiteJobStore struct {
	write *sql.DB
	read  *sql.DB
}

// NewSQLiteJobStore creates a job store over migrated SQLite handles,
// typically from OpenSQLitePair.
func NewSQLiteJobStore(write, read *sql.DB) *SQLiteJobStore {
	return &SQLiteJobStore{write: write, read: read}
}

// CreateJob inserts a new job record.
func (s *SQLiteJobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrValidation("job with id is required")
	}
	_, err := s.write.ExecContext(ctx, `
		INSERT INTO jobs (id, engine_id, sql_text, state, submitted_at)
		VALUES (?, ?, ?, ?, ?)
	`, job.ID, job.EngineID, job.SQLText, string(job.State), formatTime(job.SubmittedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns a job by id.
func (s *SQLiteJobStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.read.QueryRowContext(ctx, `
		SELECT id, engine_id, sql_text, state, submitted_at, started_at, finished_at,
		       result_json, error_kind, error_message
		FROM jobs WHERE id = ?
	`, id)

	var (
		job                      domain.Job
		state                    string
		submittedAt              string
		startedAt, finishedAt    sql.NullString
		resultJSON               sql.NullString
		errorKind, errorMessage  sql.NullString
	)
	err := row.Scan(&job.ID, &job.EngineID, &job.SQLText, &state, &submittedAt,
		&startedAt, &finishedAt, &resultJSON, &errorKind, &errorMessage)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("job %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.State = domain.JobState(state)
	if job.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}
	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if job.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.QueryResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &result
	}
	if errorKind.Valid && errorKind.String != "" {
		job.Error = &domain.JobError{
			Kind:    domain.ErrorKind(errorKind.String),
			Message: errorMessage.String,
		}
	}
	return &job, nil
}

// MarkRunning moves a QUEUED job to RUNNING.
func (s *SQLiteJobStore) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.write.ExecContext(ctx, `
		UPDATE jobs SET state = ?, started_at = ?
		WHERE id = ? AND state = ?
	`, string(domain.JobStateRunning), formatTime(at), id, string(domain.JobStateQueued))
	return s.applied(ctx, res, err, id)
}

// MarkSucceeded stores the result and moves a RUNNING job to SUCCEEDED.
func (s *SQLiteJobStore) MarkSucceeded(ctx context.Context, id string, result *domain.QueryResult, at time.Time) (bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}
	res, err := s.write.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, result_json = ?, error_kind = NULL, error_message = NULL, finished_at = ?
		WHERE id = ? AND state = ?
	`, string(domain.JobStateSucceeded), string(resultJSON), formatTime(at), id, string(domain.JobStateRunning))
	return s.applied(ctx, res, err, id)
}

// MarkFailed stores the classified error and moves a non-terminal job to FAILED.
func (s *SQLiteJobStore) MarkFailed(ctx context.Context, id string, jobErr domain.JobError, at time.Time) (bool, error) {
	res, err := s.write.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, error_kind = ?, error_message = ?, result_json = NULL, finished_at = ?
		WHERE id = ? AND state IN (?, ?)
	`, string(domain.JobStateFailed), string(jobErr.Kind), jobErr.Message, formatTime(at),
		id, string(domain.JobStateQueued), string(domain.JobStateRunning))
	return s.applied(ctx, res, err, id)
}

// MarkCancelled moves a non-terminal job to CANCELLED.
func (s *SQLiteJobStore) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.write.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, result_json = NULL, finished_at = ?
		WHERE id = ? AND state IN (?, ?)
	`, string(domain.JobStateCancelled), formatTime(at),
		id, string(domain.JobStateQueued), string(domain.JobStateRunning))
	return s.applied(ctx, res, err, id)
}

// ReconcileInterrupted fails every non-terminal job with kind INTERRUPTED.
func (s *SQLiteJobStore) ReconcileInterrupted(ctx context.Context, at time.Time) (int, error) {
	res, err := s.write.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, error_kind = ?, error_message = ?, result_json = NULL, finished_at = ?
		WHERE state IN (?, ?)
	`, string(domain.JobStateFailed), string(domain.ErrorKindInterrupted),
		"job was in flight during an unclean shutdown", formatTime(at),
		string(domain.JobStateQueued), string(domain.JobStateRunning))
	if err != nil {
		return 0, fmt.Errorf("reconcile interrupted jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteTerminalBefore removes terminal jobs that finished before cutoff.
func (s *SQLiteJobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.write.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE state IN (?, ?, ?) AND finished_at IS NOT NULL AND finished_at < ?
	`, string(domain.JobStateSucceeded), string(domain.JobStateFailed), string(domain.JobStateCancelled),
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// applied converts an UPDATE outcome into the transition-guard contract:
// false when the guard matched no row but the job exists.
func (s *SQLiteJobStore) applied(ctx context.Context, res sql.Result, err error, id string) (bool, error) {
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	var exists int
	if err := s.read.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
		return false, domain.ErrNotFound("job %q not found", id)
	} else if err != nil {
		return false, fmt.Errorf("check job existence: %w", err)
	}
	return false, nil
}

// Timestamps are stored as RFC3339Nano text so the guard updates stay
// byte-comparable across drivers.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
