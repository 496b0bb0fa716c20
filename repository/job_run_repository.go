package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"eodmarker/database"
	"eodmarker/models"
	"eodmarker/service"

	"github.com/jackc/pgx/v5"
)

// JobRunRepository stores one row per executed lock-protected job firing
type JobRunRepository struct {
	q Queryable
}

// NewJobRunRepository creates a new job run repository
func NewJobRunRepository(db *database.DB) *JobRunRepository {
	return &JobRunRepository{q: db.Pool}
}

// RecordRun inserts a job run and fills in its generated ID
func (r *JobRunRepository) RecordRun(ctx context.Context, run *models.JobRun) error {
	summaryJSON, err := json.Marshal(run.ExecutionSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal execution summary: %w", err)
	}

	query := `
		INSERT INTO eod_job_runs
		(lock_name, locked_by, started_at, finished_at, outcome, error_message, execution_summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err = r.q.QueryRow(ctx, query,
		run.LockName,
		run.LockedBy,
		run.StartedAt,
		run.FinishedAt,
		run.Outcome,
		run.ErrorMessage,
		summaryJSON,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("%w: failed to record run of %s: %w", service.ErrStorage, run.LockName, err)
	}

	return nil
}

// GetLatest returns the most recent run for a lock name, or nil if it never ran
func (r *JobRunRepository) GetLatest(ctx context.Context, lockName string) (*models.JobRun, error) {
	query := `
		SELECT id, lock_name, locked_by, started_at, finished_at,
		       outcome, error_message, execution_summary
		FROM eod_job_runs
		WHERE lock_name = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`

	run, err := scanJobRun(r.q.QueryRow(ctx, query, lockName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get latest run of %s: %w", service.ErrStorage, lockName, err)
	}

	return run, nil
}

// ListRecent returns up to limit runs for a lock name, newest first
func (r *JobRunRepository) ListRecent(ctx context.Context, lockName string, limit int) ([]*models.JobRun, error) {
	query := `
		SELECT id, lock_name, locked_by, started_at, finished_at,
		       outcome, error_message, execution_summary
		FROM eod_job_runs
		WHERE lock_name = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, lockName, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list runs of %s: %w", service.ErrStorage, lockName, err)
	}
	defer rows.Close()

	var runs []*models.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate runs of %s: %w", service.ErrStorage, lockName, err)
	}

	return runs, nil
}

func scanJobRun(row pgx.Row) (*models.JobRun, error) {
	var run models.JobRun
	var summaryJSON []byte

	err := row.Scan(
		&run.ID,
		&run.LockName,
		&run.LockedBy,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Outcome,
		&run.ErrorMessage,
		&summaryJSON,
	)
	if err != nil {
		return nil, err
	}

	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &run.ExecutionSummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution summary: %w", err)
		}
	}

	return &run, nil
}
