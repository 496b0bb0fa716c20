package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eodmarker/database"
	"eodmarker/models"
	"eodmarker/service"

	"github.com/jackc/pgx/v5"
)

// StatusRepository implements the StatusStore interface on daily_report_status
type StatusRepository struct {
	q Queryable
}

// NewStatusRepository creates a new status repository backed by the pool
func NewStatusRepository(db *database.DB) *StatusRepository {
	return &StatusRepository{q: db.Pool}
}

// newStatusRepositoryWithTx creates a new status repository bound to a transaction
func newStatusRepositoryWithTx(tx Queryable) *StatusRepository {
	return &StatusRepository{q: tx}
}

// FindByDate retrieves the record for a business date, or nil if none exists
func (r *StatusRepository) FindByDate(ctx context.Context, date models.BusinessDate) (*models.DailyReportStatus, error) {
	query := `
		SELECT business_date, status_flag, updated_at
		FROM daily_report_status
		WHERE business_date = $1
	`

	record, err := scanStatus(r.q.QueryRow(ctx, query, date.Time()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get status for %s: %w", service.ErrStorage, date, err)
	}

	return record, nil
}

// ExistsMarked returns true if the date has a record with the EOD flag
func (r *StatusRepository) ExistsMarked(ctx context.Context, date models.BusinessDate) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM daily_report_status
			WHERE business_date = $1 AND status_flag = $2
		)
	`

	var exists bool
	if err := r.q.QueryRow(ctx, query, date.Time(), models.StatusFlagEOD).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: failed to check status for %s: %w", service.ErrStorage, date, err)
	}

	return exists, nil
}

// Upsert inserts the record or overwrites the existing one for its date.
// An EOD record is terminal and is left untouched.
func (r *StatusRepository) Upsert(ctx context.Context, record *models.DailyReportStatus) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO daily_report_status (business_date, status_flag, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_date) DO UPDATE
		SET status_flag = EXCLUDED.status_flag,
		    updated_at = EXCLUDED.updated_at
		WHERE daily_report_status.status_flag <> $4
	`

	_, err := r.q.Exec(ctx, query, record.BusinessDate.Time(), record.StatusFlag, record.UpdatedAt, models.StatusFlagEOD)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert status for %s: %w", service.ErrStorage, record.BusinessDate, err)
	}

	return nil
}

// MarkEOD inserts an EOD record or promotes an existing non-EOD record in a
// single statement. Concurrent callers serialize on the primary key, so at
// most one of them observes a change.
func (r *StatusRepository) MarkEOD(ctx context.Context, date models.BusinessDate, at time.Time) (models.MarkOutcome, *models.DailyReportStatus, error) {
	// xmax is zero only for a freshly inserted tuple
	query := `
		INSERT INTO daily_report_status (business_date, status_flag, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_date) DO UPDATE
		SET status_flag = EXCLUDED.status_flag,
		    updated_at = EXCLUDED.updated_at
		WHERE daily_report_status.status_flag <> EXCLUDED.status_flag
		RETURNING business_date, status_flag, updated_at, (xmax = 0) AS inserted
	`

	var (
		businessDate time.Time
		record       models.DailyReportStatus
		inserted     bool
	)
	err := r.q.QueryRow(ctx, query, date.Time(), models.StatusFlagEOD, at).Scan(
		&businessDate,
		&record.StatusFlag,
		&record.UpdatedAt,
		&inserted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict predicate rejected the update: already EOD
		return models.MarkOutcomeAlreadyMarked, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: failed to mark %s: %w", service.ErrStorage, date, err)
	}

	record.BusinessDate = models.BusinessDateOf(businessDate)
	if inserted {
		return models.MarkOutcomeCreated, &record, nil
	}
	return models.MarkOutcomeUpdated, &record, nil
}

func scanStatus(row pgx.Row) (*models.DailyReportStatus, error) {
	var (
		businessDate time.Time
		record       models.DailyReportStatus
	)
	if err := row.Scan(&businessDate, &record.StatusFlag, &record.UpdatedAt); err != nil {
		return nil, err
	}
	record.BusinessDate = models.BusinessDateOf(businessDate)
	return &record, nil
}
