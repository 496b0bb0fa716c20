package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of *pgxpool.Pool the Postgres provider uses
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresProvider claims locks in the shedlock table. All instants come
// from the database clock so instances with skewed clocks agree on expiry.
type PostgresProvider struct {
	db         Execer
	instanceID string
}

// NewPostgresProvider creates a provider backed by the shedlock table
func NewPostgresProvider(db Execer, instanceID string) *PostgresProvider {
	return &PostgresProvider{db: db, instanceID: instanceID}
}

// TryAcquire claims the lock in one statement. The conflict predicate only
// lets the update through once the previous claim has expired.
func (p *PostgresProvider) TryAcquire(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO shedlock (name, lock_until, locked_at, locked_by)
		VALUES ($1, now() + $2::bigint * interval '1 millisecond', now(), $3)
		ON CONFLICT (name) DO UPDATE
		SET lock_until = EXCLUDED.lock_until,
		    locked_at = EXCLUDED.locked_at,
		    locked_by = EXCLUDED.locked_by
		WHERE shedlock.lock_until <= now()
		RETURNING locked_at, lock_until
	`

	owner := NewOwnerToken(p.instanceID)
	var lockedAt, lockUntil time.Time
	err := p.db.QueryRow(ctx, query, cfg.Name, cfg.LockAtMostFor.Milliseconds(), owner).Scan(&lockedAt, &lockUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLockUnavailable
	}
	if err != nil {
		return nil, stateUnknown("acquire", cfg.Name, err)
	}

	return newHandle(p, cfg, owner, lockedAt, lockUntil), nil
}

func (p *PostgresProvider) release(ctx context.Context, h *Handle) error {
	query := `
		UPDATE shedlock
		SET lock_until = GREATEST(locked_at + $3::bigint * interval '1 millisecond', now())
		WHERE name = $1 AND locked_by = $2
	`

	tag, err := p.db.Exec(ctx, query, h.Config.Name, h.Owner, h.Config.LockAtLeastFor.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", h.Config.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOwner
	}

	return nil
}
