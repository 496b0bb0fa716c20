package models

import (
	"time"
)

// LockRecord represents a claim on a cluster-wide lock
type LockRecord struct {
	Name      string    `db:"name" bson:"_id"`
	LockUntil time.Time `db:"lock_until" bson:"lockUntil"`
	LockedAt  time.Time `db:"locked_at" bson:"lockedAt"`
	LockedBy  string    `db:"locked_by" bson:"lockedBy"`
}

// IsExpired reports whether the claim no longer holds at the given instant
func (r *LockRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.LockUntil)
}
