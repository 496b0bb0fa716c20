package models

import (
	"time"
)

// JobRunOutcome is the recorded result of a lock-protected job execution
type JobRunOutcome string

const (
	JobRunSucceeded JobRunOutcome = "succeeded"
	JobRunFailed    JobRunOutcome = "failed"
)

// JobRun represents one execution of a scheduled job that obtained its lock
type JobRun struct {
	ID               int64                  `db:"id"`
	LockName         string                 `db:"lock_name"`
	LockedBy         string                 `db:"locked_by"`
	StartedAt        time.Time              `db:"started_at"`
	FinishedAt       time.Time              `db:"finished_at"`
	Outcome          JobRunOutcome          `db:"outcome"`
	ErrorMessage     *string                `db:"error_message"`
	ExecutionSummary map[string]interface{} `db:"execution_summary"`
}

// Duration returns how long the job body ran
func (r *JobRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
