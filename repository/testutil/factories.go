package testutil

import (
	"time"

	"eodmarker/models"
)

// CreateTestStatus creates a status record for the given date and flag
func CreateTestStatus(date models.BusinessDate, flag models.StatusFlag) *models.DailyReportStatus {
	return &models.DailyReportStatus{
		BusinessDate: date,
		StatusFlag:   flag,
		UpdatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

// CreateTestJobRun creates a successful job run finishing one second after start
func CreateTestJobRun(lockName string, startedAt time.Time) *models.JobRun {
	return &models.JobRun{
		LockName:   lockName,
		LockedBy:   "test-instance:00000000-0000-0000-0000-000000000000",
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(time.Second),
		Outcome:    models.JobRunSucceeded,
		ExecutionSummary: map[string]interface{}{
			"businessDate": models.BusinessDateOf(startedAt).String(),
			"outcome":      string(models.MarkOutcomeCreated),
		},
	}
}

// CreateTestFailedJobRun creates a failed job run with the given message
func CreateTestFailedJobRun(lockName string, startedAt time.Time, message string) *models.JobRun {
	run := CreateTestJobRun(lockName, startedAt)
	run.Outcome = models.JobRunFailed
	run.ErrorMessage = &message
	run.ExecutionSummary = nil
	return run
}
