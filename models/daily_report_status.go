package models

import (
	"time"
)

// StatusFlag is the status recorded for a business date
type StatusFlag string

const (
	// StatusFlagEOD marks end-of-day completion. It is terminal.
	StatusFlagEOD StatusFlag = "EOD"
	// StatusFlagPending is a non-terminal status written by operators
	StatusFlagPending StatusFlag = "PENDING"
)

// IsTerminal returns true if no further transition is allowed from this flag
func (f StatusFlag) IsTerminal() bool {
	return f == StatusFlagEOD
}

// DailyReportStatus represents the status row for a single business date
type DailyReportStatus struct {
	BusinessDate BusinessDate `db:"business_date"`
	StatusFlag   StatusFlag   `db:"status_flag"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// IsMarked returns true if end-of-day has been recorded for the date
func (s *DailyReportStatus) IsMarked() bool {
	return s != nil && s.StatusFlag.IsTerminal()
}

// MarkOutcome describes what an EOD mark attempt did to the store
type MarkOutcome string

const (
	MarkOutcomeCreated       MarkOutcome = "created"
	MarkOutcomeUpdated       MarkOutcome = "updated"
	MarkOutcomeAlreadyMarked MarkOutcome = "already_marked"
)

// Changed returns true if the attempt wrote to the store
func (o MarkOutcome) Changed() bool {
	return o == MarkOutcomeCreated || o == MarkOutcomeUpdated
}
