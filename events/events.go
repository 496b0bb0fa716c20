package events

import (
	"time"

	"eodmarker/models"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeEODMarked       EventType = "eod_marked"
	EventTypeEODJobCompleted EventType = "eod_job_completed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// EODMarkedEvent is emitted after a business date transitions to EOD
type EODMarkedEvent struct {
	BusinessDate models.BusinessDate `json:"businessDate"`
	Outcome      models.MarkOutcome  `json:"outcome"`
	MarkedAt     time.Time           `json:"markedAt"`
}

func (e EODMarkedEvent) Type() EventType {
	return EventTypeEODMarked
}

// EODJobCompletedEvent is emitted after every scheduled firing that did not
// end in lock denial
type EODJobCompletedEvent struct {
	LockName   string    `json:"lockName"`
	InstanceID string    `json:"instanceId"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (e EODJobCompletedEvent) Type() EventType {
	return EventTypeEODJobCompleted
}
