package infrastructure

import (
	"fmt"

	"eodmarker/events"
)

// EventStreamName is the JetStream stream carrying EOD events
const EventStreamName = "eod_events"

// Subjects for EOD events
const (
	SubjectEODMarked       = "eod.marked"
	SubjectEODJobCompleted = "eod.job.completed"
)

// MapEventToSubject converts an event to its NATS subject
func MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeEODMarked:
		return SubjectEODMarked
	case events.EventTypeEODJobCompleted:
		return SubjectEODJobCompleted
	default:
		return fmt.Sprintf("eod.unknown.%s", event.Type())
	}
}

// AllSubjects lists the subjects the event stream must capture
func AllSubjects() []string {
	return []string{SubjectEODMarked, SubjectEODJobCompleted}
}
