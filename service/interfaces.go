package service

import (
	"context"
	"time"

	"eodmarker/events"
	"eodmarker/models"
)

// StatusStore defines the interface for daily report status data access
type StatusStore interface {
	// FindByDate retrieves the status record for a business date, or nil if none exists
	FindByDate(ctx context.Context, date models.BusinessDate) (*models.DailyReportStatus, error)

	// ExistsMarked returns true if a record exists for the date with the EOD flag
	ExistsMarked(ctx context.Context, date models.BusinessDate) (bool, error)

	// Upsert inserts the record, or updates it in place if one exists for the
	// date and is not already EOD
	Upsert(ctx context.Context, record *models.DailyReportStatus) error

	// MarkEOD atomically inserts an EOD record or promotes a non-EOD record to EOD.
	// A record that is already EOD is left untouched and the returned record is nil.
	MarkEOD(ctx context.Context, date models.BusinessDate, at time.Time) (models.MarkOutcome, *models.DailyReportStatus, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event) error
}

// TransactionalEventPublisher holds events until the surrounding transaction finishes
type TransactionalEventPublisher interface {
	EventPublisher

	// Flush publishes all pending events
	Flush(ctx context.Context) error

	// Discard drops all pending events
	Discard()
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction and discards pending events
	Rollback() error

	// Repository getters
	StatusRepository() StatusStore
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// EODMarker marks business dates as end-of-day complete
type EODMarker interface {
	// MarkBusinessDate ensures the date carries the EOD flag exactly once
	MarkBusinessDate(ctx context.Context, date models.BusinessDate) (models.MarkOutcome, error)

	// MarkCurrentBusinessDate marks today's business date
	MarkCurrentBusinessDate(ctx context.Context) (models.BusinessDate, models.MarkOutcome, error)
}

// StatusQuery exposes the read side of EOD state
type StatusQuery interface {
	// Status returns the current business date and its EOD state
	Status(ctx context.Context) (*StatusView, error)
}

// EODService is the write and read side of EOD state
type EODService interface {
	EODMarker
	StatusQuery

	// IsMarkedToday reports whether today's business date is in EOD
	IsMarkedToday(ctx context.Context) (bool, error)
}

// StatusView is the read model served by StatusQuery
type StatusView struct {
	BusinessDate models.BusinessDate
	IsMarked     bool
	CurrentTime  time.Time
	Record       *models.DailyReportStatus
}
