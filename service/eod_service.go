package service

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"eodmarker/events"
	"eodmarker/models"
)

type eodService struct {
	uowFactory UnitOfWorkFactory
	reader     StatusStore
	clock      *BusinessClock
}

// NewEODService creates a new EOD marking service.
// Writes go through a unit of work; reads use the reader directly.
func NewEODService(uowFactory UnitOfWorkFactory, reader StatusStore, clock *BusinessClock) EODService {
	return &eodService{
		uowFactory: uowFactory,
		reader:     reader,
		clock:      clock,
	}
}

// MarkBusinessDate ensures the date carries the EOD flag.
// Marking is idempotent: a date already in EOD is reported as already marked
// and its timestamp is not touched.
func (s *eodService) MarkBusinessDate(ctx context.Context, date models.BusinessDate) (models.MarkOutcome, error) {
	if date.IsZero() {
		return "", fmt.Errorf("%w: business date is required", ErrMarkingFailed)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return "", fmt.Errorf("%w: failed to begin transaction: %w", ErrMarkingFailed, err)
	}
	defer func() {
		_ = uow.Rollback()
	}()

	now := s.clock.Now()
	outcome, record, err := uow.StatusRepository().MarkEOD(ctx, date, now)
	if err != nil {
		return "", fmt.Errorf("%w: failed to mark %s: %w", ErrMarkingFailed, date, err)
	}

	logger := log.WithFields(log.Fields{
		"businessDate": date.String(),
		"outcome":      outcome,
	})

	if !outcome.Changed() {
		logger.Info("EOD already marked, nothing to do")
		return outcome, nil
	}

	markedAt := now
	if record != nil {
		markedAt = record.UpdatedAt
	}
	if err := uow.EventBus().Publish(events.EODMarkedEvent{
		BusinessDate: date,
		Outcome:      outcome,
		MarkedAt:     markedAt,
	}); err != nil {
		return "", fmt.Errorf("%w: failed to publish event: %w", ErrMarkingFailed, err)
	}

	if err := uow.Commit(); err != nil {
		return "", fmt.Errorf("%w: failed to commit: %w", ErrMarkingFailed, err)
	}

	logger.Info("Marked business date as EOD")
	return outcome, nil
}

// MarkCurrentBusinessDate marks today's business date
func (s *eodService) MarkCurrentBusinessDate(ctx context.Context) (models.BusinessDate, models.MarkOutcome, error) {
	today := s.clock.Today()
	outcome, err := s.MarkBusinessDate(ctx, today)
	return today, outcome, err
}

// IsMarkedToday reports whether today's business date is in EOD
func (s *eodService) IsMarkedToday(ctx context.Context) (bool, error) {
	marked, err := s.reader.ExistsMarked(ctx, s.clock.Today())
	if err != nil {
		return false, fmt.Errorf("failed to check EOD status: %w", err)
	}
	return marked, nil
}

// Status returns the current business date and its EOD state.
// The date and the current time are taken from a single clock reading.
func (s *eodService) Status(ctx context.Context) (*StatusView, error) {
	now := s.clock.Now()
	today := models.BusinessDateOf(now)

	record, err := s.reader.FindByDate(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to get status for %s: %w", today, err)
	}

	return &StatusView{
		BusinessDate: today,
		IsMarked:     record.IsMarked(),
		CurrentTime:  now,
		Record:       record,
	}, nil
}
