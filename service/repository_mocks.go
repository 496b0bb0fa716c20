package service

import (
	"context"
	"time"

	"eodmarker/events"
	"eodmarker/models"

	"github.com/stretchr/testify/mock"
)

// MockStatusStore is a mock implementation of StatusStore
type MockStatusStore struct {
	mock.Mock
}

func (m *MockStatusStore) FindByDate(ctx context.Context, date models.BusinessDate) (*models.DailyReportStatus, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DailyReportStatus), args.Error(1)
}

func (m *MockStatusStore) ExistsMarked(ctx context.Context, date models.BusinessDate) (bool, error) {
	args := m.Called(ctx, date)
	return args.Bool(0), args.Error(1)
}

func (m *MockStatusStore) Upsert(ctx context.Context, record *models.DailyReportStatus) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStatusStore) MarkEOD(ctx context.Context, date models.BusinessDate, at time.Time) (models.MarkOutcome, *models.DailyReportStatus, error) {
	args := m.Called(ctx, date, at)
	var record *models.DailyReportStatus
	if args.Get(1) != nil {
		record = args.Get(1).(*models.DailyReportStatus)
	}
	return args.Get(0).(models.MarkOutcome), record, args.Error(2)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockUnitOfWork is a mock implementation of UnitOfWork
type MockUnitOfWork struct {
	mock.Mock
	statusRepo StatusStore
	eventBus   EventPublisher
}

// SetRepositories wires the repositories returned by the getters
func (m *MockUnitOfWork) SetRepositories(statusRepo StatusStore, eventBus EventPublisher) {
	m.statusRepo = statusRepo
	m.eventBus = eventBus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) StatusRepository() StatusStore {
	return m.statusRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
