package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eodmarker/events"
)

// MockNATSPublisher is a mock implementation of natsPublisher
type MockNATSPublisher struct {
	mock.Mock
}

func (m *MockNATSPublisher) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	args := m.Called(ctx, subject, data, msgID)
	return args.Error(0)
}

type countingCounter struct {
	counts map[string]int
}

func (c *countingCounter) RecordNATSMessagePublished(eventType string) {
	c.counts[eventType]++
}

func TestMapEventToSubject(t *testing.T) {
	tests := []struct {
		name     string
		event    events.Event
		expected string
	}{
		{name: "marked", event: events.EODMarkedEvent{}, expected: "eod.marked"},
		{name: "job completed", event: events.EODJobCompletedEvent{}, expected: "eod.job.completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapEventToSubject(tt.event))
		})
	}

	assert.ElementsMatch(t, []string{"eod.marked", "eod.job.completed"}, AllSubjects())
}

func TestNATSEventPublisher_Publish(t *testing.T) {
	client := new(MockNATSPublisher)
	counter := &countingCounter{counts: map[string]int{}}
	publisher := NewNATSEventPublisher(client, "node-1", counter)

	var envelope EventEnvelope
	client.On("Publish", mock.Anything, SubjectEODMarked, mock.Anything, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &envelope))
			assert.Equal(t, envelope.EventID, args.String(3))
		}).
		Return(nil)

	require.NoError(t, publisher.Publish(markedEvent(15)))

	assert.Equal(t, "eod_marked", envelope.EventType)
	assert.Equal(t, "eodmarker", envelope.SourceService)
	assert.Equal(t, "node-1", envelope.SourceID)
	assert.NotEmpty(t, envelope.EventID)

	var payload events.EODMarkedEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, markedEvent(15).BusinessDate, payload.BusinessDate)
	assert.True(t, markedEvent(15).MarkedAt.Equal(payload.MarkedAt))

	assert.Equal(t, 1, counter.counts["eod_marked"])
	client.AssertExpectations(t)
}

func TestNATSEventPublisher_PublishError(t *testing.T) {
	client := new(MockNATSPublisher)
	counter := &countingCounter{counts: map[string]int{}}
	publisher := NewNATSEventPublisher(client, "node-1", counter)

	client.On("Publish", mock.Anything, SubjectEODJobCompleted, mock.Anything, mock.Anything).Return(errors.New("timeout"))

	err := publisher.Publish(events.EODJobCompletedEvent{LockName: "eod-job", StartedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish event to NATS")
	assert.Zero(t, counter.counts["eod_job_completed"])
}
