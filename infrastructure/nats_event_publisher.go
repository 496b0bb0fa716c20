package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"eodmarker/events"
)

// EventEnvelope wraps every published event
type EventEnvelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"sourceService"`
	SourceID      string          `json:"sourceId"`
	Payload       json.RawMessage `json:"payload"`
}

// natsPublisher is the subset of NATSClient the event publisher needs
type natsPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

// MessageCounter counts published messages
type MessageCounter interface {
	RecordNATSMessagePublished(eventType string)
}

// NATSEventPublisher implements the EventPublisher interface using NATS
type NATSEventPublisher struct {
	client     natsPublisher
	instanceID string
	timeout    time.Duration
	counter    MessageCounter
}

// NewNATSEventPublisher creates a new NATS event publisher
func NewNATSEventPublisher(client natsPublisher, instanceID string, counter MessageCounter) *NATSEventPublisher {
	return &NATSEventPublisher{
		client:     client,
		instanceID: instanceID,
		timeout:    5 * time.Second,
		counter:    counter,
	}
}

// Publish publishes an event to NATS on its mapped subject
func (p *NATSEventPublisher) Publish(event events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	subject := MapEventToSubject(event)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     string(event.Type()),
		Timestamp:     time.Now().UTC(),
		SourceService: "eodmarker",
		SourceID:      p.instanceID,
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.client.Publish(ctx, subject, data, envelope.EventID); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	if p.counter != nil {
		p.counter.RecordNATSMessagePublished(envelope.EventType)
	}

	log.WithFields(log.Fields{
		"eventType": envelope.EventType,
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")

	return nil
}
