package infrastructure

import (
	log "github.com/sirupsen/logrus"

	"eodmarker/events"
)

// NoopEventPublisher drops events. Used when NATS is not configured.
type NoopEventPublisher struct{}

// NewNoopEventPublisher creates a new no-op publisher
func NewNoopEventPublisher() *NoopEventPublisher {
	return &NoopEventPublisher{}
}

// Publish discards the event
func (p *NoopEventPublisher) Publish(event events.Event) error {
	log.WithField("eventType", event.Type()).Debug("Event publishing disabled, dropping event")
	return nil
}
