package infrastructure

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"eodmarker/events"
	"eodmarker/service"
)

// TransactionalPublisher holds events until flush, so events are only
// published once the surrounding transaction has committed
type TransactionalPublisher struct {
	realPublisher service.EventPublisher
	mu            sync.Mutex
	pending       []events.Event
}

// NewTransactionalPublisher creates a new transactional publisher
func NewTransactionalPublisher(realPublisher service.EventPublisher) *TransactionalPublisher {
	return &TransactionalPublisher{
		realPublisher: realPublisher,
	}
}

// Publish queues the event
func (p *TransactionalPublisher) Publish(event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"pendingCount": len(p.pending),
	}).Debug("Queueing event until commit")

	p.pending = append(p.pending, event)
	return nil
}

// Flush publishes all pending events. A failed event is logged and does
// not stop the rest; the queue is cleared either way.
func (p *TransactionalPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for i, event := range pending {
		if err := ctx.Err(); err != nil {
			log.WithField("dropped", len(pending)-i).Warn("Context done before flush completed")
			return err
		}
		if err := p.realPublisher.Publish(event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to publish event during flush")
		}
	}

	return nil
}

// Discard drops all pending events
func (p *TransactionalPublisher) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()

	log.WithField("discardedEventCount", len(p.pending)).Debug("Discarding pending events")
	p.pending = nil
}
