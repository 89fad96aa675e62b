// Package eventbus provides the message bus used to publish workflow facts and ingest business events.
package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/automation/pkg/events"
	"github.com/dukex/automation/pkg/models"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// FactPublisher delivers the outbox facts returned by workflow mutations.
type FactPublisher interface {
	PublishFacts(ctx context.Context, facts []models.Fact) error
}

// BusFactPublisher publishes each fact as a WorkflowFact event keyed by workflow id,
// so facts of one workflow keep their order on partitioned transports.
type BusFactPublisher struct {
	bus EventBus
}

func NewFactPublisher(bus EventBus) *BusFactPublisher {
	return &BusFactPublisher{bus: bus}
}

func (p *BusFactPublisher) PublishFacts(ctx context.Context, facts []models.Fact) error {
	var errs []error

	for _, fact := range facts {
		err := p.bus.Publish(ctx, fact.WorkflowID, events.NewWorkflowFact(p.bus.GenerateID(), fact))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to publish %s fact for workflow %s: %w", fact.Type, fact.WorkflowID, err))
		}
	}

	return errors.Join(errs...)
}

// PublishBusinessEvent puts an incoming business event on the bus for asynchronous dispatch.
func PublishBusinessEvent(ctx context.Context, bus EventBus, event models.Event) error {
	if event.ID == "" {
		event.ID = bus.GenerateID()
	}

	return bus.Publish(ctx, event.TenantID, events.NewBusinessEvent(bus.GenerateID(), event))
}
