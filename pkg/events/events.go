// Package events defines the messages exchanged over the event bus.
package events

import (
	"time"

	"github.com/dukex/automation/pkg/models"
)

type EventType string

const Topic = "automation.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// WorkflowFactEvent carries an outbox fact returned by a workflow mutation or execution.
	WorkflowFactEvent EventType = "workflow.fact"

	// BusinessEventReceived carries an incoming business event to be dispatched.
	BusinessEventReceived EventType = "business.event"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TenantID  string    `json:"tenant_id"`
}

func NewBaseEvent(id string, eventType EventType, tenantID string, timestamp time.Time) BaseEvent {
	return BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: timestamp,
		TenantID:  tenantID,
	}
}

type WorkflowFact struct {
	BaseEvent

	Fact models.Fact `json:"fact"`
}

func (WorkflowFact) GetType() EventType {
	return WorkflowFactEvent
}

func NewWorkflowFact(id string, fact models.Fact) WorkflowFact {
	return WorkflowFact{
		BaseEvent: NewBaseEvent(id, WorkflowFactEvent, fact.TenantID, fact.OccurredAt),
		Fact:      fact,
	}
}

type BusinessEvent struct {
	BaseEvent

	Event models.Event `json:"event"`
}

func (BusinessEvent) GetType() EventType {
	return BusinessEventReceived
}

func NewBusinessEvent(id string, event models.Event) BusinessEvent {
	return BusinessEvent{
		BaseEvent: NewBaseEvent(id, BusinessEventReceived, event.TenantID, event.OccurredAt),
		Event:     event,
	}
}
