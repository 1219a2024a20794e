// Package events defines the business and run lifecycle events carried on the
// event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every event, business and run lifecycle alike. Consumers
// filter by the event_type metadata.
const Topic = "tide.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Business events. OwnerUserID identifies the team owner whose profile
	// the dispatcher resolves.
	MessageReceivedEvent  EventType = "contact.message.received"
	ContactCreatedEvent   EventType = "contact.created"
	TagAddedEvent         EventType = "contact.tag.added"
	DealCreatedEvent      EventType = "deal.created"
	DealStageChangedEvent EventType = "deal.stage.changed"

	// Run lifecycle events.
	RunStartedEvent  EventType = "automation.run.started"
	RunFinishedEvent EventType = "automation.run.finished"
	RunFailedEvent   EventType = "automation.run.failed"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	OwnerUserID string         `json:"owner_user_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, ownerUserID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		OwnerUserID: ownerUserID,
	}
}
