package events

import "github.com/tidecrm/tide/pkg/models"

// MessageReceived is published when an inbound chat message arrives on a
// channel. ButtonPayload is set for button/interactive replies, Body for text
// messages.
type MessageReceived struct {
	BaseEvent

	ContactID     string `json:"contact_id"`
	Body          string `json:"body,omitempty"`
	ButtonPayload string `json:"button_payload,omitempty"`
}

func (e MessageReceived) GetType() EventType {
	return MessageReceivedEvent
}

// ContactCreated is published when a new contact record is created.
type ContactCreated struct {
	BaseEvent

	ContactID string `json:"contact_id"`
}

func (e ContactCreated) GetType() EventType {
	return ContactCreatedEvent
}

// TagAdded is published when a tag is added to a contact.
type TagAdded struct {
	BaseEvent

	ContactID string `json:"contact_id"`
	Tag       string `json:"tag"`
}

func (e TagAdded) GetType() EventType {
	return TagAddedEvent
}

// DealCreated is published when a deal record is created.
type DealCreated struct {
	BaseEvent

	DealID    string `json:"deal_id"`
	ContactID string `json:"contact_id"`
}

func (e DealCreated) GetType() EventType {
	return DealCreatedEvent
}

// DealStageChanged is published when a deal moves to a new pipeline stage.
type DealStageChanged struct {
	BaseEvent

	DealID     string `json:"deal_id"`
	ContactID  string `json:"contact_id"`
	NewStageID string `json:"new_stage_id"`
}

func (e DealStageChanged) GetType() EventType {
	return DealStageChangedEvent
}

// Run lifecycle events published by the executor for observability consumers.

type RunStarted struct {
	BaseEvent

	RunID        string `json:"run_id"`
	AutomationID string `json:"automation_id"`
	StartNodeID  string `json:"start_node_id"`
	ContactID    string `json:"contact_id,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	RunID        string           `json:"run_id"`
	AutomationID string           `json:"automation_id"`
	Status       models.RunStatus `json:"status"`
	Steps        int              `json:"steps"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type RunFailed struct {
	BaseEvent

	RunID        string `json:"run_id"`
	AutomationID string `json:"automation_id"`
	Error        string `json:"error"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}
