// Package web provides the HTTP handlers and request types of the management
// API.
package web

import "github.com/tidecrm/tide/pkg/models"

// CreateAutomationRequest represents the request body for creating a new
// automation. The graph is supplied wholesale; a missing status defaults to
// draft.
type CreateAutomationRequest struct {
	TeamID string                   `json:"team_id" validate:"required"`
	Name   string                   `json:"name"    validate:"required,min=3"`
	Status models.AutomationStatus  `json:"status,omitempty"  validate:"omitempty,oneof=active paused draft"`
	Nodes  []*models.AutomationNode `json:"nodes"`
	Edges  []*models.Edge           `json:"edges"`
}

// UpdateAutomationRequest represents the request body for updating an
// automation. Name is optional; nodes and edges, when present, replace the
// graph wholesale.
type UpdateAutomationRequest struct {
	Name  *string                  `json:"name,omitempty" validate:"omitempty,min=3"`
	Nodes []*models.AutomationNode `json:"nodes,omitempty"`
	Edges []*models.Edge           `json:"edges,omitempty"`
}

// CreateContactRequest represents the request body for creating or updating
// a contact.
type CreateContactRequest struct {
	TeamID       string         `json:"team_id" validate:"required"`
	Name         string         `json:"name"`
	Phone        string         `json:"phone"   validate:"required"`
	Email        string         `json:"email,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}
