package models

import (
	"encoding/json"
	"time"
)

// TriggerPayload is the normalized inbound payload that seeded a run: parsed
// body, query parameters and headers of the triggering request or event.
type TriggerPayload struct {
	Body    map[string]any `json:"body,omitempty"`
	Query   map[string]any `json:"query,omitempty"`
	Headers map[string]any `json:"headers,omitempty"`
}

// ExecutionContext is the ephemeral per-run state handed to node handlers and
// the variable resolver. It lives for the duration of one workflow execution
// and is never persisted. Action handlers may extend it (a created deal is
// inserted for later nodes).
type ExecutionContext struct {
	RunID        string
	AutomationID string
	TeamID       string
	Contact      *Contact
	Trigger      TriggerPayload
	Deal         *Deal
	Profile      *Profile
	Extra        map[string]any
}

// TemplateData builds the map the variable resolver walks. Keys mirror the
// paths users write in node configs: contact.*, trigger.body.*, deal.*,
// profile.*.
func (c *ExecutionContext) TemplateData() map[string]any {
	data := map[string]any{
		"trigger": map[string]any{
			"body":    c.Trigger.Body,
			"query":   c.Trigger.Query,
			"headers": c.Trigger.Headers,
		},
	}

	if c.Contact != nil {
		data["contact"] = asMap(c.Contact)
	}

	if c.Deal != nil {
		data["deal"] = asMap(c.Deal)
	}

	if c.Profile != nil {
		data["profile"] = asMap(c.Profile)
	}

	for k, v := range c.Extra {
		data[k] = v
	}

	return data
}

// SetDeal inserts the deal into the context for downstream nodes.
func (c *ExecutionContext) SetDeal(deal *Deal) {
	c.Deal = deal
}

// asMap converts a struct into its JSON map form so templates can walk it by
// field tag names.
func asMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}

	return out
}

// NodeOutcome is the result of executing one node. Handle selects the
// outgoing branch for logic nodes ("" follows the default edge).
type NodeOutcome struct {
	Handle string
	Data   map[string]any
}

// RunStatus is the recorded status of a node visit or a whole run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// NodeRun is one append-only audit row per node visited per run.
type NodeRun struct {
	RunID        string    `json:"run_id"`
	AutomationID string    `json:"automation_id"`
	NodeID       string    `json:"node_id"`
	TeamID       string    `json:"team_id"`
	Status       RunStatus `json:"status"`
	Details      string    `json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AutomationRun is the summary row for one end-to-end traversal.
type AutomationRun struct {
	ID           string    `json:"id"`
	AutomationID string    `json:"automation_id"`
	TeamID       string    `json:"team_id"`
	ContactID    string    `json:"contact_id,omitempty"`
	StartNodeID  string    `json:"start_node_id"`
	Status       RunStatus `json:"status"`
	Steps        int       `json:"steps"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
