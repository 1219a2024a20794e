// Package capture broadcasts webhook payloads captured in listening mode to
// whoever is watching the automation editor, without running the automation.
package capture

import "context"

// Sample is one captured payload for a webhook trigger node.
type Sample struct {
	AutomationID string         `json:"automation_id"`
	NodeID       string         `json:"node_id"`
	Body         map[string]any `json:"body"`
	Query        map[string]any `json:"query"`
	Headers      map[string]any `json:"headers"`
}

// Broadcaster fans captured samples out to live listeners. Publishing with no
// listeners is a no-op, not an error.
type Broadcaster interface {
	Publish(ctx context.Context, sample *Sample) error
	Subscribe(ctx context.Context, automationID string) (<-chan *Sample, func(), error)
	Close(ctx context.Context) error
}
