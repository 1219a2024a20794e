// Package messaging abstracts the outbound message channel used by the
// send_message and send_interactive actions.
package messaging

import "context"

// Button is one quick-reply option on an interactive message. The payload is
// what comes back on a button_clicked trigger.
type Button struct {
	Payload string `json:"payload"`
	Label   string `json:"label"`
}

// Sender delivers messages to a contact through the active channel provider.
type Sender interface {
	SendText(ctx context.Context, teamID, contactPhone, body string) error
	SendInteractive(ctx context.Context, teamID, contactPhone, body string, buttons []Button) error
}
