// Package sendmessage provides the send_message and send_interactive action
// handlers.
package sendmessage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tidecrm/tide/pkg/messaging"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/tidecrm/tide/pkg/template"
)

// TextNode sends a plain text message to the contact in context. The body is
// resolved against the run's template data before sending.
type TextNode struct {
	config models.SendMessageConfig
	sender messaging.Sender
	logger *slog.Logger
}

func NewTextNode(config models.SendMessageConfig, sender messaging.Sender, logger *slog.Logger) (*TextNode, error) {
	if config.Text == "" {
		return nil, errors.New("send_message requires message text")
	}

	if sender == nil {
		return nil, errors.New("send_message requires a message sender")
	}

	return &TextNode{config: config, sender: sender, logger: logger}, nil
}

func (n *TextNode) Type() string {
	return models.NodeTypeSendMessage
}

func (n *TextNode) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	if executionCtx.Contact == nil {
		return nil, errors.New("send_message requires a contact in context")
	}

	body := template.Resolve(n.config.Text, executionCtx.TemplateData())

	err := n.sender.SendText(ctx, executionCtx.TeamID, executionCtx.Contact.Phone, body)
	if err != nil {
		return nil, err
	}

	return &models.NodeOutcome{Data: map[string]any{"body": body}}, nil
}

// InteractiveNode sends a message with quick-reply buttons. Button payloads
// are sent verbatim; they come back as button_clicked trigger keys.
type InteractiveNode struct {
	config models.SendInteractiveConfig
	sender messaging.Sender
	logger *slog.Logger
}

func NewInteractiveNode(config models.SendInteractiveConfig, sender messaging.Sender, logger *slog.Logger) (*InteractiveNode, error) {
	if config.Text == "" {
		return nil, errors.New("send_interactive requires message text")
	}

	if len(config.Buttons) == 0 {
		return nil, errors.New("send_interactive requires at least one button")
	}

	if sender == nil {
		return nil, errors.New("send_interactive requires a message sender")
	}

	return &InteractiveNode{config: config, sender: sender, logger: logger}, nil
}

func (n *InteractiveNode) Type() string {
	return models.NodeTypeSendInteractive
}

func (n *InteractiveNode) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	if executionCtx.Contact == nil {
		return nil, errors.New("send_interactive requires a contact in context")
	}

	data := executionCtx.TemplateData()
	body := template.Resolve(n.config.Text, data)

	buttons := make([]messaging.Button, 0, len(n.config.Buttons))
	for _, button := range n.config.Buttons {
		buttons = append(buttons, messaging.Button{
			Payload: button.Payload,
			Label:   template.Resolve(button.Label, data),
		})
	}

	err := n.sender.SendInteractive(ctx, executionCtx.TeamID, executionCtx.Contact.Phone, body, buttons)
	if err != nil {
		return nil, err
	}

	return &models.NodeOutcome{Data: map[string]any{"body": body}}, nil
}

// TextFactory builds send_message handlers.
type TextFactory struct{}

func (f *TextFactory) ID() string {
	return models.NodeTypeSendMessage
}

func (f *TextFactory) Create(config map[string]any, deps protocol.Dependencies) (protocol.NodeHandler, error) {
	var cfg models.SendMessageConfig

	err := models.NodeData{Type: models.NodeTypeSendMessage, Config: config}.DecodeConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return NewTextNode(cfg, deps.Messaging, deps.Logger)
}

func (f *TextFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"text"},
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "minLength": 1},
		},
	}
}

// InteractiveFactory builds send_interactive handlers.
type InteractiveFactory struct{}

func (f *InteractiveFactory) ID() string {
	return models.NodeTypeSendInteractive
}

func (f *InteractiveFactory) Create(config map[string]any, deps protocol.Dependencies) (protocol.NodeHandler, error) {
	var cfg models.SendInteractiveConfig

	err := models.NodeData{Type: models.NodeTypeSendInteractive, Config: config}.DecodeConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return NewInteractiveNode(cfg, deps.Messaging, deps.Logger)
}

func (f *InteractiveFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"text", "buttons"},
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "minLength": 1},
			"buttons": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":     "object",
					"required": []any{"payload", "label"},
					"properties": map[string]any{
						"payload": map[string]any{"type": "string", "minLength": 1},
						"label":   map[string]any{"type": "string", "minLength": 1},
					},
				},
			},
		},
	}
}
