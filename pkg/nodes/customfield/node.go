// Package customfield provides the set_custom_field action handler.
package customfield

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/tidecrm/tide/pkg/template"
)

// Node writes one custom field on the contact in context. The value is
// resolved against the run's template data, so it can copy trigger payload
// values onto the contact.
type Node struct {
	config models.SetCustomFieldConfig
	store  persistence.ContactRepository
	logger *slog.Logger
}

func NewNode(config models.SetCustomFieldConfig, store persistence.ContactRepository, logger *slog.Logger) (*Node, error) {
	if config.Field == "" {
		return nil, errors.New("set_custom_field requires a field name")
	}

	if store == nil {
		return nil, errors.New("set_custom_field requires a contact repository")
	}

	return &Node{config: config, store: store, logger: logger}, nil
}

func (n *Node) Type() string {
	return models.NodeTypeSetCustomField
}

func (n *Node) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	if executionCtx.Contact == nil {
		return nil, errors.New("set_custom_field requires a contact in context")
	}

	value := template.Resolve(n.config.Value, executionCtx.TemplateData())

	executionCtx.Contact.SetCustomField(n.config.Field, value)

	err := n.store.SaveContact(ctx, executionCtx.Contact)
	if err != nil {
		return nil, err
	}

	return &models.NodeOutcome{Data: map[string]any{"field": n.config.Field, "value": value}}, nil
}

// Factory builds set_custom_field handlers.
type Factory struct{}

func (f *Factory) ID() string {
	return models.NodeTypeSetCustomField
}

func (f *Factory) Create(config map[string]any, deps protocol.Dependencies) (protocol.NodeHandler, error) {
	var cfg models.SetCustomFieldConfig

	err := models.NodeData{Type: models.NodeTypeSetCustomField, Config: config}.DecodeConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return NewNode(cfg, deps.Persistence, deps.Logger)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"field"},
		"properties": map[string]any{
			"field": map[string]any{"type": "string", "minLength": 1},
			"value": map[string]any{"type": "string"},
		},
	}
}
