// Package tag provides the add_tag and remove_tag action handlers.
package tag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tidecrm/tide/pkg/eventbus"
	"github.com/tidecrm/tide/pkg/events"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/tidecrm/tide/pkg/template"
)

// AddNode adds a tag to the contact in context. When the tag is newly added
// it publishes a tag.added event, which cascades into new_contact_with_tag
// automations.
type AddNode struct {
	config   models.AddTagConfig
	store    persistence.ContactRepository
	eventBus eventbus.EventPublisher
	logger   *slog.Logger
}

func NewAddNode(config models.AddTagConfig, store persistence.ContactRepository, eventBus eventbus.EventPublisher, logger *slog.Logger) (*AddNode, error) {
	if config.Tag == "" {
		return nil, errors.New("add_tag requires a tag")
	}

	if store == nil {
		return nil, errors.New("add_tag requires a contact repository")
	}

	return &AddNode{config: config, store: store, eventBus: eventBus, logger: logger}, nil
}

func (n *AddNode) Type() string {
	return models.NodeTypeAddTag
}

func (n *AddNode) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	if executionCtx.Contact == nil {
		return nil, errors.New("add_tag requires a contact in context")
	}

	tag := template.Resolve(n.config.Tag, executionCtx.TemplateData())

	added := executionCtx.Contact.AddTag(tag)
	if !added {
		return &models.NodeOutcome{Data: map[string]any{"tag": tag, "added": false}}, nil
	}

	err := n.store.SaveContact(ctx, executionCtx.Contact)
	if err != nil {
		return nil, err
	}

	if n.eventBus != nil {
		ownerUserID := ""
		if executionCtx.Profile != nil {
			ownerUserID = executionCtx.Profile.OwnerUserID
		}

		event := events.TagAdded{
			BaseEvent: events.NewBaseEvent(events.TagAddedEvent, ownerUserID),
			ContactID: executionCtx.Contact.ID,
			Tag:       tag,
		}

		err = n.eventBus.Publish(ctx, executionCtx.Contact.ID, event)
		if err != nil {
			n.logger.ErrorContext(ctx, "failed to publish tag.added event", "error", err)
		}
	}

	return &models.NodeOutcome{Data: map[string]any{"tag": tag, "added": true}}, nil
}

// RemoveNode removes a tag from the contact in context. Removing an absent
// tag is a no-op.
type RemoveNode struct {
	config models.RemoveTagConfig
	store  persistence.ContactRepository
	logger *slog.Logger
}

func NewRemoveNode(config models.RemoveTagConfig, store persistence.ContactRepository, logger *slog.Logger) (*RemoveNode, error) {
	if config.Tag == "" {
		return nil, errors.New("remove_tag requires a tag")
	}

	if store == nil {
		return nil, errors.New("remove_tag requires a contact repository")
	}

	return &RemoveNode{config: config, store: store, logger: logger}, nil
}

func (n *RemoveNode) Type() string {
	return models.NodeTypeRemoveTag
}

func (n *RemoveNode) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	if executionCtx.Contact == nil {
		return nil, errors.New("remove_tag requires a contact in context")
	}

	tag := template.Resolve(n.config.Tag, executionCtx.TemplateData())

	removed := executionCtx.Contact.RemoveTag(tag)
	if removed {
		err := n.store.SaveContact(ctx, executionCtx.Contact)
		if err != nil {
			return nil, err
		}
	}

	return &models.NodeOutcome{Data: map[string]any{"tag": tag, "removed": removed}}, nil
}

// AddFactory builds add_tag handlers.
type AddFactory struct{}

func (f *AddFactory) ID() string {
	return models.NodeTypeAddTag
}

func (f *AddFactory) Create(config map[string]any, deps protocol.Dependencies) (protocol.NodeHandler, error) {
	var cfg models.AddTagConfig

	err := models.NodeData{Type: models.NodeTypeAddTag, Config: config}.DecodeConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return NewAddNode(cfg, deps.Persistence, deps.EventBus, deps.Logger)
}

func (f *AddFactory) Schema() map[string]any {
	return tagSchema()
}

// RemoveFactory builds remove_tag handlers.
type RemoveFactory struct{}

func (f *RemoveFactory) ID() string {
	return models.NodeTypeRemoveTag
}

func (f *RemoveFactory) Create(config map[string]any, deps protocol.Dependencies) (protocol.NodeHandler, error) {
	var cfg models.RemoveTagConfig

	err := models.NodeData{Type: models.NodeTypeRemoveTag, Config: config}.DecodeConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return NewRemoveNode(cfg, deps.Persistence, deps.Logger)
}

func (f *RemoveFactory) Schema() map[string]any {
	return tagSchema()
}

func tagSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"tag"},
		"properties": map[string]any{
			"tag": map[string]any{"type": "string", "minLength": 1},
		},
	}
}
