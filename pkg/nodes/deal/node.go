// Package deal provides the create_deal and move_deal_stage action handlers.
package deal

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

// CreateNode creates a deal for the contact in context and inserts it into
// the execution context for downstream nodes. A deal.created event is
// published so deal_created automations cascade.
type CreateNode struct {
	config   models.CreateDealConfig
	store    persistence.DealRepository
	eventBus eventbus.EventPublisher
	logger   *slog.Logger
}

func NewCreateNode(config models.CreateDealConfig, store persistence.DealRepository, eventBus eventbus.EventPublisher, logger *slog.Logger) (*CreateNode, error) {
	if config.PipelineID == "" || config.StageID == "" {
		return nil, errors.New("create_deal requires pipeline_id and stage_id")
	}

	if store == nil {
		return nil, errors.New("create_deal requires a deal repository")
	}

	return &CreateNode{config: config, store: store, eventBus: eventBus, logger: logger}, nil
}

func (n *CreateNode) Type() string {
	return models.NodeTypeCreateDeal
}

func (n *CreateNode) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	if executionCtx.Contact == nil {
		return nil, errors.New("create_deal requires a contact in context")
	}

	name := template.Resolve(n.config.Name, executionCtx.TemplateData())
	if name == "" {
		name = executionCtx.Contact.Name
	}

	deal := &models.Deal{
		TeamID:     executionCtx.TeamID,
		ContactID:  executionCtx.Contact.ID,
		Name:       name,
		PipelineID: n.config.PipelineID,
		StageID:    n.config.StageID,
		Status:     models.DealStatusOpen,
		Value:      n.config.Value,
	}

	err := n.store.SaveDeal(ctx, deal)
	if err != nil {
		return nil, err
	}

	executionCtx.SetDeal(deal)

	if n.eventBus != nil {
		event := events.DealCreated{
			BaseEvent: events.NewBaseEvent(events.DealCreatedEvent, ownerUserID(executionCtx)),
			DealID:    deal.ID,
			ContactID: deal.ContactID,
		}

		err = n.eventBus.Publish(ctx, deal.ID, event)
		if err != nil {
			n.logger.ErrorContext(ctx, "failed to publish deal.created event", "error", err)
		}
	}

	return &models.NodeOutcome{Data: map[string]any{"deal_id": deal.ID}}, nil
}

// MoveStageNode moves the deal in context to another stage and publishes a
// deal.stage.changed event.
type MoveStageNode struct {
	config   models.MoveDealStageConfig
	store    persistence.DealRepository
	eventBus eventbus.EventPublisher
	logger   *slog.Logger
}

func NewMoveStageNode(config models.MoveDealStageConfig, store persistence.DealRepository, eventBus eventbus.EventPublisher, logger *slog.Logger) (*MoveStageNode, error) {
	if config.StageID == "" {
		return nil, errors.New("move_deal_stage requires a stage_id")
	}

	if store == nil {
		return nil, errors.New("move_deal_stage requires a deal repository")
	}

	return &MoveStageNode{config: config, store: store, eventBus: eventBus, logger: logger}, nil
}

func (n *MoveStageNode) Type() string {
	return models.NodeTypeMoveDealStage
}

func (n *MoveStageNode) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	if executionCtx.Deal == nil {
		return nil, errors.New("move_deal_stage requires a deal in context")
	}

	deal := executionCtx.Deal
	if deal.StageID == n.config.StageID {
		return &models.NodeOutcome{Data: map[string]any{"stage_id": deal.StageID, "moved": false}}, nil
	}

	deal.StageID = n.config.StageID
	if n.config.PipelineID != "" {
		deal.PipelineID = n.config.PipelineID
	}

	err := n.store.SaveDeal(ctx, deal)
	if err != nil {
		return nil, err
	}

	if n.eventBus != nil {
		event := events.DealStageChanged{
			BaseEvent:  events.NewBaseEvent(events.DealStageChangedEvent, ownerUserID(executionCtx)),
			DealID:     deal.ID,
			ContactID:  deal.ContactID,
			NewStageID: deal.StageID,
		}

		err = n.eventBus.Publish(ctx, deal.ID, event)
		if err != nil {
			n.logger.ErrorContext(ctx, "failed to publish deal.stage.changed event", "error", err)
		}
	}

	return &models.NodeOutcome{Data: map[string]any{"stage_id": deal.StageID, "moved": true}}, nil
}

func ownerUserID(executionCtx *models.ExecutionContext) string {
	if executionCtx.Profile != nil {
		return executionCtx.Profile.OwnerUserID
	}

	return ""
}

// CreateFactory builds create_deal handlers.
type CreateFactory struct{}

func (f *CreateFactory) ID() string {
	return models.NodeTypeCreateDeal
}

func (f *CreateFactory) Create(config map[string]any, deps protocol.Dependencies) (protocol.NodeHandler, error) {
	var cfg models.CreateDealConfig

	err := models.NodeData{Type: models.NodeTypeCreateDeal, Config: config}.DecodeConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return NewCreateNode(cfg, deps.Persistence, deps.EventBus, deps.Logger)
}

func (f *CreateFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"pipeline_id", "stage_id"},
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"pipeline_id": map[string]any{"type": "string", "minLength": 1},
			"stage_id":    map[string]any{"type": "string", "minLength": 1},
			"value":       map[string]any{"type": "number"},
		},
	}
}

// MoveStageFactory builds move_deal_stage handlers.
type MoveStageFactory struct{}

func (f *MoveStageFactory) ID() string {
	return models.NodeTypeMoveDealStage
}

func (f *MoveStageFactory) Create(config map[string]any, deps protocol.Dependencies) (protocol.NodeHandler, error) {
	var cfg models.MoveDealStageConfig

	err := models.NodeData{Type: models.NodeTypeMoveDealStage, Config: config}.DecodeConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return NewMoveStageNode(cfg, deps.Persistence, deps.EventBus, deps.Logger)
}

func (f *MoveStageFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"stage_id"},
		"properties": map[string]any{
			"pipeline_id": map[string]any{"type": "string"},
			"stage_id":    map[string]any{"type": "string", "minLength": 1},
		},
	}
}
