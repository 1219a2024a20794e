package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
	"github.com/tidecrm/tide/pkg/registry"
)

// ErrAutomationNotFound is returned when an automation is not found.
var ErrAutomationNotFound = persistence.ErrAutomationNotFound

// Automation is the service behind automation CRUD. Every save rebuilds the
// automation's trigger index rows and campaign schedules, keeping the
// one-row-per-trigger-node contract that the matcher and scheduler rely on.
type Automation struct {
	persistence persistence.Persistence
	validator   *validator.Validate
	registry    *registry.Registry
}

func NewAutomation(persistence persistence.Persistence, validator *validator.Validate, registry *registry.Registry) *Automation {
	return &Automation{
		persistence: persistence,
		validator:   validator,
		registry:    registry,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Automation) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Save validates and persists the automation, then rebuilds its trigger
// index rows and campaign schedules in lockstep with the new node list.
func (s *Automation) Save(ctx context.Context, automation *models.Automation) error {
	err := s.validate(automation)
	if err != nil {
		return err
	}

	if automation.Status == "" {
		automation.Status = models.AutomationStatusDraft
	}

	schedules, err := s.buildSchedules(automation)
	if err != nil {
		return err
	}

	err = s.persistence.SaveAutomation(ctx, automation)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	err = s.persistence.ReplaceTriggers(ctx, automation.ID, buildTriggerRows(automation))
	if err != nil {
		return fmt.Errorf("failed to rebuild trigger index: %w", err)
	}

	err = s.persistence.ReplaceSchedules(ctx, automation.ID, schedules)
	if err != nil {
		return fmt.Errorf("failed to rebuild schedules: %w", err)
	}

	return nil
}

// Get returns one automation by id.
func (s *Automation) Get(ctx context.Context, id string) (*models.Automation, error) {
	return s.persistence.AutomationByID(ctx, id)
}

// List returns the team's automations, newest first.
func (s *Automation) List(ctx context.Context, teamID string) ([]*models.Automation, error) {
	if teamID == "" {
		return nil, NewValidationError("ListAutomations", "TEAM_REQUIRED", "team_id query parameter is required", ErrTeamRequired)
	}

	return s.persistence.AutomationsByTeam(ctx, teamID)
}

// Delete removes the automation along with its trigger index rows and
// schedules.
func (s *Automation) Delete(ctx context.Context, id string) error {
	return s.persistence.DeleteAutomation(ctx, id)
}

// Activate makes the automation eligible for dispatch.
func (s *Automation) Activate(ctx context.Context, id string) (*models.Automation, error) {
	return s.transition(ctx, id, models.AutomationStatusActive, ErrAlreadyActive)
}

// Pause stops the automation from being dispatched. Its webhook nodes remain
// addressable for listening mode.
func (s *Automation) Pause(ctx context.Context, id string) (*models.Automation, error) {
	return s.transition(ctx, id, models.AutomationStatusPaused, ErrAlreadyPaused)
}

func (s *Automation) transition(ctx context.Context, id string, status models.AutomationStatus, conflict error) (*models.Automation, error) {
	automation, err := s.persistence.AutomationByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if automation.Status == status {
		return nil, conflict
	}

	automation.Status = status
	automation.UpdatedAt = time.Now().UTC()

	err = s.persistence.SaveAutomation(ctx, automation)
	if err != nil {
		return nil, fmt.Errorf("failed to save automation: %w", err)
	}

	return automation, nil
}

func (s *Automation) validate(automation *models.Automation) error {
	if automation == nil {
		return NewValidationError("SaveAutomation", "AUTOMATION_NIL", "automation cannot be nil", ErrAutomationNil)
	}

	if strings.TrimSpace(automation.TeamID) == "" {
		return NewValidationError("SaveAutomation", "TEAM_REQUIRED", "team_id is required", ErrTeamRequired)
	}

	if err := s.validator.StructPartial(automation, "Name"); err != nil {
		return NewValidationError("SaveAutomation", "NAME_INVALID", err.Error(), ErrNameRequired)
	}

	seen := make(map[string]struct{}, len(automation.Nodes))

	for _, node := range automation.Nodes {
		if _, ok := seen[node.ID]; ok {
			return NewValidationError("SaveAutomation", "DUPLICATE_NODE_ID",
				fmt.Sprintf("node ID %q appears more than once", node.ID), ErrDuplicateNodeID)
		}

		seen[node.ID] = struct{}{}

		err := s.validateNode(node)
		if err != nil {
			return err
		}
	}

	for _, edge := range automation.Edges {
		if _, ok := seen[edge.Source]; !ok {
			return NewValidationError("SaveAutomation", "DANGLING_EDGE",
				fmt.Sprintf("edge %q references missing source node %q", edge.ID, edge.Source), ErrDanglingEdge)
		}

		if _, ok := seen[edge.Target]; !ok {
			return NewValidationError("SaveAutomation", "DANGLING_EDGE",
				fmt.Sprintf("edge %q references missing target node %q", edge.ID, edge.Target), ErrDanglingEdge)
		}
	}

	return nil
}

func (s *Automation) validateNode(node *models.AutomationNode) error {
	if node.IsTrigger() {
		if !models.IsTriggerType(node.Data.Type) {
			return NewValidationError("SaveAutomation", "UNKNOWN_NODE_TYPE",
				fmt.Sprintf("node %q has unknown trigger type %q", node.ID, node.Data.Type), ErrUnknownNodeType)
		}

		return nil
	}

	if !s.registry.IsRegistered(node.Data.Type) {
		return NewValidationError("SaveAutomation", "UNKNOWN_NODE_TYPE",
			fmt.Sprintf("node %q has unknown type %q", node.ID, node.Data.Type), ErrUnknownNodeType)
	}

	err := s.registry.ValidateConfig(node.Data.Type, node.Data.Config)
	if err != nil {
		return NewValidationError("SaveAutomation", "INVALID_NODE_CONFIG",
			fmt.Sprintf("node %q: %v", node.ID, err), ErrInvalidNodeConfig)
	}

	return nil
}

// buildSchedules creates one campaign schedule per schedule trigger node.
// Cron expressions are validated here so a bad one rejects the save instead
// of failing later inside the scheduler.
func (s *Automation) buildSchedules(automation *models.Automation) ([]*models.CampaignSchedule, error) {
	var schedules []*models.CampaignSchedule

	for _, node := range automation.TriggerNodes() {
		if node.Data.Type != models.NodeTypeSchedule {
			continue
		}

		var config models.ScheduleTriggerConfig

		err := node.Data.DecodeConfig(&config)
		if err != nil {
			return nil, NewValidationError("SaveAutomation", "INVALID_NODE_CONFIG",
				fmt.Sprintf("node %q: %v", node.ID, err), ErrInvalidNodeConfig)
		}

		schedule, err := models.NewCampaignSchedule(
			automation.ID+"__"+node.ID,
			automation.TeamID,
			automation.ID,
			node.ID,
			config.Cron,
			strings.ToLower(strings.TrimSpace(config.Tag)),
		)
		if err != nil {
			return nil, NewValidationError("SaveAutomation", "INVALID_CRON",
				fmt.Sprintf("node %q: %v", node.ID, err), ErrInvalidCronExpression)
		}

		schedules = append(schedules, schedule)
	}

	return schedules, nil
}

// buildTriggerRows derives the denormalized index: one row per trigger node.
// Key semantics per type follow the matcher's lookup strategy: keywords and
// tags store lowercased, button payloads exact, deal stages store the stage
// id or NULL for "any stage".
func buildTriggerRows(automation *models.Automation) []*models.AutomationTrigger {
	var rows []*models.AutomationTrigger

	for _, node := range automation.TriggerNodes() {
		row := &models.AutomationTrigger{
			TeamID:       automation.TeamID,
			AutomationID: automation.ID,
			NodeID:       node.ID,
			TriggerType:  node.Data.Type,
			TriggerKey:   triggerKey(node),
		}

		rows = append(rows, row)
	}

	return rows
}

func triggerKey(node *models.AutomationNode) *string {
	switch node.Data.Type {
	case models.NodeTypeKeyword:
		var config models.KeywordTriggerConfig
		if err := node.Data.DecodeConfig(&config); err != nil {
			return nil
		}

		return normalizedKey(config.Keyword)
	case models.NodeTypeButtonClicked:
		var config models.ButtonTriggerConfig
		if err := node.Data.DecodeConfig(&config); err != nil {
			return nil
		}

		if config.Payload == "" {
			return nil
		}

		return &config.Payload
	case models.NodeTypeNewContactTag:
		var config models.TagTriggerConfig
		if err := node.Data.DecodeConfig(&config); err != nil {
			return nil
		}

		return normalizedKey(config.Tag)
	case models.NodeTypeDealStageChanged:
		var config models.DealStageTriggerConfig
		if err := node.Data.DecodeConfig(&config); err != nil {
			return nil
		}

		if config.StageID == "" {
			return nil
		}

		return &config.StageID
	default:
		return nil
	}
}

func normalizedKey(value string) *string {
	key := strings.ToLower(strings.TrimSpace(value))
	if key == "" {
		return nil
	}

	return &key
}
