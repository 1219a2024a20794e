// Package automation contains the trigger matcher, the event dispatcher, the
// workflow execution engine and the campaign scheduler.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
)

// Matcher resolves a business event to the (automation, entry node) pairs
// that qualify to run. Most event types are answered from the trigger index;
// the "any stage" deal case additionally scans the owning automation's nodes.
type Matcher struct {
	store  persistence.Persistence
	logger *slog.Logger
}

func NewMatcher(store persistence.Persistence, logger *slog.Logger) *Matcher {
	return &Matcher{store: store, logger: logger.With("module", "matcher")}
}

// MatchMessage matches an inbound chat message. Button replies match
// button_clicked triggers by exact payload; the text body is tested against
// every keyword trigger of the team with a case-insensitive substring check.
// A message can match both kinds at once.
func (m *Matcher) MatchMessage(ctx context.Context, teamID, body, buttonPayload string) ([]models.TriggerInfo, error) {
	matches := make([]models.TriggerInfo, 0)

	if buttonPayload != "" {
		triggers, err := m.store.TriggersByTypeAndKey(ctx, teamID, models.NodeTypeButtonClicked, buttonPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to query button triggers: %w", err)
		}

		matches = append(matches, toTriggerInfos(triggers)...)
	}

	if body != "" {
		triggers, err := m.store.TriggersByType(ctx, teamID, models.NodeTypeKeyword)
		if err != nil {
			return nil, fmt.Errorf("failed to query keyword triggers: %w", err)
		}

		loweredBody := strings.ToLower(body)

		for _, trigger := range triggers {
			if trigger.TriggerKey == nil {
				continue
			}

			if strings.Contains(loweredBody, strings.ToLower(*trigger.TriggerKey)) {
				matches = append(matches, models.TriggerInfo{
					AutomationID: trigger.AutomationID,
					NodeID:       trigger.NodeID,
				})
			}
		}
	}

	return models.DedupTriggerInfos(matches), nil
}

// MatchContactCreated matches every new_contact trigger of the team.
func (m *Matcher) MatchContactCreated(ctx context.Context, teamID string) ([]models.TriggerInfo, error) {
	triggers, err := m.store.TriggersByType(ctx, teamID, models.NodeTypeNewContact)
	if err != nil {
		return nil, fmt.Errorf("failed to query new_contact triggers: %w", err)
	}

	return models.DedupTriggerInfos(toTriggerInfos(triggers)), nil
}

// MatchTagAdded matches new_contact_with_tag triggers whose key equals the
// added tag, case-insensitively. Keys are stored lowercased on save.
func (m *Matcher) MatchTagAdded(ctx context.Context, teamID, tag string) ([]models.TriggerInfo, error) {
	triggers, err := m.store.TriggersByTypeAndKey(ctx, teamID, models.NodeTypeNewContactTag, strings.ToLower(strings.TrimSpace(tag)))
	if err != nil {
		return nil, fmt.Errorf("failed to query tag triggers: %w", err)
	}

	return models.DedupTriggerInfos(toTriggerInfos(triggers)), nil
}

// MatchDealCreated matches every deal_created trigger of the team.
func (m *Matcher) MatchDealCreated(ctx context.Context, teamID string) ([]models.TriggerInfo, error) {
	triggers, err := m.store.TriggersByType(ctx, teamID, models.NodeTypeDealCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to query deal_created triggers: %w", err)
	}

	return models.DedupTriggerInfos(toTriggerInfos(triggers)), nil
}

// MatchDealStageChanged runs two passes. Rows keyed on the exact stage match
// directly. Rows with a null key mean "any stage": the owning automation's
// node config decides, via an optional pipeline_id filter checked against the
// pipeline owning the new stage.
func (m *Matcher) MatchDealStageChanged(ctx context.Context, teamID, newStageID string) ([]models.TriggerInfo, error) {
	matches := make([]models.TriggerInfo, 0)

	exact, err := m.store.TriggersByTypeAndKey(ctx, teamID, models.NodeTypeDealStageChanged, newStageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage triggers: %w", err)
	}

	matches = append(matches, toTriggerInfos(exact)...)

	all, err := m.store.TriggersByType(ctx, teamID, models.NodeTypeDealStageChanged)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage triggers: %w", err)
	}

	var newPipelineID string

	pipelineResolved := false

	for _, trigger := range all {
		if trigger.TriggerKey != nil {
			continue
		}

		ok, err := m.anyStageMatches(ctx, trigger, newStageID, &newPipelineID, &pipelineResolved)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to evaluate any-stage trigger",
				"automation_id", trigger.AutomationID,
				"node_id", trigger.NodeID,
				"error", err)

			continue
		}

		if ok {
			matches = append(matches, models.TriggerInfo{
				AutomationID: trigger.AutomationID,
				NodeID:       trigger.NodeID,
			})
		}
	}

	return models.DedupTriggerInfos(matches), nil
}

func (m *Matcher) anyStageMatches(ctx context.Context, trigger *models.AutomationTrigger, newStageID string, newPipelineID *string, pipelineResolved *bool) (bool, error) {
	automation, err := m.store.AutomationByID(ctx, trigger.AutomationID)
	if err != nil {
		return false, err
	}

	node := automation.NodeByID(trigger.NodeID)
	if node == nil {
		return false, errors.New("trigger index row references a missing node")
	}

	var config models.DealStageTriggerConfig

	err = node.Data.DecodeConfig(&config)
	if err != nil {
		return false, err
	}

	if config.PipelineID == "" {
		return true, nil
	}

	// Stage to pipeline lookup, resolved once per match call.
	if !*pipelineResolved {
		pipelineID, err := m.store.PipelineIDForStage(ctx, newStageID)
		if err != nil {
			return false, err
		}

		*newPipelineID = pipelineID
		*pipelineResolved = true
	}

	return config.PipelineID == *newPipelineID, nil
}

func toTriggerInfos(triggers []*models.AutomationTrigger) []models.TriggerInfo {
	infos := make([]models.TriggerInfo, 0, len(triggers))

	for _, trigger := range triggers {
		infos = append(infos, models.TriggerInfo{
			AutomationID: trigger.AutomationID,
			NodeID:       trigger.NodeID,
		})
	}

	return infos
}
