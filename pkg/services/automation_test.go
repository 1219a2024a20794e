package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence/file"
	"github.com/tidecrm/tide/pkg/registry"
	"github.com/tidecrm/tide/pkg/services"
)

func setupService(t *testing.T) (*services.Automation, *file.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	service := services.NewAutomation(store, validator.New(validator.WithRequiredStructEnabled()), registry.NewDefaultRegistry(logger))

	return service, store
}

func validAutomation() *models.Automation {
	return &models.Automation{
		TeamID: "team-1",
		Name:   "welcome flow",
		Status: models.AutomationStatusDraft,
		Nodes: []*models.AutomationNode{
			{ID: "t1", Data: models.NodeData{Kind: models.NodeKindTrigger, Type: models.NodeTypeKeyword, Config: map[string]any{"keyword": "  Promo  "}}},
			{ID: "a1", Data: models.NodeData{Kind: models.NodeKindAction, Type: models.NodeTypeSendMessage, Config: map[string]any{"text": "olá"}}},
		},
		Edges: []*models.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}
}

func TestSave_RebuildsTriggerIndex(t *testing.T) {
	t.Parallel()

	service, store := setupService(t)
	ctx := context.Background()

	automation := validAutomation()
	automation.Nodes = append(automation.Nodes,
		&models.AutomationNode{ID: "t2", Data: models.NodeData{Kind: models.NodeKindTrigger, Type: models.NodeTypeButtonClicked, Config: map[string]any{"payload": "BUY_NOW"}}},
		&models.AutomationNode{ID: "t3", Data: models.NodeData{Kind: models.NodeKindTrigger, Type: models.NodeTypeDealStageChanged, Config: map[string]any{"pipeline_id": "p1"}}},
	)

	require.NoError(t, service.Save(ctx, automation))
	require.NotEmpty(t, automation.ID)

	keyword, err := store.TriggersByType(ctx, "team-1", models.NodeTypeKeyword)
	require.NoError(t, err)
	require.Len(t, keyword, 1)
	require.NotNil(t, keyword[0].TriggerKey)
	assert.Equal(t, "promo", *keyword[0].TriggerKey)

	button, err := store.TriggersByType(ctx, "team-1", models.NodeTypeButtonClicked)
	require.NoError(t, err)
	require.Len(t, button, 1)
	require.NotNil(t, button[0].TriggerKey)
	assert.Equal(t, "BUY_NOW", *button[0].TriggerKey)

	// No stage_id means "any stage": the key stays NULL.
	stage, err := store.TriggersByType(ctx, "team-1", models.NodeTypeDealStageChanged)
	require.NoError(t, err)
	require.Len(t, stage, 1)
	assert.Nil(t, stage[0].TriggerKey)
}

func TestSave_ReplacesIndexOnUpdate(t *testing.T) {
	t.Parallel()

	service, store := setupService(t)
	ctx := context.Background()

	automation := validAutomation()
	require.NoError(t, service.Save(ctx, automation))

	automation.Nodes[0].Data.Config = map[string]any{"keyword": "desconto"}
	require.NoError(t, service.Save(ctx, automation))

	rows, err := store.TriggersByType(ctx, "team-1", models.NodeTypeKeyword)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "desconto", *rows[0].TriggerKey)
}

func TestSave_BuildsCampaignSchedules(t *testing.T) {
	t.Parallel()

	service, store := setupService(t)
	ctx := context.Background()

	automation := validAutomation()
	automation.Nodes = append(automation.Nodes,
		&models.AutomationNode{ID: "s1", Data: models.NodeData{Kind: models.NodeKindTrigger, Type: models.NodeTypeSchedule, Config: map[string]any{"cron": "0 9 * * 1", "tag": "Newsletter"}}},
	)

	require.NoError(t, service.Save(ctx, automation))

	due, err := store.DueSchedules(ctx, time.Now().UTC().Add(8*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, automation.ID, due[0].AutomationID)
	assert.Equal(t, "s1", due[0].NodeID)
	assert.Equal(t, "newsletter", due[0].Tag)
	assert.True(t, due[0].Active)
}

func TestSave_ValidationFailures(t *testing.T) {
	t.Parallel()

	service, _ := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(a *models.Automation)
	}{
		{
			name:   "missing team",
			mutate: func(a *models.Automation) { a.TeamID = "" },
		},
		{
			name:   "short name",
			mutate: func(a *models.Automation) { a.Name = "ab" },
		},
		{
			name: "duplicate node id",
			mutate: func(a *models.Automation) {
				a.Nodes = append(a.Nodes, &models.AutomationNode{ID: "a1", Data: a.Nodes[1].Data})
			},
		},
		{
			name: "dangling edge",
			mutate: func(a *models.Automation) {
				a.Edges = append(a.Edges, &models.Edge{ID: "e2", Source: "a1", Target: "missing"})
			},
		},
		{
			name: "unknown action type",
			mutate: func(a *models.Automation) {
				a.Nodes[1].Data.Type = "teleport_contact"
			},
		},
		{
			name: "action config fails schema",
			mutate: func(a *models.Automation) {
				a.Nodes[1].Data.Config = map[string]any{}
			},
		},
		{
			name: "unknown trigger type",
			mutate: func(a *models.Automation) {
				a.Nodes[0].Data.Type = "telepathy"
			},
		},
		{
			name: "bad cron expression",
			mutate: func(a *models.Automation) {
				a.Nodes = append(a.Nodes, &models.AutomationNode{
					ID:   "s1",
					Data: models.NodeData{Kind: models.NodeKindTrigger, Type: models.NodeTypeSchedule, Config: map[string]any{"cron": "not a cron"}},
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			automation := validAutomation()
			tt.mutate(automation)

			err := service.Save(ctx, automation)
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err), "expected a validation error, got %v", err)
		})
	}
}

func TestActivatePause(t *testing.T) {
	t.Parallel()

	service, _ := setupService(t)
	ctx := context.Background()

	automation := validAutomation()
	require.NoError(t, service.Save(ctx, automation))

	activated, err := service.Activate(ctx, automation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AutomationStatusActive, activated.Status)

	_, err = service.Activate(ctx, automation.ID)
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))

	paused, err := service.Pause(ctx, automation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AutomationStatusPaused, paused.Status)

	_, err = service.Pause(ctx, automation.ID)
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))
}

func TestDelete_RemovesTriggerIndex(t *testing.T) {
	t.Parallel()

	service, store := setupService(t)
	ctx := context.Background()

	automation := validAutomation()
	require.NoError(t, service.Save(ctx, automation))
	require.NoError(t, service.Delete(ctx, automation.ID))

	_, err := service.Get(ctx, automation.ID)
	require.Error(t, err)

	rows, err := store.TriggersByType(ctx, "team-1", models.NodeTypeKeyword)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
