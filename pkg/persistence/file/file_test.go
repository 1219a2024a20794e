package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestAutomationRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPersistence(t)

	automation := &models.Automation{
		TeamID: "team-1",
		Name:   "Welcome flow",
		Status: models.AutomationStatusActive,
		Nodes: []*models.AutomationNode{
			{
				ID: "trigger-1",
				Data: models.NodeData{
					Kind:   models.NodeKindTrigger,
					Type:   models.NodeTypeNewContact,
					Config: map[string]any{},
				},
			},
		},
		Edges: []*models.Edge{},
	}

	require.NoError(t, store.SaveAutomation(ctx, automation))
	require.NotEmpty(t, automation.ID)

	loaded, err := store.AutomationByID(ctx, automation.ID)
	require.NoError(t, err)
	assert.Equal(t, automation.Name, loaded.Name)
	assert.Equal(t, automation.Status, loaded.Status)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, models.NodeTypeNewContact, loaded.Nodes[0].Data.Type)
}

func TestAutomationByIDNotFound(t *testing.T) {
	t.Parallel()

	store := newTestPersistence(t)

	_, err := store.AutomationByID(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrAutomationNotFound)
}

func TestAutomationsByTeam(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPersistence(t)

	for _, teamID := range []string{"team-1", "team-1", "team-2"} {
		require.NoError(t, store.SaveAutomation(ctx, &models.Automation{
			TeamID: teamID,
			Name:   "flow",
			Status: models.AutomationStatusDraft,
		}))
	}

	automations, err := store.AutomationsByTeam(ctx, "team-1")
	require.NoError(t, err)
	assert.Len(t, automations, 2)
}

func TestReplaceTriggersIsWholesale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPersistence(t)

	key := "hello"
	require.NoError(t, store.ReplaceTriggers(ctx, "auto-1", []*models.AutomationTrigger{
		{TeamID: "team-1", AutomationID: "auto-1", NodeID: "n1", TriggerType: models.NodeTypeKeyword, TriggerKey: &key},
		{TeamID: "team-1", AutomationID: "auto-1", NodeID: "n2", TriggerType: models.NodeTypeNewContact},
	}))

	triggers, err := store.TriggersByTypeAndKey(ctx, "team-1", models.NodeTypeKeyword, "hello")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "n1", triggers[0].NodeID)

	// Replacing drops the previous rows entirely.
	require.NoError(t, store.ReplaceTriggers(ctx, "auto-1", []*models.AutomationTrigger{
		{TeamID: "team-1", AutomationID: "auto-1", NodeID: "n3", TriggerType: models.NodeTypeNewContact},
	}))

	triggers, err = store.TriggersByTypeAndKey(ctx, "team-1", models.NodeTypeKeyword, "hello")
	require.NoError(t, err)
	assert.Empty(t, triggers)

	triggers, err = store.TriggersByType(ctx, "team-1", models.NodeTypeNewContact)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "n3", triggers[0].NodeID)
}

func TestTriggersByTypeAndKeySkipsNullKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPersistence(t)

	stage := "stage-1"
	require.NoError(t, store.ReplaceTriggers(ctx, "auto-1", []*models.AutomationTrigger{
		{TeamID: "team-1", AutomationID: "auto-1", NodeID: "exact", TriggerType: models.NodeTypeDealStageChanged, TriggerKey: &stage},
		{TeamID: "team-1", AutomationID: "auto-1", NodeID: "any", TriggerType: models.NodeTypeDealStageChanged},
	}))

	triggers, err := store.TriggersByTypeAndKey(ctx, "team-1", models.NodeTypeDealStageChanged, "stage-1")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "exact", triggers[0].NodeID)
}

func TestContactLookups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPersistence(t)

	contact := &models.Contact{
		TeamID: "team-1",
		Name:   "Ada",
		Phone:  "+5511999990000",
		Tags:   []string{"vip"},
	}
	require.NoError(t, store.SaveContact(ctx, contact))

	byPhone, err := store.ContactByPhone(ctx, "team-1", "+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, byPhone.ID)

	_, err = store.ContactByPhone(ctx, "team-2", "+5511999990000")
	assert.ErrorIs(t, err, persistence.ErrContactNotFound)

	tagged, err := store.ContactsByTag(ctx, "team-1", "VIP")
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, contact.ID, tagged[0].ID)
}

func TestPipelineIDForStage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPersistence(t)

	require.NoError(t, store.SavePipeline(ctx, &models.Pipeline{ID: "pipe-1", TeamID: "team-1", Name: "Sales"}))
	require.NoError(t, store.SaveStage(ctx, &models.Stage{ID: "stage-1", PipelineID: "pipe-1", Name: "New", Position: 0}))

	pipelineID, err := store.PipelineIDForStage(ctx, "stage-1")
	require.NoError(t, err)
	assert.Equal(t, "pipe-1", pipelineID)

	_, err = store.PipelineIDForStage(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrStageNotFound)
}

func TestNodeRunLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPersistence(t)

	for i := range 3 {
		status := models.RunStatusSuccess
		if i == 2 {
			status = models.RunStatusFailed
		}

		require.NoError(t, store.AppendNodeRun(ctx, &models.NodeRun{
			RunID:        "run-1",
			AutomationID: "auto-1",
			NodeID:       "node-1",
			TeamID:       "team-1",
			Status:       status,
			CreatedAt:    time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := store.NodeRunsByNode(ctx, "auto-1", "node-1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
}

func TestDueSchedules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPersistence(t)

	now := time.Now().UTC()

	require.NoError(t, store.ReplaceSchedules(ctx, "auto-1", []*models.CampaignSchedule{
		{ID: "s1", TeamID: "team-1", AutomationID: "auto-1", NodeID: "n1", CronExpression: "* * * * *", NextDueAt: now.Add(-time.Minute), Active: true},
		{ID: "s2", TeamID: "team-1", AutomationID: "auto-1", NodeID: "n2", CronExpression: "* * * * *", NextDueAt: now.Add(time.Hour), Active: true},
		{ID: "s3", TeamID: "team-1", AutomationID: "auto-1", NodeID: "n3", CronExpression: "* * * * *", NextDueAt: now.Add(-time.Hour), Active: false},
	}))

	due, err := store.DueSchedules(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "s1", due[0].ID)
}

func TestDeleteAutomationRemovesIndexRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPersistence(t)

	automation := &models.Automation{TeamID: "team-1", Name: "flow", Status: models.AutomationStatusActive}
	require.NoError(t, store.SaveAutomation(ctx, automation))
	require.NoError(t, store.ReplaceTriggers(ctx, automation.ID, []*models.AutomationTrigger{
		{TeamID: "team-1", AutomationID: automation.ID, NodeID: "n1", TriggerType: models.NodeTypeNewContact},
	}))

	require.NoError(t, store.DeleteAutomation(ctx, automation.ID))

	_, err := store.AutomationByID(ctx, automation.ID)
	assert.ErrorIs(t, err, persistence.ErrAutomationNotFound)

	triggers, err := store.TriggersByType(ctx, "team-1", models.NodeTypeNewContact)
	require.NoError(t, err)
	assert.Empty(t, triggers)
}
