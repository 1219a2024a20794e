package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecrm/tide/pkg/messaging"
	"github.com/tidecrm/tide/pkg/models"
)

func TestExecute_LinearChain(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	executor := newTestExecutor(store, sender)
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			triggerNode("t1", models.NodeTypeKeyword, map[string]any{"keyword": "oi"}),
			actionNode("a1", models.NodeTypeSendMessage, map[string]any{"text": "Olá {{contact.name}}!"}),
			actionNode("a2", models.NodeTypeAddTag, map[string]any{"tag": "greeted"}),
		},
		[]*models.Edge{
			edge("t1", "a1", ""),
			edge("a1", "a2", ""),
		})

	run, err := executor.Execute(context.Background(), automation, contact, "t1", models.TriggerPayload{}, nil)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 3, run.Steps)
	assert.Equal(t, contact.ID, run.ContactID)

	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Olá Ana!", messages[0].Body)
	assert.Equal(t, "+5511999990001", messages[0].To)

	updated, err := store.ContactByID(context.Background(), contact.ID)
	require.NoError(t, err)
	assert.True(t, updated.HasTag("greeted"))
}

func TestExecute_AppendsNodeRunPerVisit(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	executor := newTestExecutor(store, messaging.NewMemorySender())
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			triggerNode("t1", models.NodeTypeNewContact, nil),
			actionNode("a1", models.NodeTypeSendMessage, map[string]any{"text": "hi"}),
		},
		[]*models.Edge{edge("t1", "a1", "")})

	run, err := executor.Execute(context.Background(), automation, contact, "t1", models.TriggerPayload{}, nil)
	require.NoError(t, err)

	for _, nodeID := range []string{"t1", "a1"} {
		runs, err := store.NodeRunsByNode(context.Background(), automation.ID, nodeID, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].RunID)
		assert.Equal(t, models.RunStatusSuccess, runs[0].Status)
	}
}

func TestExecute_ConditionBranching(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	executor := newTestExecutor(store, sender)
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001", "vip")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			triggerNode("t1", models.NodeTypeNewContact, nil),
			logicNode("c1", models.NodeTypeCondition, map[string]any{
				"field":    "{{contact.tags}}",
				"operator": "contains",
				"value":    "vip",
			}),
			actionNode("yes", models.NodeTypeSendMessage, map[string]any{"text": "welcome back"}),
			actionNode("no", models.NodeTypeSendMessage, map[string]any{"text": "hello stranger"}),
		},
		[]*models.Edge{
			edge("t1", "c1", ""),
			edge("c1", "yes", "true"),
			edge("c1", "no", "false"),
		})

	run, err := executor.Execute(context.Background(), automation, contact, "t1", models.TriggerPayload{}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)

	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "welcome back", messages[0].Body)
}

func TestExecute_StepLimitBreaksCycles(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	executor := newTestExecutor(store, messaging.NewMemorySender())
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			actionNode("a1", models.NodeTypeAddTag, map[string]any{"tag": "x"}),
			actionNode("a2", models.NodeTypeAddTag, map[string]any{"tag": "y"}),
		},
		[]*models.Edge{
			edge("a1", "a2", ""),
			edge("a2", "a1", ""),
		})

	run, err := executor.Execute(context.Background(), automation, contact, "a1", models.TriggerPayload{}, nil)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, DefaultMaxSteps+1, run.Steps)
	assert.Contains(t, run.Error, "step limit")
}

func TestExecute_NoOutgoingEdgeEndsCleanly(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	executor := newTestExecutor(store, messaging.NewMemorySender())
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeNewContact, nil)},
		nil)

	run, err := executor.Execute(context.Background(), automation, contact, "t1", models.TriggerPayload{}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 1, run.Steps)
}

func TestExecute_MissingBranchEdgeFailsRun(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	executor := newTestExecutor(store, messaging.NewMemorySender())
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	// The condition produces "false" but only the "true" edge exists.
	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			logicNode("c1", models.NodeTypeCondition, map[string]any{
				"field":    "{{contact.name}}",
				"operator": "equals",
				"value":    "someone else",
			}),
			actionNode("yes", models.NodeTypeSendMessage, map[string]any{"text": "hi"}),
		},
		[]*models.Edge{edge("c1", "yes", "true")})

	run, err := executor.Execute(context.Background(), automation, contact, "c1", models.TriggerPayload{}, nil)
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "no outgoing edge")
}

func TestExecute_ActionFailureContinuesByDefault(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	sender.Err = assert.AnError
	executor := newTestExecutor(store, sender)
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			actionNode("a1", models.NodeTypeSendMessage, map[string]any{"text": "hi"}),
			actionNode("a2", models.NodeTypeAddTag, map[string]any{"tag": "reached"}),
		},
		[]*models.Edge{edge("a1", "a2", "")})

	run, err := executor.Execute(context.Background(), automation, contact, "a1", models.TriggerPayload{}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Steps)

	// The failed visit is still logged as failed.
	runs, err := store.NodeRunsByNode(context.Background(), automation.ID, "a1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)

	updated, err := store.ContactByID(context.Background(), contact.ID)
	require.NoError(t, err)
	assert.True(t, updated.HasTag("reached"))
}

func TestExecute_ActionFailureFatalWhenConfigured(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	sender.Err = assert.AnError
	executor := newTestExecutor(store, sender)
	executor.ContinueOnActionError = false
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			actionNode("a1", models.NodeTypeSendMessage, map[string]any{"text": "hi"}),
			actionNode("a2", models.NodeTypeAddTag, map[string]any{"tag": "reached"}),
		},
		[]*models.Edge{edge("a1", "a2", "")})

	run, err := executor.Execute(context.Background(), automation, contact, "a1", models.TriggerPayload{}, nil)
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 1, run.Steps)
}

func TestExecute_MissingStartNodeFails(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	executor := newTestExecutor(store, messaging.NewMemorySender())

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive, nil, nil)

	run, err := executor.Execute(context.Background(), automation, nil, "gone", models.TriggerPayload{}, nil)
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)

	// The summary is persisted even for a run that never visited a node.
	summary, err := store.NodeRunsByNode(context.Background(), automation.ID, "gone", 10)
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestExecute_TriggerPayloadAvailableToTemplates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	executor := newTestExecutor(store, sender)
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			actionNode("a1", models.NodeTypeSendMessage, map[string]any{"text": "você disse: {{trigger.body.message}}"}),
		},
		nil)

	trigger := models.TriggerPayload{Body: map[string]any{"message": "quero comprar"}}

	_, err := executor.Execute(context.Background(), automation, contact, "a1", trigger, nil)
	require.NoError(t, err)

	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "você disse: quero comprar", messages[0].Body)
}
