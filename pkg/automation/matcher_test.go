package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecrm/tide/pkg/models"
)

func TestMatchMessage_KeywordCaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	matcher := NewMatcher(store, testLogger())

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeKeyword, map[string]any{"keyword": "promo"})},
		nil)
	seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeKeyword, strPtr("promo")))

	matches, err := matcher.MatchMessage(context.Background(), "team-1", "Confira nossa PROMOÇÃO de hoje!", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, automation.ID, matches[0].AutomationID)
	assert.Equal(t, "t1", matches[0].NodeID)

	matches, err = matcher.MatchMessage(context.Background(), "team-1", "nada a ver", "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchMessage_ButtonRequiresPayload(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	matcher := NewMatcher(store, testLogger())

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeButtonClicked, map[string]any{"payload": "BUY_NOW"})},
		nil)
	seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeButtonClicked, strPtr("BUY_NOW")))

	// The payload is matched exactly, never as a substring of the body.
	matches, err := matcher.MatchMessage(context.Background(), "team-1", "BUY_NOW", "")
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = matcher.MatchMessage(context.Background(), "team-1", "", "BUY_NOW")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t1", matches[0].NodeID)

	matches, err = matcher.MatchMessage(context.Background(), "team-1", "", "buy_now")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchMessage_DedupsPerNode(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	matcher := NewMatcher(store, testLogger())

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			triggerNode("t1", models.NodeTypeKeyword, map[string]any{"keyword": "oi"}),
			triggerNode("t2", models.NodeTypeKeyword, map[string]any{"keyword": "olá"}),
		},
		nil)
	seedTriggers(t, store, automation,
		triggerRow(automation, "t1", models.NodeTypeKeyword, strPtr("oi")),
		triggerRow(automation, "t2", models.NodeTypeKeyword, strPtr("olá")),
	)

	// Both keywords hit; the two matches are distinct nodes and both survive.
	matches, err := matcher.MatchMessage(context.Background(), "team-1", "oi, olá!", "")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestMatchTagAdded_LowercasedKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	matcher := NewMatcher(store, testLogger())

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeNewContactTag, map[string]any{"tag": "vip"})},
		nil)
	seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeNewContactTag, strPtr("vip")))

	matches, err := matcher.MatchTagAdded(context.Background(), "team-1", "  VIP ")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t1", matches[0].NodeID)
}

func TestMatchContactCreated_AllTriggersOfTeam(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	matcher := NewMatcher(store, testLogger())

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeNewContact, nil)},
		nil)
	seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeNewContact, nil))

	other := seedAutomation(t, store, "team-2", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeNewContact, nil)},
		nil)
	seedTriggers(t, store, other, triggerRow(other, "t1", models.NodeTypeNewContact, nil))

	matches, err := matcher.MatchContactCreated(context.Background(), "team-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, automation.ID, matches[0].AutomationID)
}

func TestMatchDealStageChanged_ExactStageKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	matcher := NewMatcher(store, testLogger())

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeDealStageChanged, map[string]any{"stage_id": "stage-won"})},
		nil)
	seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeDealStageChanged, strPtr("stage-won")))

	matches, err := matcher.MatchDealStageChanged(context.Background(), "team-1", "stage-won")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = matcher.MatchDealStageChanged(context.Background(), "team-1", "stage-lost")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchDealStageChanged_AnyStageWithPipelineFilter(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	matcher := NewMatcher(store, testLogger())

	require.NoError(t, store.SavePipeline(ctx, &models.Pipeline{ID: "pipe-sales", TeamID: "team-1", Name: "Sales"}))
	require.NoError(t, store.SaveStage(ctx, &models.Stage{ID: "stage-1", PipelineID: "pipe-sales", Name: "Qualified"}))
	require.NoError(t, store.SavePipeline(ctx, &models.Pipeline{ID: "pipe-support", TeamID: "team-1", Name: "Support"}))
	require.NoError(t, store.SaveStage(ctx, &models.Stage{ID: "stage-9", PipelineID: "pipe-support", Name: "Escalated"}))

	filtered := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeDealStageChanged, map[string]any{"pipeline_id": "pipe-sales"})},
		nil)
	seedTriggers(t, store, filtered, triggerRow(filtered, "t1", models.NodeTypeDealStageChanged, nil))

	unfiltered := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeDealStageChanged, nil)},
		nil)
	seedTriggers(t, store, unfiltered, triggerRow(unfiltered, "t1", models.NodeTypeDealStageChanged, nil))

	// Stage in the filtered pipeline: both any-stage triggers match.
	matches, err := matcher.MatchDealStageChanged(ctx, "team-1", "stage-1")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	// Stage in another pipeline: only the unfiltered trigger matches.
	matches, err = matcher.MatchDealStageChanged(ctx, "team-1", "stage-9")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, unfiltered.ID, matches[0].AutomationID)
}

func TestMatchDealStageChanged_BrokenTriggerIsSkipped(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	matcher := NewMatcher(store, testLogger())

	// Index row pointing at a node the automation no longer has.
	broken := seedAutomation(t, store, "team-1", models.AutomationStatusActive, nil, nil)
	seedTriggers(t, store, broken, triggerRow(broken, "gone", models.NodeTypeDealStageChanged, nil))

	healthy := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{triggerNode("t1", models.NodeTypeDealStageChanged, nil)},
		nil)
	seedTriggers(t, store, healthy, triggerRow(healthy, "t1", models.NodeTypeDealStageChanged, nil))

	matches, err := matcher.MatchDealStageChanged(ctx, "team-1", "stage-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, healthy.ID, matches[0].AutomationID)
}
