package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecrm/tide/pkg/events"
	"github.com/tidecrm/tide/pkg/messaging"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence/file"
)

func newTestDispatcher(store *file.Persistence, sender *messaging.MemorySender) *Dispatcher {
	logger := testLogger()
	executor := newTestExecutor(store, sender)

	return NewDispatcher(store, NewMatcher(store, logger), executor, logger)
}

func TestDispatch_MessageRunsMatchedAutomation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	dispatcher := newTestDispatcher(store, sender)

	seedProfile(t, store, "team-1", "owner-1")
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			triggerNode("t1", models.NodeTypeKeyword, map[string]any{"keyword": "preço"}),
			actionNode("a1", models.NodeTypeSendMessage, map[string]any{"text": "segue a tabela"}),
		},
		[]*models.Edge{edge("t1", "a1", "")})
	seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeKeyword, strPtr("preço")))

	dispatcher.Dispatch(context.Background(), events.MessageReceived{
		BaseEvent: events.NewBaseEvent(events.MessageReceivedEvent, "owner-1"),
		ContactID: contact.ID,
		Body:      "Qual o PREÇO?",
	})

	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "segue a tabela", messages[0].Body)
}

func TestDispatch_InactiveAutomationNeverExecutes(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	dispatcher := newTestDispatcher(store, sender)

	seedProfile(t, store, "team-1", "owner-1")
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	for _, status := range []models.AutomationStatus{models.AutomationStatusPaused, models.AutomationStatusDraft} {
		automation := seedAutomation(t, store, "team-1", status,
			[]*models.AutomationNode{
				triggerNode("t1", models.NodeTypeKeyword, map[string]any{"keyword": "oi"}),
				actionNode("a1", models.NodeTypeSendMessage, map[string]any{"text": "hi"}),
			},
			[]*models.Edge{edge("t1", "a1", "")})
		seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeKeyword, strPtr("oi")))
	}

	dispatcher.Dispatch(context.Background(), events.MessageReceived{
		BaseEvent: events.NewBaseEvent(events.MessageReceivedEvent, "owner-1"),
		ContactID: contact.ID,
		Body:      "oi",
	})

	assert.Empty(t, sender.Messages())
}

// Concurrent fan-out must not share one contact between runs: custom-field
// writes in one goroutine race template marshalling in another. Run with
// -race to catch regressions.
func TestDispatch_ConcurrentRunsGetIndependentContacts(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	dispatcher := newTestDispatcher(store, sender)

	seedProfile(t, store, "team-1", "owner-1")
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	automations := make([]*models.Automation, 0, 2)

	for _, suffix := range []string{"a", "b"} {
		automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
			[]*models.AutomationNode{
				triggerNode("t1", models.NodeTypeKeyword, map[string]any{"keyword": "promo"}),
				actionNode("c1", models.NodeTypeSetCustomField, map[string]any{"field": "first_" + suffix, "value": "{{contact.name}}"}),
				actionNode("c2", models.NodeTypeSetCustomField, map[string]any{"field": "second_" + suffix, "value": "{{contact.custom_fields.first_" + suffix + "}}"}),
				actionNode("g1", models.NodeTypeAddTag, map[string]any{"tag": "promo-" + suffix}),
			},
			[]*models.Edge{edge("t1", "c1", ""), edge("c1", "c2", ""), edge("c2", "g1", "")})
		seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeKeyword, strPtr("promo")))
		automations = append(automations, automation)
	}

	dispatcher.Dispatch(context.Background(), events.MessageReceived{
		BaseEvent: events.NewBaseEvent(events.MessageReceivedEvent, "owner-1"),
		ContactID: contact.ID,
		Body:      "Tem PROMO hoje?",
	})

	// Both automations ran to the end.
	for _, automation := range automations {
		runs, err := store.NodeRunsByNode(context.Background(), automation.ID, "g1", 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, models.RunStatusSuccess, runs[0].Status)
	}
}

func TestDispatch_UnknownOwnerDropsSilently(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	dispatcher := newTestDispatcher(store, sender)

	dispatcher.Dispatch(context.Background(), events.MessageReceived{
		BaseEvent: events.NewBaseEvent(events.MessageReceivedEvent, "nobody"),
		ContactID: "irrelevant",
		Body:      "oi",
	})

	assert.Empty(t, sender.Messages())
}

func TestDispatch_TagAddedMatchesByKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	dispatcher := newTestDispatcher(store, sender)

	seedProfile(t, store, "team-1", "owner-1")
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001", "vip")

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			triggerNode("t1", models.NodeTypeNewContactTag, map[string]any{"tag": "vip"}),
			actionNode("a1", models.NodeTypeSendMessage, map[string]any{"text": "bem-vinda ao clube"}),
		},
		[]*models.Edge{edge("t1", "a1", "")})
	seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeNewContactTag, strPtr("vip")))

	dispatcher.Dispatch(context.Background(), events.TagAdded{
		BaseEvent: events.NewBaseEvent(events.TagAddedEvent, "owner-1"),
		ContactID: contact.ID,
		Tag:       "VIP",
	})

	require.Len(t, sender.Messages(), 1)

	dispatcher.Dispatch(context.Background(), events.TagAdded{
		BaseEvent: events.NewBaseEvent(events.TagAddedEvent, "owner-1"),
		ContactID: contact.ID,
		Tag:       "other",
	})

	assert.Len(t, sender.Messages(), 1)
}

func TestDispatch_DealStageChangedSeedsDealContext(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	sender := messaging.NewMemorySender()
	dispatcher := newTestDispatcher(store, sender)

	seedProfile(t, store, "team-1", "owner-1")
	contact := seedContact(t, store, "team-1", "Ana", "+5511999990001")

	deal := &models.Deal{
		TeamID:     "team-1",
		ContactID:  contact.ID,
		Name:       "Plano anual",
		PipelineID: "pipe-1",
		StageID:    "stage-won",
	}
	require.NoError(t, store.SaveDeal(ctx, deal))

	automation := seedAutomation(t, store, "team-1", models.AutomationStatusActive,
		[]*models.AutomationNode{
			triggerNode("t1", models.NodeTypeDealStageChanged, map[string]any{"stage_id": "stage-won"}),
			actionNode("a1", models.NodeTypeSendMessage, map[string]any{"text": "fechamos: {{deal.name}}"}),
		},
		[]*models.Edge{edge("t1", "a1", "")})
	seedTriggers(t, store, automation, triggerRow(automation, "t1", models.NodeTypeDealStageChanged, strPtr("stage-won")))

	dispatcher.Dispatch(ctx, events.DealStageChanged{
		BaseEvent:  events.NewBaseEvent(events.DealStageChangedEvent, "owner-1"),
		DealID:     deal.ID,
		ContactID:  contact.ID,
		NewStageID: "stage-won",
	})

	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "fechamos: Plano anual", messages[0].Body)
}

func TestDispatch_UnknownEventTypeIsDropped(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	sender := messaging.NewMemorySender()
	dispatcher := newTestDispatcher(store, sender)

	dispatcher.Dispatch(context.Background(), struct{ Name string }{Name: "bogus"})

	assert.Empty(t, sender.Messages())
}
