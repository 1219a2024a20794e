package deal

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecrm/tide/pkg/eventbus"
	"github.com/tidecrm/tide/pkg/events"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence/file"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func TestCreateDealPutsDealInContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	publisher := &capturingPublisher{}

	node, err := NewCreateNode(models.CreateDealConfig{
		Name:       "{{contact.name}} deal",
		PipelineID: "pipe-1",
		StageID:    "stage-1",
		Value:      100,
	}, store, publisher, slog.Default())
	require.NoError(t, err)

	executionCtx := &models.ExecutionContext{
		TeamID:  "team-1",
		Contact: &models.Contact{ID: "c1", Name: "Ana", Phone: "+551100"},
	}

	_, err = node.Execute(ctx, executionCtx)
	require.NoError(t, err)

	require.NotNil(t, executionCtx.Deal)
	assert.Equal(t, "Ana deal", executionCtx.Deal.Name)
	assert.Equal(t, "stage-1", executionCtx.Deal.StageID)

	stored, err := store.DealByID(ctx, executionCtx.Deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusOpen, stored.Status)

	require.Len(t, publisher.events, 1)

	created, ok := publisher.events[0].(events.DealCreated)
	require.True(t, ok)
	assert.Equal(t, executionCtx.Deal.ID, created.DealID)
}

func TestMoveDealStagePublishesChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	publisher := &capturingPublisher{}

	deal := &models.Deal{TeamID: "team-1", ContactID: "c1", PipelineID: "pipe-1", StageID: "stage-1"}
	require.NoError(t, store.SaveDeal(ctx, deal))

	node, err := NewMoveStageNode(models.MoveDealStageConfig{StageID: "stage-2"}, store, publisher, slog.Default())
	require.NoError(t, err)

	executionCtx := &models.ExecutionContext{TeamID: "team-1", Deal: deal}

	outcome, err := node.Execute(ctx, executionCtx)
	require.NoError(t, err)
	assert.Equal(t, true, outcome.Data["moved"])

	stored, err := store.DealByID(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, "stage-2", stored.StageID)

	require.Len(t, publisher.events, 1)

	changed, ok := publisher.events[0].(events.DealStageChanged)
	require.True(t, ok)
	assert.Equal(t, "stage-2", changed.NewStageID)
}

func TestMoveDealStageSameStageIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	publisher := &capturingPublisher{}

	deal := &models.Deal{TeamID: "team-1", ContactID: "c1", PipelineID: "pipe-1", StageID: "stage-1"}
	require.NoError(t, store.SaveDeal(ctx, deal))

	node, err := NewMoveStageNode(models.MoveDealStageConfig{StageID: "stage-1"}, store, publisher, slog.Default())
	require.NoError(t, err)

	outcome, err := node.Execute(ctx, &models.ExecutionContext{TeamID: "team-1", Deal: deal})
	require.NoError(t, err)
	assert.Equal(t, false, outcome.Data["moved"])
	assert.Empty(t, publisher.events)
}

func TestMoveDealStageRequiresDealInContext(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())

	node, err := NewMoveStageNode(models.MoveDealStageConfig{StageID: "stage-2"}, store, nil, slog.Default())
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), &models.ExecutionContext{TeamID: "team-1"})
	assert.Error(t, err)
}
