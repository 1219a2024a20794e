package sendmessage

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecrm/tide/pkg/messaging"
	"github.com/tidecrm/tide/pkg/models"
)

func TestSendMessageResolvesBody(t *testing.T) {
	t.Parallel()

	sender := messaging.NewMemorySender()

	node, err := NewTextNode(models.SendMessageConfig{Text: "Oi {{contact.name}}!"}, sender, slog.Default())
	require.NoError(t, err)

	executionCtx := &models.ExecutionContext{
		TeamID:  "team-1",
		Contact: &models.Contact{ID: "c1", Name: "Ana", Phone: "+551100"},
	}

	_, err = node.Execute(context.Background(), executionCtx)
	require.NoError(t, err)

	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Oi Ana!", messages[0].Body)
	assert.Equal(t, "+551100", messages[0].To)
	assert.Equal(t, "team-1", messages[0].TeamID)
}

func TestSendMessageRequiresContact(t *testing.T) {
	t.Parallel()

	node, err := NewTextNode(models.SendMessageConfig{Text: "hi"}, messaging.NewMemorySender(), slog.Default())
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), &models.ExecutionContext{TeamID: "team-1"})
	assert.Error(t, err)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	t.Parallel()

	_, err := NewTextNode(models.SendMessageConfig{}, messaging.NewMemorySender(), slog.Default())
	assert.Error(t, err)
}

func TestSendInteractiveKeepsButtonPayloadsVerbatim(t *testing.T) {
	t.Parallel()

	sender := messaging.NewMemorySender()

	node, err := NewInteractiveNode(models.SendInteractiveConfig{
		Text: "Pick one, {{contact.name}}",
		Buttons: []models.InteractiveButton{
			{Label: "Yes {{contact.name}}", Payload: "confirm_yes"},
			{Label: "No", Payload: "confirm_no"},
		},
	}, sender, slog.Default())
	require.NoError(t, err)

	executionCtx := &models.ExecutionContext{
		TeamID:  "team-1",
		Contact: &models.Contact{ID: "c1", Name: "Ana", Phone: "+551100"},
	}

	_, err = node.Execute(context.Background(), executionCtx)
	require.NoError(t, err)

	messages := sender.Messages()
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Buttons, 2)
	assert.Equal(t, "Yes Ana", messages[0].Buttons[0].Label)
	assert.Equal(t, "confirm_yes", messages[0].Buttons[0].Payload)
}

func TestSendInteractiveRequiresButtons(t *testing.T) {
	t.Parallel()

	_, err := NewInteractiveNode(models.SendInteractiveConfig{Text: "hi"}, messaging.NewMemorySender(), slog.Default())
	assert.Error(t, err)
}
