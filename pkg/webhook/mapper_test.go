package webhook

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence/file"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMapperTestStore(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func testProfile() *models.Profile {
	return &models.Profile{ID: "profile-1", TeamID: "team-1", OwnerUserID: "owner-1"}
}

func TestMapPayload_CreatesContactByPhone(t *testing.T) {
	t.Parallel()

	store := newMapperTestStore(t)
	mapper := NewMapper(store, testLogger())

	payload := models.TriggerPayload{Body: map[string]any{
		"customer": map[string]any{"name": "Ana", "phone": "+5511999990001"},
		"plan":     "gold",
	}}
	rules := []models.MappingRule{
		{Source: "{{body.customer.phone}}", Destination: "phone"},
		{Source: "{{body.customer.name}}", Destination: "name"},
		{Source: "{{body.plan}}", Destination: "custom_field", DestinationKey: "plan"},
	}

	result, err := mapper.MapPayload(context.Background(), testProfile(), payload, rules)
	require.NoError(t, err)

	assert.True(t, result.IsNewContact)
	assert.Equal(t, "Ana", result.Contact.Name)
	assert.Equal(t, "+5511999990001", result.Contact.Phone)
	assert.Equal(t, "gold", result.Contact.CustomFields["plan"])
	assert.Empty(t, result.NewlyAddedTags)

	saved, err := store.ContactByPhone(context.Background(), "team-1", "+5511999990001")
	require.NoError(t, err)
	assert.Equal(t, result.Contact.ID, saved.ID)
}

func TestMapPayload_UpdatesExistingContact(t *testing.T) {
	t.Parallel()

	store := newMapperTestStore(t)
	ctx := context.Background()
	mapper := NewMapper(store, testLogger())

	existing := &models.Contact{TeamID: "team-1", Name: "Ana", Phone: "+5511999990001", Tags: []string{"vip"}}
	require.NoError(t, store.SaveContact(ctx, existing))

	payload := models.TriggerPayload{Body: map[string]any{"phone": "+5511999990001", "tag": "Lead"}}
	rules := []models.MappingRule{
		{Source: "{{body.phone}}", Destination: "phone"},
		{Source: "{{body.tag}}", Destination: "tag"},
		{Source: "vip", Destination: "tag"},
	}

	result, err := mapper.MapPayload(ctx, testProfile(), payload, rules)
	require.NoError(t, err)

	assert.False(t, result.IsNewContact)
	assert.Equal(t, existing.ID, result.Contact.ID)

	// Only the tag the contact did not already carry counts as new.
	assert.Equal(t, []string{"Lead"}, result.NewlyAddedTags)
	assert.True(t, result.Contact.HasTag("lead"))
	assert.True(t, result.Contact.HasTag("vip"))
}

func TestMapPayload_UnresolvableSourceIsSkipped(t *testing.T) {
	t.Parallel()

	store := newMapperTestStore(t)
	mapper := NewMapper(store, testLogger())

	payload := models.TriggerPayload{Body: map[string]any{"phone": "+5511999990002"}}
	rules := []models.MappingRule{
		{Source: "{{body.phone}}", Destination: "phone"},
		{Source: "{{body.missing.name}}", Destination: "name"},
	}

	result, err := mapper.MapPayload(context.Background(), testProfile(), payload, rules)
	require.NoError(t, err)

	assert.Empty(t, result.Contact.Name)
	assert.Equal(t, "+5511999990002", result.Contact.Phone)
}

func TestMapPayload_QueryAndHeaderSources(t *testing.T) {
	t.Parallel()

	store := newMapperTestStore(t)
	mapper := NewMapper(store, testLogger())

	payload := models.TriggerPayload{
		Body:    map[string]any{},
		Query:   map[string]any{"phone": "+5511999990003"},
		Headers: map[string]any{"X-Source": "landing-page"},
	}
	rules := []models.MappingRule{
		{Source: "{{query.phone}}", Destination: "phone"},
		{Source: "{{headers.X-Source}}", Destination: "custom_field", DestinationKey: "source"},
	}

	result, err := mapper.MapPayload(context.Background(), testProfile(), payload, rules)
	require.NoError(t, err)

	assert.Equal(t, "+5511999990003", result.Contact.Phone)
	assert.Equal(t, "landing-page", result.Contact.CustomFields["source"])
}

func TestMapPayload_RequiresProfile(t *testing.T) {
	t.Parallel()

	mapper := NewMapper(newMapperTestStore(t), testLogger())

	_, err := mapper.MapPayload(context.Background(), nil, models.TriggerPayload{}, nil)
	require.Error(t, err)
}
