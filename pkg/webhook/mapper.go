package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
	"github.com/tidecrm/tide/pkg/template"
)

// MapResult is the outcome of applying mapping rules to one event.
type MapResult struct {
	Contact      *models.Contact
	IsNewContact bool

	// NewlyAddedTags lists tags the mapping added that the contact did not
	// carry before, in rule order. The endpoint cascades one tag_added
	// dispatch per entry.
	NewlyAddedTags []string
}

// Mapper applies user-authored mapping rules to a parsed webhook payload,
// upserting a contact record for the profile's team.
type Mapper struct {
	store  persistence.ContactRepository
	logger *slog.Logger
}

func NewMapper(store persistence.ContactRepository, logger *slog.Logger) *Mapper {
	return &Mapper{store: store, logger: logger.With("module", "webhook_mapper")}
}

// MapPayload resolves every rule source against the structured payload and
// applies it to a contact looked up by phone within the team, creating the
// contact when no phone match exists. Rules whose source resolves to nothing
// are skipped. The contact is persisted once, after all rules applied.
func (m *Mapper) MapPayload(ctx context.Context, profile *models.Profile, payload models.TriggerPayload, rules []models.MappingRule) (*MapResult, error) {
	if profile == nil {
		return nil, errors.New("mapper requires a profile")
	}

	data := map[string]any{
		"body":    payload.Body,
		"query":   payload.Query,
		"headers": payload.Headers,
	}

	resolved := make([]string, len(rules))
	phone := ""

	for i, rule := range rules {
		value := strings.TrimSpace(template.ResolveWithFallback(rule.Source, data, ""))
		resolved[i] = value

		if rule.Destination == models.MappingDestinationPhone && value != "" && phone == "" {
			phone = value
		}
	}

	contact, isNew, err := m.findOrCreate(ctx, profile.TeamID, phone)
	if err != nil {
		return nil, err
	}

	result := &MapResult{Contact: contact, IsNewContact: isNew}

	for i, rule := range rules {
		value := resolved[i]
		if value == "" {
			continue
		}

		switch rule.Destination {
		case models.MappingDestinationName:
			contact.Name = value
		case models.MappingDestinationPhone:
			contact.Phone = value
		case models.MappingDestinationTag:
			if contact.AddTag(value) {
				result.NewlyAddedTags = append(result.NewlyAddedTags, value)
			}
		case models.MappingDestinationCustomField:
			if rule.DestinationKey == "" {
				m.logger.WarnContext(ctx, "custom_field mapping without destination_key, skipping", "source", rule.Source)

				continue
			}

			contact.SetCustomField(rule.DestinationKey, value)
		default:
			m.logger.WarnContext(ctx, "unknown mapping destination, skipping", "destination", rule.Destination)
		}
	}

	err = m.store.SaveContact(ctx, contact)
	if err != nil {
		return nil, fmt.Errorf("failed to save mapped contact: %w", err)
	}

	return result, nil
}

func (m *Mapper) findOrCreate(ctx context.Context, teamID, phone string) (*models.Contact, bool, error) {
	if phone != "" {
		contact, err := m.store.ContactByPhone(ctx, teamID, phone)
		if err == nil {
			return contact, false, nil
		}

		if !persistence.IsContactNotFound(err) {
			return nil, false, fmt.Errorf("failed to look up contact by phone: %w", err)
		}
	}

	return &models.Contact{TeamID: teamID, Phone: phone}, true, nil
}
