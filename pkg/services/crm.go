package services

import (
	"context"

	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
)

// CRM exposes the read and upsert operations the management API needs for
// contacts, profiles and the node run log.
type CRM struct {
	persistence persistence.Persistence
}

func NewCRM(persistence persistence.Persistence) *CRM {
	return &CRM{persistence: persistence}
}

func (s *CRM) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	return s.persistence.ContactByID(ctx, id)
}

// ListContacts returns the team's contacts, optionally narrowed to one tag.
func (s *CRM) ListContacts(ctx context.Context, teamID, tag string) ([]*models.Contact, error) {
	if teamID == "" {
		return nil, NewValidationError("ListContacts", "TEAM_REQUIRED", "team_id query parameter is required", ErrTeamRequired)
	}

	if tag != "" {
		return s.persistence.ContactsByTag(ctx, teamID, tag)
	}

	return s.persistence.ContactsByTeam(ctx, teamID)
}

func (s *CRM) SaveContact(ctx context.Context, contact *models.Contact) error {
	if contact == nil || contact.TeamID == "" {
		return NewValidationError("SaveContact", "TEAM_REQUIRED", "team_id is required", ErrTeamRequired)
	}

	return s.persistence.SaveContact(ctx, contact)
}

func (s *CRM) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if profile == nil || profile.TeamID == "" {
		return NewValidationError("SaveProfile", "TEAM_REQUIRED", "team_id is required", ErrTeamRequired)
	}

	return s.persistence.SaveProfile(ctx, profile)
}

func (s *CRM) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return s.persistence.ProfileByID(ctx, id)
}

// NodeRuns returns the most recent log entries for one node of an
// automation, newest first.
func (s *CRM) NodeRuns(ctx context.Context, automationID, nodeID string, limit int) ([]*models.NodeRun, error) {
	return s.persistence.NodeRunsByNode(ctx, automationID, nodeID, limit)
}
