package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
)

// CRMRepository handles profiles, contacts, deals, pipelines and stages.
type CRMRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewCRMRepository(db *sql.DB, logger *slog.Logger) *CRMRepository {
	return &CRMRepository{db: db, logger: logger}
}

func (r *CRMRepository) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if profile.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate profile ID: %w", err)
		}

		profile.ID = id.String()
	}

	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO profiles (id, team_id, owner_user_id, name, webhook_path_prefix, debug, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			owner_user_id = EXCLUDED.owner_user_id,
			name = EXCLUDED.name,
			webhook_path_prefix = EXCLUDED.webhook_path_prefix,
			debug = EXCLUDED.debug
	`

	_, err := r.db.ExecContext(ctx, query,
		profile.ID,
		profile.TeamID,
		profile.OwnerUserID,
		profile.Name,
		profile.WebhookPathPrefix,
		profile.Debug,
		profile.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	return nil
}

const profileColumns = `id, team_id, owner_user_id, name, webhook_path_prefix, debug, created_at`

func (r *CRMRepository) ProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	return r.scanProfile(r.db.QueryRowContext(ctx, query, id))
}

func (r *CRMRepository) ProfileByOwnerUserID(ctx context.Context, ownerUserID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE owner_user_id = $1 ORDER BY created_at LIMIT 1`

	return r.scanProfile(r.db.QueryRowContext(ctx, query, ownerUserID))
}

func (r *CRMRepository) ProfileByTeam(ctx context.Context, teamID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE team_id = $1 ORDER BY created_at LIMIT 1`

	return r.scanProfile(r.db.QueryRowContext(ctx, query, teamID))
}

func (r *CRMRepository) ProfileByWebhookPrefix(ctx context.Context, prefix string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE webhook_path_prefix = $1 LIMIT 1`

	return r.scanProfile(r.db.QueryRowContext(ctx, query, prefix))
}

func (r *CRMRepository) scanProfile(row *sql.Row) (*models.Profile, error) {
	var profile models.Profile

	err := row.Scan(
		&profile.ID,
		&profile.TeamID,
		&profile.OwnerUserID,
		&profile.Name,
		&profile.WebhookPathPrefix,
		&profile.Debug,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrProfileNotFound
		}

		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	return &profile, nil
}

func (r *CRMRepository) SaveContact(ctx context.Context, contact *models.Contact) error {
	now := time.Now().UTC()

	if contact.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate contact ID: %w", err)
		}

		contact.ID = id.String()
	}

	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}

	contact.UpdatedAt = now

	tagsJSON, err := json.Marshal(normalizedTags(contact.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	fieldsJSON, err := json.Marshal(contact.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to marshal custom fields: %w", err)
	}

	if contact.CustomFields == nil {
		fieldsJSON = []byte(`{}`)
	}

	query := `
		INSERT INTO contacts (id, team_id, name, phone, email, company, tags, custom_fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			company = EXCLUDED.company,
			tags = EXCLUDED.tags,
			custom_fields = EXCLUDED.custom_fields,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		contact.ID,
		contact.TeamID,
		contact.Name,
		contact.Phone,
		contact.Email,
		contact.Company,
		tagsJSON,
		fieldsJSON,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}

	return nil
}

func normalizedTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			normalized = append(normalized, tag)
		}
	}

	return normalized
}

const contactColumns = `id, team_id, name, phone, email, company, tags, custom_fields, created_at, updated_at`

func (r *CRMRepository) ContactByID(ctx context.Context, id string) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`

	contact, err := r.scanContact(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContactNotFound
		}

		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	return contact, nil
}

func (r *CRMRepository) ContactByPhone(ctx context.Context, teamID, phone string) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE team_id = $1 AND phone = $2 LIMIT 1`

	contact, err := r.scanContact(r.db.QueryRowContext(ctx, query, teamID, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContactNotFound
		}

		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	return contact, nil
}

func (r *CRMRepository) ContactsByTeam(ctx context.Context, teamID string) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE team_id = $1 ORDER BY created_at`

	return r.queryContacts(ctx, query, teamID)
}

// ContactsByTag relies on JSONB containment; the tag is lowercased to match
// the normalized tag set stored on the row.
func (r *CRMRepository) ContactsByTag(ctx context.Context, teamID, tag string) ([]*models.Contact, error) {
	tagJSON, err := json.Marshal([]string{strings.ToLower(strings.TrimSpace(tag))})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tag filter: %w", err)
	}

	query := `SELECT ` + contactColumns + ` FROM contacts WHERE team_id = $1 AND tags @> $2 ORDER BY created_at`

	return r.queryContacts(ctx, query, teamID, tagJSON)
}

func (r *CRMRepository) queryContacts(ctx context.Context, query string, args ...any) ([]*models.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	contacts := make([]*models.Contact, 0)

	for rows.Next() {
		contact, err := r.scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		contacts = append(contacts, contact)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	return contacts, nil
}

func (r *CRMRepository) scanContact(scanner interface {
	Scan(dest ...any) error
}) (*models.Contact, error) {
	var (
		contact              models.Contact
		tagsJSON, fieldsJSON []byte
	)

	err := scanner.Scan(
		&contact.ID,
		&contact.TeamID,
		&contact.Name,
		&contact.Phone,
		&contact.Email,
		&contact.Company,
		&tagsJSON,
		&fieldsJSON,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tagsJSON != nil {
		err := json.Unmarshal(tagsJSON, &contact.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	if fieldsJSON != nil {
		err := json.Unmarshal(fieldsJSON, &contact.CustomFields)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom fields: %w", err)
		}
	}

	return &contact, nil
}

func (r *CRMRepository) SaveDeal(ctx context.Context, deal *models.Deal) error {
	now := time.Now().UTC()

	if deal.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate deal ID: %w", err)
		}

		deal.ID = id.String()
	}

	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}

	if deal.Status == "" {
		deal.Status = models.DealStatusOpen
	}

	deal.UpdatedAt = now

	query := `
		INSERT INTO deals (id, team_id, contact_id, name, pipeline_id, stage_id, status, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			contact_id = EXCLUDED.contact_id,
			name = EXCLUDED.name,
			pipeline_id = EXCLUDED.pipeline_id,
			stage_id = EXCLUDED.stage_id,
			status = EXCLUDED.status,
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		deal.ID,
		deal.TeamID,
		deal.ContactID,
		deal.Name,
		deal.PipelineID,
		deal.StageID,
		deal.Status,
		deal.Value,
		deal.CreatedAt,
		deal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save deal: %w", err)
	}

	return nil
}

func (r *CRMRepository) DealByID(ctx context.Context, id string) (*models.Deal, error) {
	query := `
		SELECT id, team_id, contact_id, name, pipeline_id, stage_id, status, value, created_at, updated_at
		FROM deals WHERE id = $1
	`

	var deal models.Deal

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&deal.ID,
		&deal.TeamID,
		&deal.ContactID,
		&deal.Name,
		&deal.PipelineID,
		&deal.StageID,
		&deal.Status,
		&deal.Value,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDealNotFound
		}

		return nil, fmt.Errorf("failed to scan deal: %w", err)
	}

	return &deal, nil
}

func (r *CRMRepository) SavePipeline(ctx context.Context, pipeline *models.Pipeline) error {
	query := `
		INSERT INTO pipelines (id, team_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET team_id = EXCLUDED.team_id, name = EXCLUDED.name
	`

	_, err := r.db.ExecContext(ctx, query, pipeline.ID, pipeline.TeamID, pipeline.Name)
	if err != nil {
		return fmt.Errorf("failed to save pipeline: %w", err)
	}

	return nil
}

func (r *CRMRepository) SaveStage(ctx context.Context, stage *models.Stage) error {
	query := `
		INSERT INTO stages (id, pipeline_id, name, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			pipeline_id = EXCLUDED.pipeline_id,
			name = EXCLUDED.name,
			position = EXCLUDED.position
	`

	_, err := r.db.ExecContext(ctx, query, stage.ID, stage.PipelineID, stage.Name, stage.Position)
	if err != nil {
		return fmt.Errorf("failed to save stage: %w", err)
	}

	return nil
}

func (r *CRMRepository) PipelineIDForStage(ctx context.Context, stageID string) (string, error) {
	var pipelineID string

	err := r.db.QueryRowContext(ctx, `SELECT pipeline_id FROM stages WHERE id = $1`, stageID).Scan(&pipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", persistence.ErrStageNotFound
		}

		return "", fmt.Errorf("failed to resolve stage pipeline: %w", err)
	}

	return pipelineID, nil
}
