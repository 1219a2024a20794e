// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
	"github.com/tidecrm/tide/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	automations *AutomationRepository
	crm         *CRMRepository
	runs        *RunRepository
}

// NewPersistence connects, migrates and returns a ready persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		automations: NewAutomationRepository(database, logger),
		crm:         NewCRMRepository(database, logger),
		runs:        NewRunRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Automation repository delegation.

func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	return p.automations.Save(ctx, automation)
}

func (p *Persistence) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	return p.automations.GetByID(ctx, id)
}

func (p *Persistence) AutomationsByIDs(ctx context.Context, ids []string) ([]*models.Automation, error) {
	return p.automations.GetByIDs(ctx, ids)
}

func (p *Persistence) AutomationsByTeam(ctx context.Context, teamID string) ([]*models.Automation, error) {
	return p.automations.GetByTeam(ctx, teamID)
}

func (p *Persistence) DeleteAutomation(ctx context.Context, id string) error {
	return p.automations.Delete(ctx, id)
}

func (p *Persistence) ReplaceTriggers(ctx context.Context, automationID string, triggers []*models.AutomationTrigger) error {
	return p.automations.ReplaceTriggers(ctx, automationID, triggers)
}

func (p *Persistence) TriggersByType(ctx context.Context, teamID, triggerType string) ([]*models.AutomationTrigger, error) {
	return p.automations.TriggersByType(ctx, teamID, triggerType)
}

func (p *Persistence) TriggersByTypeAndKey(ctx context.Context, teamID, triggerType, key string) ([]*models.AutomationTrigger, error) {
	return p.automations.TriggersByTypeAndKey(ctx, teamID, triggerType, key)
}

// CRM repository delegation.

func (p *Persistence) SaveProfile(ctx context.Context, profile *models.Profile) error {
	return p.crm.SaveProfile(ctx, profile)
}

func (p *Persistence) ProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	return p.crm.ProfileByID(ctx, id)
}

func (p *Persistence) ProfileByOwnerUserID(ctx context.Context, ownerUserID string) (*models.Profile, error) {
	return p.crm.ProfileByOwnerUserID(ctx, ownerUserID)
}

func (p *Persistence) ProfileByTeam(ctx context.Context, teamID string) (*models.Profile, error) {
	return p.crm.ProfileByTeam(ctx, teamID)
}

func (p *Persistence) ProfileByWebhookPrefix(ctx context.Context, prefix string) (*models.Profile, error) {
	return p.crm.ProfileByWebhookPrefix(ctx, prefix)
}

func (p *Persistence) SaveContact(ctx context.Context, contact *models.Contact) error {
	return p.crm.SaveContact(ctx, contact)
}

func (p *Persistence) ContactByID(ctx context.Context, id string) (*models.Contact, error) {
	return p.crm.ContactByID(ctx, id)
}

func (p *Persistence) ContactByPhone(ctx context.Context, teamID, phone string) (*models.Contact, error) {
	return p.crm.ContactByPhone(ctx, teamID, phone)
}

func (p *Persistence) ContactsByTeam(ctx context.Context, teamID string) ([]*models.Contact, error) {
	return p.crm.ContactsByTeam(ctx, teamID)
}

func (p *Persistence) ContactsByTag(ctx context.Context, teamID, tag string) ([]*models.Contact, error) {
	return p.crm.ContactsByTag(ctx, teamID, tag)
}

func (p *Persistence) SaveDeal(ctx context.Context, deal *models.Deal) error {
	return p.crm.SaveDeal(ctx, deal)
}

func (p *Persistence) DealByID(ctx context.Context, id string) (*models.Deal, error) {
	return p.crm.DealByID(ctx, id)
}

func (p *Persistence) SavePipeline(ctx context.Context, pipeline *models.Pipeline) error {
	return p.crm.SavePipeline(ctx, pipeline)
}

func (p *Persistence) SaveStage(ctx context.Context, stage *models.Stage) error {
	return p.crm.SaveStage(ctx, stage)
}

func (p *Persistence) PipelineIDForStage(ctx context.Context, stageID string) (string, error) {
	return p.crm.PipelineIDForStage(ctx, stageID)
}

// Run repository delegation.

func (p *Persistence) AppendNodeRun(ctx context.Context, run *models.NodeRun) error {
	return p.runs.AppendNodeRun(ctx, run)
}

func (p *Persistence) AppendAutomationRun(ctx context.Context, run *models.AutomationRun) error {
	return p.runs.AppendAutomationRun(ctx, run)
}

func (p *Persistence) NodeRunsByNode(ctx context.Context, automationID, nodeID string, limit int) ([]*models.NodeRun, error) {
	return p.runs.NodeRunsByNode(ctx, automationID, nodeID, limit)
}

func (p *Persistence) ReplaceSchedules(ctx context.Context, automationID string, schedules []*models.CampaignSchedule) error {
	return p.runs.ReplaceSchedules(ctx, automationID, schedules)
}

func (p *Persistence) SaveSchedule(ctx context.Context, schedule *models.CampaignSchedule) error {
	return p.runs.SaveSchedule(ctx, schedule)
}

func (p *Persistence) DueSchedules(ctx context.Context, now time.Time) ([]*models.CampaignSchedule, error) {
	return p.runs.DueSchedules(ctx, now)
}

var _ persistence.Persistence = (*Persistence)(nil)
