// Package persistence provides the data storage abstraction for automations,
// the trigger index, CRM records and run logs.
package persistence

import (
	"context"
	"time"

	"github.com/tidecrm/tide/pkg/models"
)

type Persistence interface {
	AutomationRepository
	TriggerIndexRepository
	ProfileRepository
	ContactRepository
	DealRepository
	RunRepository
	ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type AutomationRepository interface {
	SaveAutomation(ctx context.Context, automation *models.Automation) error
	AutomationByID(ctx context.Context, id string) (*models.Automation, error)
	AutomationsByIDs(ctx context.Context, ids []string) ([]*models.Automation, error)
	AutomationsByTeam(ctx context.Context, teamID string) ([]*models.Automation, error)
	DeleteAutomation(ctx context.Context, id string) error
}

// TriggerIndexRepository maintains and queries the denormalized trigger
// index. ReplaceTriggers upholds the one-row-per-trigger-node contract:
// saving an automation replaces its rows wholesale.
type TriggerIndexRepository interface {
	ReplaceTriggers(ctx context.Context, automationID string, triggers []*models.AutomationTrigger) error
	TriggersByType(ctx context.Context, teamID, triggerType string) ([]*models.AutomationTrigger, error)
	TriggersByTypeAndKey(ctx context.Context, teamID, triggerType, key string) ([]*models.AutomationTrigger, error)
}

type ProfileRepository interface {
	SaveProfile(ctx context.Context, profile *models.Profile) error
	ProfileByID(ctx context.Context, id string) (*models.Profile, error)
	ProfileByOwnerUserID(ctx context.Context, ownerUserID string) (*models.Profile, error)
	ProfileByTeam(ctx context.Context, teamID string) (*models.Profile, error)
	ProfileByWebhookPrefix(ctx context.Context, prefix string) (*models.Profile, error)
}

type ContactRepository interface {
	SaveContact(ctx context.Context, contact *models.Contact) error
	ContactByID(ctx context.Context, id string) (*models.Contact, error)
	ContactByPhone(ctx context.Context, teamID, phone string) (*models.Contact, error)
	ContactsByTeam(ctx context.Context, teamID string) ([]*models.Contact, error)
	ContactsByTag(ctx context.Context, teamID, tag string) ([]*models.Contact, error)
}

type DealRepository interface {
	SaveDeal(ctx context.Context, deal *models.Deal) error
	DealByID(ctx context.Context, id string) (*models.Deal, error)
	SavePipeline(ctx context.Context, pipeline *models.Pipeline) error
	SaveStage(ctx context.Context, stage *models.Stage) error
	PipelineIDForStage(ctx context.Context, stageID string) (string, error)
}

// RunRepository appends the per-node audit trail and run summaries.
type RunRepository interface {
	AppendNodeRun(ctx context.Context, run *models.NodeRun) error
	AppendAutomationRun(ctx context.Context, run *models.AutomationRun) error
	NodeRunsByNode(ctx context.Context, automationID, nodeID string, limit int) ([]*models.NodeRun, error)
}

type ScheduleRepository interface {
	ReplaceSchedules(ctx context.Context, automationID string, schedules []*models.CampaignSchedule) error
	SaveSchedule(ctx context.Context, schedule *models.CampaignSchedule) error
	DueSchedules(ctx context.Context, now time.Time) ([]*models.CampaignSchedule, error)
}
