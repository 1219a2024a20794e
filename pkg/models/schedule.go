package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

// CampaignSchedule mirrors one schedule trigger node, with a precomputed next
// execution time so the scheduler can poll for due rows without keeping
// per-node timers. Maintained on automation save, like the trigger index.
type CampaignSchedule struct {
	ID           string `json:"id"             validate:"required"`
	TeamID       string `json:"team_id"        validate:"required"`
	AutomationID string `json:"automation_id"  validate:"required"`
	NodeID       string `json:"node_id"        validate:"required"`

	// CronExpression uses the standard 5-field format
	// (minute hour day month weekday).
	CronExpression string `json:"cron_expression" validate:"required"`

	// Tag narrows the fan-out to contacts carrying it; empty means every
	// contact of the team.
	Tag string `json:"tag,omitempty"`

	NextDueAt time.Time `json:"next_due_at"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCampaignSchedule creates a schedule with the first due time computed
// from now.
func NewCampaignSchedule(id, teamID, automationID, nodeID, cronExpression, tag string) (*CampaignSchedule, error) {
	now := time.Now().UTC()
	schedule := &CampaignSchedule{
		ID:             id,
		TeamID:         teamID,
		AutomationID:   automationID,
		NodeID:         nodeID,
		CronExpression: cronExpression,
		Tag:            tag,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := schedule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// UpdateNextDueAt advances the next execution time past the current time.
func (s *CampaignSchedule) UpdateNextDueAt() error {
	return s.calculateNextDueAt(time.Now().UTC())
}

func (s *CampaignSchedule) calculateNextDueAt(referenceTime time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(referenceTime)
	s.UpdatedAt = time.Now().UTC()

	return nil
}
