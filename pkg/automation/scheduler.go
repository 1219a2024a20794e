package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
)

// DefaultPollInterval is how often the scheduler checks for due campaign
// schedules. Cron resolution is one minute, so polling faster buys nothing.
const DefaultPollInterval = time.Minute

// Scheduler polls the campaign schedule table and fires due schedules. One
// due schedule fans out to every contact in its audience, each contact
// getting an isolated run starting at the schedule trigger node.
type Scheduler struct {
	store    persistence.Persistence
	executor *Executor
	logger   *slog.Logger

	// PollInterval overrides the default tick period, mainly for tests.
	PollInterval time.Duration
}

func NewScheduler(store persistence.Persistence, executor *Executor, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		executor:     executor,
		logger:       logger.With("module", "scheduler"),
		PollInterval: DefaultPollInterval,
	}
}

// Start runs the poll loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "campaign scheduler started", "poll_interval", s.PollInterval)

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "campaign scheduler stopped")

			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(ctx, now.UTC())
		}
	}
}

// Tick fires every schedule due at the given time. Errors are handled per
// schedule so one broken row cannot stall the rest.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	due, err := s.store.DueSchedules(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load due schedules", "error", err)

		return
	}

	for _, schedule := range due {
		s.fire(ctx, schedule)
		s.advance(ctx, schedule)
	}
}

func (s *Scheduler) fire(ctx context.Context, schedule *models.CampaignSchedule) {
	automation, err := s.store.AutomationByID(ctx, schedule.AutomationID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load automation for schedule",
			"schedule_id", schedule.ID,
			"automation_id", schedule.AutomationID,
			"error", err)

		return
	}

	if automation.Status != models.AutomationStatusActive {
		return
	}

	profile, err := s.store.ProfileByTeam(ctx, schedule.TeamID)
	if err != nil {
		if !persistence.IsProfileNotFound(err) {
			s.logger.ErrorContext(ctx, "failed to load profile for schedule", "schedule_id", schedule.ID, "error", err)

			return
		}

		profile = nil
	}

	contacts, err := s.audience(ctx, schedule)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load schedule audience", "schedule_id", schedule.ID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "firing campaign schedule",
		"schedule_id", schedule.ID,
		"automation_id", schedule.AutomationID,
		"contacts", len(contacts))

	trigger := models.TriggerPayload{Body: map[string]any{
		"schedule_id":     schedule.ID,
		"cron_expression": schedule.CronExpression,
	}}

	for _, contact := range contacts {
		_, err := s.executor.Execute(ctx, automation, contact, schedule.NodeID, trigger, profile)
		if err != nil {
			s.logger.ErrorContext(ctx, "scheduled run failed",
				"schedule_id", schedule.ID,
				"automation_id", schedule.AutomationID,
				"contact_id", contact.ID,
				"error", err)
		}
	}
}

func (s *Scheduler) audience(ctx context.Context, schedule *models.CampaignSchedule) ([]*models.Contact, error) {
	if schedule.Tag != "" {
		return s.store.ContactsByTag(ctx, schedule.TeamID, schedule.Tag)
	}

	return s.store.ContactsByTeam(ctx, schedule.TeamID)
}

// advance always runs, even when firing failed, so a schedule with a broken
// automation does not fire on every tick.
func (s *Scheduler) advance(ctx context.Context, schedule *models.CampaignSchedule) {
	if err := schedule.UpdateNextDueAt(); err != nil {
		s.logger.ErrorContext(ctx, "failed to compute next due time, deactivating schedule",
			"schedule_id", schedule.ID,
			"cron", schedule.CronExpression,
			"error", err)

		schedule.Active = false
	}

	if err := s.store.SaveSchedule(ctx, schedule); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist schedule", "schedule_id", schedule.ID, "error", err)
	}
}
