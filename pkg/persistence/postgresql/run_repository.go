package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tidecrm/tide/pkg/models"
)

// RunRepository handles the append-only run log and campaign schedules.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

func (r *RunRepository) AppendNodeRun(ctx context.Context, run *models.NodeRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO node_runs (run_id, automation_id, node_id, team_id, status, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.RunID,
		run.AutomationID,
		run.NodeID,
		run.TeamID,
		run.Status,
		run.Details,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append node run: %w", err)
	}

	return nil
}

func (r *RunRepository) AppendAutomationRun(ctx context.Context, run *models.AutomationRun) error {
	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	query := `
		INSERT INTO automation_runs (id, automation_id, team_id, contact_id, start_node_id, status, steps, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.AutomationID,
		run.TeamID,
		run.ContactID,
		run.StartNodeID,
		run.Status,
		run.Steps,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append automation run: %w", err)
	}

	return nil
}

func (r *RunRepository) NodeRunsByNode(ctx context.Context, automationID, nodeID string, limit int) ([]*models.NodeRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT run_id, automation_id, node_id, team_id, status, details, created_at
		FROM node_runs
		WHERE automation_id = $1 AND node_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, automationID, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query node runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.NodeRun, 0)

	for rows.Next() {
		var run models.NodeRun

		err := rows.Scan(
			&run.RunID,
			&run.AutomationID,
			&run.NodeID,
			&run.TeamID,
			&run.Status,
			&run.Details,
			&run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node run: %w", err)
		}

		runs = append(runs, &run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating node runs: %w", err)
	}

	return runs, nil
}

// ReplaceSchedules replaces the schedule rows of one automation in a
// transaction, mirroring how the trigger index is maintained.
func (r *RunRepository) ReplaceSchedules(ctx context.Context, automationID string, schedules []*models.CampaignSchedule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM campaign_schedules WHERE automation_id = $1`, automationID)
	if err != nil {
		return fmt.Errorf("failed to delete existing schedules: %w", err)
	}

	for _, schedule := range schedules {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO campaign_schedules (id, team_id, automation_id, node_id, cron_expression, tag, next_due_at, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			schedule.ID,
			schedule.TeamID,
			schedule.AutomationID,
			schedule.NodeID,
			schedule.CronExpression,
			schedule.Tag,
			schedule.NextDueAt,
			schedule.Active,
			schedule.CreatedAt,
			schedule.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert schedule: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit schedules: %w", err)
	}

	return nil
}

func (r *RunRepository) SaveSchedule(ctx context.Context, schedule *models.CampaignSchedule) error {
	query := `
		INSERT INTO campaign_schedules (id, team_id, automation_id, node_id, cron_expression, tag, next_due_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			tag = EXCLUDED.tag,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.TeamID,
		schedule.AutomationID,
		schedule.NodeID,
		schedule.CronExpression,
		schedule.Tag,
		schedule.NextDueAt,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

func (r *RunRepository) DueSchedules(ctx context.Context, now time.Time) ([]*models.CampaignSchedule, error) {
	query := `
		SELECT id, team_id, automation_id, node_id, cron_expression, tag, next_due_at, active, created_at, updated_at
		FROM campaign_schedules
		WHERE active = TRUE AND next_due_at <= $1
		ORDER BY next_due_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	schedules := make([]*models.CampaignSchedule, 0)

	for rows.Next() {
		var schedule models.CampaignSchedule

		err := rows.Scan(
			&schedule.ID,
			&schedule.TeamID,
			&schedule.AutomationID,
			&schedule.NodeID,
			&schedule.CronExpression,
			&schedule.Tag,
			&schedule.NextDueAt,
			&schedule.Active,
			&schedule.CreatedAt,
			&schedule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, &schedule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}
