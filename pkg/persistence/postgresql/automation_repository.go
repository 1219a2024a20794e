package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
)

// AutomationRepository handles automation and trigger-index operations.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

const automationColumns = `id, team_id, name, status, nodes, edges, created_at, updated_at`

// Save upserts the automation row; nodes and edges are replaced wholesale.
func (r *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC()

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	if automation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation ID: %w", err)
		}

		automation.ID = id.String()
	}

	nodesJSON, err := json.Marshal(automation.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(automation.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	query := `
		INSERT INTO automations (id, team_id, name, status, nodes, edges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		automation.ID,
		automation.TeamID,
		automation.Name,
		automation.Status,
		nodesJSON,
		edgesJSON,
		automation.CreatedAt,
		automation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	return nil
}

func (r *AutomationRepository) GetByID(ctx context.Context, id string) (*models.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = $1`

	automation, err := r.scanAutomation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrAutomationNotFound
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	return automation, nil
}

func (r *AutomationRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Automation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = ANY($1)`

	return r.queryAutomations(ctx, query, pq.Array(ids))
}

func (r *AutomationRepository) GetByTeam(ctx context.Context, teamID string) ([]*models.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE team_id = $1 ORDER BY created_at DESC`

	return r.queryAutomations(ctx, query, teamID)
}

func (r *AutomationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM automations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}

	return nil
}

func (r *AutomationRepository) queryAutomations(ctx context.Context, query string, args ...any) ([]*models.Automation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		automation, err := r.scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

func (r *AutomationRepository) scanAutomation(scanner interface {
	Scan(dest ...any) error
}) (*models.Automation, error) {
	var (
		automation           models.Automation
		nodesJSON, edgesJSON []byte
	)

	err := scanner.Scan(
		&automation.ID,
		&automation.TeamID,
		&automation.Name,
		&automation.Status,
		&nodesJSON,
		&edgesJSON,
		&automation.CreatedAt,
		&automation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if nodesJSON != nil {
		err := json.Unmarshal(nodesJSON, &automation.Nodes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
		}
	}

	if edgesJSON != nil {
		err := json.Unmarshal(edgesJSON, &automation.Edges)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
		}
	}

	return &automation, nil
}

// ReplaceTriggers replaces the trigger-index rows of one automation inside a
// transaction, keeping the one-row-per-trigger-node contract.
func (r *AutomationRepository) ReplaceTriggers(ctx context.Context, automationID string, triggers []*models.AutomationTrigger) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM automation_triggers WHERE automation_id = $1`, automationID)
	if err != nil {
		return fmt.Errorf("failed to delete existing trigger rows: %w", err)
	}

	for _, trigger := range triggers {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO automation_triggers (team_id, automation_id, node_id, trigger_type, trigger_key)
			VALUES ($1, $2, $3, $4, $5)
		`,
			trigger.TeamID,
			trigger.AutomationID,
			trigger.NodeID,
			trigger.TriggerType,
			trigger.TriggerKey,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trigger row: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit trigger rows: %w", err)
	}

	return nil
}

func (r *AutomationRepository) TriggersByType(ctx context.Context, teamID, triggerType string) ([]*models.AutomationTrigger, error) {
	query := `
		SELECT team_id, automation_id, node_id, trigger_type, trigger_key
		FROM automation_triggers
		WHERE team_id = $1 AND trigger_type = $2
	`

	return r.queryTriggers(ctx, query, teamID, triggerType)
}

func (r *AutomationRepository) TriggersByTypeAndKey(ctx context.Context, teamID, triggerType, key string) ([]*models.AutomationTrigger, error) {
	query := `
		SELECT team_id, automation_id, node_id, trigger_type, trigger_key
		FROM automation_triggers
		WHERE team_id = $1 AND trigger_type = $2 AND trigger_key = $3
	`

	return r.queryTriggers(ctx, query, teamID, triggerType, key)
}

func (r *AutomationRepository) queryTriggers(ctx context.Context, query string, args ...any) ([]*models.AutomationTrigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger index: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	triggers := make([]*models.AutomationTrigger, 0)

	for rows.Next() {
		var trigger models.AutomationTrigger

		err := rows.Scan(
			&trigger.TeamID,
			&trigger.AutomationID,
			&trigger.NodeID,
			&trigger.TriggerType,
			&trigger.TriggerKey,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger row: %w", err)
		}

		triggers = append(triggers, &trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating trigger rows: %w", err)
	}

	return triggers, nil
}
