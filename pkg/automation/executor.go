package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tidecrm/tide/pkg/eventbus"
	"github.com/tidecrm/tide/pkg/events"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/otelhelper"
	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/tidecrm/tide/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultMaxSteps bounds node visits per run. The graph is user-authored and
// may contain cycles.
const DefaultMaxSteps = 100

// Executor walks an automation graph node by node, sequentially. Each visit
// appends one node run row; the whole run appends one summary row.
type Executor struct {
	registry *registry.Registry
	deps     protocol.Dependencies
	eventBus eventbus.EventPublisher
	tracer   trace.Tracer
	logger   *slog.Logger

	// MaxSteps is the hard cap of node visits per run.
	MaxSteps int

	// ContinueOnActionError keeps walking the default edge after a failed
	// action node. Edge-selection failures always terminate the run.
	ContinueOnActionError bool
}

func NewExecutor(reg *registry.Registry, deps protocol.Dependencies, eventBus eventbus.EventPublisher, logger *slog.Logger) *Executor {
	return &Executor{
		registry:              reg,
		deps:                  deps,
		eventBus:              eventBus,
		tracer:                noop.NewTracerProvider().Tracer("executor"),
		logger:                logger.With("module", "executor"),
		MaxSteps:              DefaultMaxSteps,
		ContinueOnActionError: true,
	}
}

// WithTracer replaces the noop tracer.
func (e *Executor) WithTracer(tracer trace.Tracer) *Executor {
	e.tracer = tracer

	return e
}

// Execute runs the automation starting at startNodeID against the given
// contact and trigger payload. It returns the run summary; the summary and
// the per-node log are persisted regardless of outcome.
func (e *Executor) Execute(ctx context.Context, automation *models.Automation, contact *models.Contact, startNodeID string, trigger models.TriggerPayload, profile *models.Profile) (*models.AutomationRun, error) {
	return e.ExecuteWithDeal(ctx, automation, contact, startNodeID, trigger, profile, nil)
}

// ExecuteWithDeal is Execute with a deal seeded into the run context, for
// deal-originated triggers.
func (e *Executor) ExecuteWithDeal(ctx context.Context, automation *models.Automation, contact *models.Contact, startNodeID string, trigger models.TriggerPayload, profile *models.Profile, deal *models.Deal) (*models.AutomationRun, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run ID: %w", err)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "automation.execute",
		attribute.String(otelhelper.AutomationIDKey, automation.ID),
		attribute.String(otelhelper.TeamIDKey, automation.TeamID),
		attribute.String(otelhelper.NodeIDKey, startNodeID),
		attribute.String(otelhelper.RunIDKey, runID.String()),
	)
	defer span.End()

	run := &models.AutomationRun{
		ID:           runID.String(),
		AutomationID: automation.ID,
		TeamID:       automation.TeamID,
		StartNodeID:  startNodeID,
		Status:       models.RunStatusSuccess,
		StartedAt:    time.Now().UTC(),
	}
	if contact != nil {
		run.ContactID = contact.ID
	}

	e.publishRunStarted(ctx, run, profile)

	executionCtx := &models.ExecutionContext{
		RunID:        run.ID,
		AutomationID: automation.ID,
		TeamID:       automation.TeamID,
		Contact:      contact,
		Deal:         deal,
		Trigger:      trigger,
		Profile:      profile,
	}

	runErr := e.walk(ctx, automation, startNodeID, executionCtx, run)
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()

		otelhelper.SetError(span, runErr)
	}

	run.FinishedAt = time.Now().UTC()

	err = e.deps.Persistence.AppendAutomationRun(ctx, run)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to record run summary", "run_id", run.ID, "error", err)
	}

	e.publishRunFinished(ctx, run, profile)

	if runErr != nil {
		return run, runErr
	}

	return run, nil
}

// walk is the traversal loop. It returns an error only for run-fatal
// conditions: missing start node, step cap, edge-selection failures.
func (e *Executor) walk(ctx context.Context, automation *models.Automation, startNodeID string, executionCtx *models.ExecutionContext, run *models.AutomationRun) error {
	current := automation.NodeByID(startNodeID)
	if current == nil {
		// A stale trigger index row points at a node that no longer exists.
		return fmt.Errorf("start node %s not found in automation %s", startNodeID, automation.ID)
	}

	for current != nil {
		run.Steps++
		if run.Steps > e.MaxSteps {
			return fmt.Errorf("step limit of %d exceeded at node %s", e.MaxSteps, current.ID)
		}

		outcome, nodeErr := e.executeNode(ctx, current, executionCtx)

		e.appendNodeRun(ctx, run, current.ID, nodeErr)

		if nodeErr != nil {
			if current.IsLogic() {
				return fmt.Errorf("logic node %s failed: %w", current.ID, nodeErr)
			}

			if !e.ContinueOnActionError {
				return fmt.Errorf("action node %s failed: %w", current.ID, nodeErr)
			}

			e.logger.ErrorContext(ctx, "action failed, continuing traversal",
				"run_id", run.ID,
				"node_id", current.ID,
				"node_type", current.Data.Type,
				"error", nodeErr)

			outcome = &models.NodeOutcome{}
		}

		next, err := e.nextNode(automation, current, outcome)
		if err != nil {
			return err
		}

		current = next
	}

	return nil
}

func (e *Executor) executeNode(ctx context.Context, node *models.AutomationNode, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	// Trigger nodes are entry points only; the matching already happened.
	if node.IsTrigger() {
		return &models.NodeOutcome{}, nil
	}

	handler, err := e.registry.Create(node.Data.Type, node.Data.Config, e.deps)
	if err != nil {
		return nil, err
	}

	return handler.Execute(ctx, executionCtx)
}

// nextNode selects the outgoing edge. A node with no outgoing edges ends the
// run cleanly; a produced handle with no matching edge among existing edges
// is a graph integrity failure.
func (e *Executor) nextNode(automation *models.Automation, current *models.AutomationNode, outcome *models.NodeOutcome) (*models.AutomationNode, error) {
	edges := automation.OutgoingEdges(current.ID)
	if len(edges) == 0 {
		return nil, nil
	}

	var edge *models.Edge

	if outcome != nil && outcome.Handle != "" {
		edge = automation.OutgoingEdgeByHandle(current.ID, outcome.Handle)
		if edge == nil {
			return nil, fmt.Errorf("node %s has no outgoing edge for branch %q", current.ID, outcome.Handle)
		}
	} else {
		// Actions and triggers have a single successor.
		edge = edges[0]
	}

	next := automation.NodeByID(edge.Target)
	if next == nil {
		return nil, fmt.Errorf("edge %s targets missing node %s", edge.ID, edge.Target)
	}

	return next, nil
}

func (e *Executor) appendNodeRun(ctx context.Context, run *models.AutomationRun, nodeID string, nodeErr error) {
	record := &models.NodeRun{
		RunID:        run.ID,
		AutomationID: run.AutomationID,
		NodeID:       nodeID,
		TeamID:       run.TeamID,
		Status:       models.RunStatusSuccess,
		CreatedAt:    time.Now().UTC(),
	}

	if nodeErr != nil {
		record.Status = models.RunStatusFailed
		record.Details = nodeErr.Error()
	}

	err := e.deps.Persistence.AppendNodeRun(ctx, record)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to append node run", "run_id", run.ID, "node_id", nodeID, "error", err)
	}
}

func (e *Executor) publishRunStarted(ctx context.Context, run *models.AutomationRun, profile *models.Profile) {
	if e.eventBus == nil {
		return
	}

	event := events.RunStarted{
		BaseEvent:    events.NewBaseEvent(events.RunStartedEvent, ownerUserIDOf(profile)),
		RunID:        run.ID,
		AutomationID: run.AutomationID,
		StartNodeID:  run.StartNodeID,
		ContactID:    run.ContactID,
	}

	err := e.eventBus.Publish(ctx, run.ID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish run started event", "run_id", run.ID, "error", err)
	}
}

func (e *Executor) publishRunFinished(ctx context.Context, run *models.AutomationRun, profile *models.Profile) {
	if e.eventBus == nil {
		return
	}

	var event eventbus.Event

	if run.Status == models.RunStatusFailed {
		event = events.RunFailed{
			BaseEvent:    events.NewBaseEvent(events.RunFailedEvent, ownerUserIDOf(profile)),
			RunID:        run.ID,
			AutomationID: run.AutomationID,
			Error:        run.Error,
		}
	} else {
		event = events.RunFinished{
			BaseEvent:    events.NewBaseEvent(events.RunFinishedEvent, ownerUserIDOf(profile)),
			RunID:        run.ID,
			AutomationID: run.AutomationID,
			Status:       run.Status,
			Steps:        run.Steps,
		}
	}

	err := e.eventBus.Publish(ctx, run.ID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish run finished event", "run_id", run.ID, "error", err)
	}
}

func ownerUserIDOf(profile *models.Profile) string {
	if profile != nil {
		return profile.OwnerUserID
	}

	return ""
}
