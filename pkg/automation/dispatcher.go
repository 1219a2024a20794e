package automation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tidecrm/tide/pkg/events"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/otelhelper"
	"github.com/tidecrm/tide/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Dispatcher is the sole entry point other subsystems use to report a
// business event. It resolves the owning profile, asks the matcher which
// (automation, node) pairs qualify, and fans the matched executions out
// concurrently. Dispatch never fails outward: every internal error is logged
// and swallowed so the event-producing code path is never blocked.
type Dispatcher struct {
	store    persistence.Persistence
	matcher  *Matcher
	executor *Executor
	tracer   trace.Tracer
	logger   *slog.Logger
}

func NewDispatcher(store persistence.Persistence, matcher *Matcher, executor *Executor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		matcher:  matcher,
		executor: executor,
		tracer:   noop.NewTracerProvider().Tracer("dispatcher"),
		logger:   logger.With("module", "dispatcher"),
	}
}

// WithTracer replaces the noop tracer.
func (d *Dispatcher) WithTracer(tracer trace.Tracer) *Dispatcher {
	d.tracer = tracer

	return d
}

// Dispatch routes one business event. Unknown event types are logged and
// dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, event any) {
	switch typed := event.(type) {
	case events.MessageReceived:
		d.dispatchMessage(ctx, typed)
	case *events.MessageReceived:
		d.dispatchMessage(ctx, *typed)
	case events.ContactCreated:
		d.dispatchContactCreated(ctx, typed)
	case *events.ContactCreated:
		d.dispatchContactCreated(ctx, *typed)
	case events.TagAdded:
		d.dispatchTagAdded(ctx, typed)
	case *events.TagAdded:
		d.dispatchTagAdded(ctx, *typed)
	case events.DealCreated:
		d.dispatchDealCreated(ctx, typed)
	case *events.DealCreated:
		d.dispatchDealCreated(ctx, *typed)
	case events.DealStageChanged:
		d.dispatchDealStageChanged(ctx, typed)
	case *events.DealStageChanged:
		d.dispatchDealStageChanged(ctx, *typed)
	default:
		d.logger.WarnContext(ctx, "dropping event of unknown type", "event", event)
	}
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, event events.MessageReceived) {
	profile, ok := d.profileFor(ctx, event.OwnerUserID)
	if !ok {
		return
	}

	contact, ok := d.contactFor(ctx, event.ContactID)
	if !ok {
		return
	}

	matches, err := d.matcher.MatchMessage(ctx, profile.TeamID, event.Body, event.ButtonPayload)
	if err != nil {
		d.logger.ErrorContext(ctx, "trigger matching failed", "event_type", event.GetType(), "error", err)

		return
	}

	trigger := models.TriggerPayload{Body: map[string]any{
		"message":        event.Body,
		"button_payload": event.ButtonPayload,
	}}

	d.fanOut(ctx, string(event.GetType()), profile, contact, nil, matches, trigger)
}

func (d *Dispatcher) dispatchContactCreated(ctx context.Context, event events.ContactCreated) {
	profile, ok := d.profileFor(ctx, event.OwnerUserID)
	if !ok {
		return
	}

	contact, ok := d.contactFor(ctx, event.ContactID)
	if !ok {
		return
	}

	matches, err := d.matcher.MatchContactCreated(ctx, profile.TeamID)
	if err != nil {
		d.logger.ErrorContext(ctx, "trigger matching failed", "event_type", event.GetType(), "error", err)

		return
	}

	trigger := models.TriggerPayload{Body: map[string]any{"contact_id": contact.ID}}

	d.fanOut(ctx, string(event.GetType()), profile, contact, nil, matches, trigger)
}

func (d *Dispatcher) dispatchTagAdded(ctx context.Context, event events.TagAdded) {
	profile, ok := d.profileFor(ctx, event.OwnerUserID)
	if !ok {
		return
	}

	contact, ok := d.contactFor(ctx, event.ContactID)
	if !ok {
		return
	}

	matches, err := d.matcher.MatchTagAdded(ctx, profile.TeamID, event.Tag)
	if err != nil {
		d.logger.ErrorContext(ctx, "trigger matching failed", "event_type", event.GetType(), "error", err)

		return
	}

	trigger := models.TriggerPayload{Body: map[string]any{"tag": event.Tag}}

	d.fanOut(ctx, string(event.GetType()), profile, contact, nil, matches, trigger)
}

func (d *Dispatcher) dispatchDealCreated(ctx context.Context, event events.DealCreated) {
	profile, ok := d.profileFor(ctx, event.OwnerUserID)
	if !ok {
		return
	}

	deal, contact, ok := d.dealAndContactFor(ctx, event.DealID, event.ContactID)
	if !ok {
		return
	}

	matches, err := d.matcher.MatchDealCreated(ctx, profile.TeamID)
	if err != nil {
		d.logger.ErrorContext(ctx, "trigger matching failed", "event_type", event.GetType(), "error", err)

		return
	}

	trigger := models.TriggerPayload{Body: map[string]any{"deal_id": deal.ID}}

	d.fanOut(ctx, string(event.GetType()), profile, contact, deal, matches, trigger)
}

func (d *Dispatcher) dispatchDealStageChanged(ctx context.Context, event events.DealStageChanged) {
	profile, ok := d.profileFor(ctx, event.OwnerUserID)
	if !ok {
		return
	}

	deal, contact, ok := d.dealAndContactFor(ctx, event.DealID, event.ContactID)
	if !ok {
		return
	}

	matches, err := d.matcher.MatchDealStageChanged(ctx, profile.TeamID, event.NewStageID)
	if err != nil {
		d.logger.ErrorContext(ctx, "trigger matching failed", "event_type", event.GetType(), "error", err)

		return
	}

	trigger := models.TriggerPayload{Body: map[string]any{
		"deal_id":      deal.ID,
		"new_stage_id": event.NewStageID,
	}}

	d.fanOut(ctx, string(event.GetType()), profile, contact, deal, matches, trigger)
}

// fanOut loads the matched automations in one batch, drops the inactive
// ones, and runs all surviving matches concurrently. Failures are logged per
// run and never joined into an error.
func (d *Dispatcher) fanOut(ctx context.Context, eventType string, profile *models.Profile, contact *models.Contact, deal *models.Deal, matches []models.TriggerInfo, trigger models.TriggerPayload) {
	if len(matches) == 0 {
		return
	}

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "automation.dispatch",
		attribute.String(otelhelper.EventTypeKey, eventType),
		attribute.String(otelhelper.TeamIDKey, profile.TeamID),
		attribute.Int("tide.match.count", len(matches)),
	)
	defer span.End()

	automationIDs := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))

	for _, match := range matches {
		if _, ok := seen[match.AutomationID]; ok {
			continue
		}

		seen[match.AutomationID] = struct{}{}
		automationIDs = append(automationIDs, match.AutomationID)
	}

	automations, err := d.store.AutomationsByIDs(ctx, automationIDs)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to load matched automations", "error", err)
		otelhelper.SetError(span, err)

		return
	}

	byID := make(map[string]*models.Automation, len(automations))
	for _, automation := range automations {
		byID[automation.ID] = automation
	}

	var wg sync.WaitGroup

	for _, match := range matches {
		automation, ok := byID[match.AutomationID]
		if !ok {
			d.logger.WarnContext(ctx, "trigger index references missing automation", "automation_id", match.AutomationID)

			continue
		}

		if automation.Status != models.AutomationStatusActive {
			continue
		}

		wg.Add(1)

		go func(automation *models.Automation, nodeID string) {
			defer wg.Done()

			// Each run gets its own contact and deal copy. Handlers mutate
			// them while sibling runs marshal theirs into template data.
			run, err := d.executeMatch(ctx, automation, contact.Clone(), nodeID, trigger, profile, deal.Clone())
			if err != nil {
				runID := ""
				if run != nil {
					runID = run.ID
				}

				d.logger.ErrorContext(ctx, "automation run failed",
					"automation_id", automation.ID,
					"node_id", nodeID,
					"run_id", runID,
					"error", err)
			}
		}(automation, match.NodeID)
	}

	wg.Wait()
}

func (d *Dispatcher) executeMatch(ctx context.Context, automation *models.Automation, contact *models.Contact, nodeID string, trigger models.TriggerPayload, profile *models.Profile, deal *models.Deal) (run *models.AutomationRun, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "automation run panicked", "automation_id", automation.ID, "node_id", nodeID, "panic", r)
		}
	}()

	run, err = d.executor.ExecuteWithDeal(ctx, automation, contact, nodeID, trigger, profile, deal)

	return run, err
}

// profileFor resolves the owning profile. Dispatch runs from background
// contexts with no caller to report to, so a missing profile is logged and
// the event is dropped.
func (d *Dispatcher) profileFor(ctx context.Context, ownerUserID string) (*models.Profile, bool) {
	profile, err := d.store.ProfileByOwnerUserID(ctx, ownerUserID)
	if err != nil {
		if persistence.IsProfileNotFound(err) {
			d.logger.WarnContext(ctx, "dropping event for unknown owner", "owner_user_id", ownerUserID)
		} else {
			d.logger.ErrorContext(ctx, "failed to load profile", "owner_user_id", ownerUserID, "error", err)
		}

		return nil, false
	}

	return profile, true
}

func (d *Dispatcher) contactFor(ctx context.Context, contactID string) (*models.Contact, bool) {
	contact, err := d.store.ContactByID(ctx, contactID)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to load contact for event", "contact_id", contactID, "error", err)

		return nil, false
	}

	return contact, true
}

func (d *Dispatcher) dealAndContactFor(ctx context.Context, dealID, contactID string) (*models.Deal, *models.Contact, bool) {
	deal, err := d.store.DealByID(ctx, dealID)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to load deal for event", "deal_id", dealID, "error", err)

		return nil, nil, false
	}

	if contactID == "" {
		contactID = deal.ContactID
	}

	contact, ok := d.contactFor(ctx, contactID)
	if !ok {
		return nil, nil, false
	}

	return deal, contact, true
}
