package webhook

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/tidecrm/tide/pkg/automation"
	"github.com/tidecrm/tide/pkg/capture"
	"github.com/tidecrm/tide/pkg/events"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
)

// Handler serves the externally reachable trigger endpoint. One URL addresses
// one webhook trigger node: /trigger/{prefix}__{nodeId}, where prefix is the
// profile's webhook path prefix or, as a fallback, its literal id.
type Handler struct {
	store       persistence.Persistence
	mapper      *Mapper
	executor    *automation.Executor
	dispatcher  *automation.Dispatcher
	broadcaster capture.Broadcaster
	logger      *slog.Logger
}

func NewHandler(
	store persistence.Persistence,
	mapper *Mapper,
	executor *automation.Executor,
	dispatcher *automation.Dispatcher,
	broadcaster capture.Broadcaster,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		store:       store,
		mapper:      mapper,
		executor:    executor,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		logger:      logger.With("module", "webhook_endpoint"),
	}
}

// Register mounts the trigger route. Any HTTP method is accepted: external
// systems get the URL pasted into their UI and call it however they like.
func (h *Handler) Register(app *fiber.App) {
	app.All("/trigger/:id", h.Trigger)
}

func (h *Handler) Trigger(c fiber.Ctx) error {
	prefix, nodeID, ok := splitCompositeID(c.Params("id"))
	if !ok {
		return badRequest(c, "path must be {prefix}__{nodeId}")
	}

	profile, err := h.resolveProfile(c.Context(), prefix)
	if err != nil {
		if persistence.IsProfileNotFound(err) {
			return notFound(c, "profile not found")
		}

		return h.internalError(c, nil, err)
	}

	automationMatch, node, err := h.resolveNode(c.Context(), profile.TeamID, nodeID)
	if err != nil {
		return h.internalError(c, profile, err)
	}

	if node == nil {
		return notFound(c, "webhook node not found")
	}

	if node.Data.Type != models.NodeTypeWebhook {
		return badRequest(c, "node is not a webhook trigger")
	}

	var config models.WebhookTriggerConfig

	err = node.Data.DecodeConfig(&config)
	if err != nil {
		return h.internalError(c, profile, err)
	}

	payload := models.TriggerPayload{
		Body:    ParseBody(c.Body(), c.Get(fiber.HeaderContentType)),
		Query:   queryMap(c),
		Headers: headerMap(c),
	}

	if config.IsListening {
		return h.capture(c, automationMatch, node, payload)
	}

	if automationMatch.Status != models.AutomationStatusActive {
		return notFound(c, "webhook node not found")
	}

	return h.process(c, profile, automationMatch, node, config, payload)
}

// capture broadcasts the parsed payload to editor sessions listening on the
// automation's channel. Nothing is executed and nothing is logged to the node
// run log.
func (h *Handler) capture(c fiber.Ctx, automationMatch *models.Automation, node *models.AutomationNode, payload models.TriggerPayload) error {
	sample := &capture.Sample{
		AutomationID: automationMatch.ID,
		NodeID:       node.ID,
		Body:         payload.Body,
		Query:        payload.Query,
		Headers:      payload.Headers,
	}

	err := h.broadcaster.Publish(c.Context(), sample)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "failed to broadcast captured sample",
			"automation_id", automationMatch.ID,
			"node_id", node.ID,
			"error", err)
	}

	return c.JSON(fiber.Map{"message": "captured"})
}

// process runs the production path: one mapping + execution per logical
// event, each isolated, followed by the cascade dispatches for contacts and
// tags the mapping created.
func (h *Handler) process(c fiber.Ctx, profile *models.Profile, automationMatch *models.Automation, node *models.AutomationNode, config models.WebhookTriggerConfig, payload models.TriggerPayload) error {
	eventBodies := Events(payload.Body)
	processed := 0

	var lastErr error

	for i, body := range eventBodies {
		trigger := models.TriggerPayload{Body: body, Query: payload.Query, Headers: payload.Headers}

		err := h.processEvent(c.Context(), profile, automationMatch, node, config, trigger)
		if err != nil {
			h.logger.ErrorContext(c.Context(), "failed to process webhook event",
				"automation_id", automationMatch.ID,
				"node_id", node.ID,
				"event_index", i,
				"error", err)

			lastErr = err

			continue
		}

		processed++
	}

	// Partial batch failures stay 200; when nothing went through there is no
	// success to report.
	if processed == 0 && len(eventBodies) > 0 {
		return h.internalError(c, profile, lastErr)
	}

	return c.JSON(fiber.Map{"message": "processed", "events": len(eventBodies), "processed": processed})
}

func (h *Handler) processEvent(ctx context.Context, profile *models.Profile, automationMatch *models.Automation, node *models.AutomationNode, config models.WebhookTriggerConfig, trigger models.TriggerPayload) error {
	result, err := h.mapper.MapPayload(ctx, profile, trigger, config.Mappings)
	if err != nil {
		return err
	}

	_, err = h.executor.Execute(ctx, automationMatch, result.Contact, node.ID, trigger, profile)
	if err != nil {
		return err
	}

	// Cascade dispatches run after the webhook's own execution so other
	// automations chained off contact_created / tag_added also fire. The
	// dispatcher swallows its own failures.
	if result.IsNewContact {
		h.dispatcher.Dispatch(ctx, events.ContactCreated{
			BaseEvent: events.NewBaseEvent(events.ContactCreatedEvent, profile.OwnerUserID),
			ContactID: result.Contact.ID,
		})
	}

	for _, tag := range result.NewlyAddedTags {
		h.dispatcher.Dispatch(ctx, events.TagAdded{
			BaseEvent: events.NewBaseEvent(events.TagAddedEvent, profile.OwnerUserID),
			ContactID: result.Contact.ID,
			Tag:       tag,
		})
	}

	return nil
}

// resolveProfile tries the webhook path prefix first, then falls back to the
// prefix being a literal profile id.
func (h *Handler) resolveProfile(ctx context.Context, prefix string) (*models.Profile, error) {
	profile, err := h.store.ProfileByWebhookPrefix(ctx, prefix)
	if err == nil {
		return profile, nil
	}

	if !persistence.IsProfileNotFound(err) {
		return nil, err
	}

	return h.store.ProfileByID(ctx, prefix)
}

// resolveNode scans the team's automations for the one containing nodeID.
// Paused and draft automations are included so listening mode works while a
// workflow is still being configured; the production path re-checks status.
func (h *Handler) resolveNode(ctx context.Context, teamID, nodeID string) (*models.Automation, *models.AutomationNode, error) {
	automations, err := h.store.AutomationsByTeam(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}

	for _, candidate := range automations {
		if node := candidate.NodeByID(nodeID); node != nil {
			return candidate, node, nil
		}
	}

	return nil, nil, nil
}

func (h *Handler) internalError(c fiber.Ctx, profile *models.Profile, err error) error {
	h.logger.ErrorContext(c.Context(), "webhook endpoint failure", "path", c.Path(), "error", err)

	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error")

	// Error details leak internals; only profiles in debug mode get them.
	if profile != nil && profile.Debug {
		problem = problem.WithDetail(err.Error())
	}

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// splitCompositeID splits "{prefix}__{nodeId}" on the last "__" so prefixes
// containing "__" still resolve.
func splitCompositeID(id string) (string, string, bool) {
	idx := strings.LastIndex(id, "__")
	if idx <= 0 || idx+2 >= len(id) {
		return "", "", false
	}

	return id[:idx], id[idx+2:], true
}

func queryMap(c fiber.Ctx) map[string]any {
	queries := c.Queries()
	if len(queries) == 0 {
		return nil
	}

	out := make(map[string]any, len(queries))
	for key, value := range queries {
		out[key] = value
	}

	return out
}

func headerMap(c fiber.Ctx) map[string]any {
	headers := c.GetReqHeaders()
	if len(headers) == 0 {
		return nil
	}

	out := make(map[string]any, len(headers))

	for key, values := range headers {
		if len(values) == 1 {
			out[key] = values[0]
		} else {
			out[key] = values
		}
	}

	return out
}
