package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/persistence"
	"github.com/tidecrm/tide/pkg/services"
)

type APIHandlers struct {
	automationService *services.Automation
	crmService        *services.CRM
	validator         *validator.Validate
}

func NewAPIHandlers(
	automationService *services.Automation,
	crmService *services.CRM,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		automationService: automationService,
		crmService:        crmService,
		validator:         validator,
	}
}

// Register mounts all management routes.
func (h *APIHandlers) Register(app *fiber.App) {
	automations := app.Group("/automations")
	automations.Get("/", h.ListAutomations)
	automations.Post("/", h.CreateAutomation)
	automations.Get("/:id", h.GetAutomation)
	automations.Patch("/:id", h.UpdateAutomation)
	automations.Delete("/:id", h.DeleteAutomation)
	automations.Post("/:id/activate", h.ActivateAutomation)
	automations.Post("/:id/pause", h.PauseAutomation)
	automations.Get("/:id/nodes/:nodeId/runs", h.GetNodeRuns)

	contacts := app.Group("/contacts")
	contacts.Get("/", h.ListContacts)
	contacts.Post("/", h.CreateContact)
	contacts.Get("/:id", h.GetContact)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) ListAutomations(c fiber.Ctx) error {
	automations, err := h.automationService.List(c.Context(), c.Query("team_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"automations": automations, "total_count": len(automations)})
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	var req CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	automation := &models.Automation{
		TeamID: req.TeamID,
		Name:   req.Name,
		Status: req.Status,
		Nodes:  req.Nodes,
		Edges:  req.Edges,
	}

	err := h.automationService.Save(c.Context(), automation)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(automation)
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	automation, err := h.automationService.Get(c.Context(), id)
	if err != nil {
		if persistence.IsAutomationNotFound(err) {
			return notFound(c, "Automation not found")
		}

		return internalError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	var req UpdateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.automationService.Get(c.Context(), id)
	if err != nil {
		if persistence.IsAutomationNotFound(err) {
			return notFound(c, "Automation not found")
		}

		return internalError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	// Nodes and edges replace the graph wholesale when present.
	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Edges != nil {
		existing.Edges = req.Edges
	}

	err = h.automationService.Save(c.Context(), existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(existing)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	err := h.automationService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsAutomationNotFound(err) {
			return notFound(c, "Automation not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateAutomation(c fiber.Ctx) error {
	automation, err := h.automationService.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) PauseAutomation(c fiber.Ctx) error {
	automation, err := h.automationService.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) GetNodeRuns(c fiber.Ctx) error {
	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	runs, err := h.crmService.NodeRuns(c.Context(), c.Params("id"), c.Params("nodeId"), limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs, "total_count": len(runs)})
}

func (h *APIHandlers) ListContacts(c fiber.Ctx) error {
	contacts, err := h.crmService.ListContacts(c.Context(), c.Query("team_id"), c.Query("tag"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"contacts": contacts, "total_count": len(contacts)})
}

func (h *APIHandlers) CreateContact(c fiber.Ctx) error {
	var req CreateContactRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	contact := &models.Contact{
		TeamID:       req.TeamID,
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		CustomFields: req.CustomFields,
	}
	for _, tag := range req.Tags {
		contact.AddTag(tag)
	}

	err := h.crmService.SaveContact(c.Context(), contact)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(contact)
}

func (h *APIHandlers) GetContact(c fiber.Ctx) error {
	contact, err := h.crmService.GetContact(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsContactNotFound(err) {
			return notFound(c, "Contact not found")
		}

		return internalError(c, err)
	}

	return c.JSON(contact)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.automationService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
