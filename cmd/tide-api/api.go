// Package main provides the Tide management API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/tidecrm/tide/pkg/persistence"
	"github.com/tidecrm/tide/pkg/registry"
	"github.com/tidecrm/tide/pkg/services"
	"github.com/tidecrm/tide/pkg/web"
)

type API struct {
	logger   *slog.Logger
	store    persistence.Persistence
	registry *registry.Registry
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, store persistence.Persistence) *API {
	return &API{
		logger:   logger,
		store:    store,
		registry: registry.NewDefaultRegistry(logger),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	automationService := services.NewAutomation(a.store, a.validate, a.registry)
	crmService := services.NewCRM(a.store)

	handlers := web.NewAPIHandlers(automationService, crmService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Tide API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
