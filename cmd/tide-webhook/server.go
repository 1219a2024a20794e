// Package main provides the Tide webhook trigger server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel"

	"github.com/tidecrm/tide/pkg/automation"
	"github.com/tidecrm/tide/pkg/capture"
	"github.com/tidecrm/tide/pkg/eventbus"
	"github.com/tidecrm/tide/pkg/messaging"
	"github.com/tidecrm/tide/pkg/persistence"
	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/tidecrm/tide/pkg/registry"
	"github.com/tidecrm/tide/pkg/webhook"
)

type ServerConfig struct {
	RedisURL          string
	MessagingAPIURL   string
	MessagingAPIToken string
}

type Server struct {
	logger      *slog.Logger
	handler     *webhook.Handler
	broadcaster capture.Broadcaster
}

func NewServer(
	ctx context.Context,
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	config ServerConfig,
) (*Server, error) {
	var sender messaging.Sender = messaging.NewMemorySender()
	if config.MessagingAPIURL != "" {
		sender = messaging.NewHTTPSender(config.MessagingAPIURL, config.MessagingAPIToken, logger)
	}

	var broadcaster capture.Broadcaster = capture.NewMemoryBroadcaster()

	if config.RedisURL != "" {
		redisBroadcaster, err := capture.NewRedisBroadcasterFromURL(ctx, config.RedisURL, logger)
		if err != nil {
			return nil, err
		}

		broadcaster = redisBroadcaster
	}

	deps := protocol.Dependencies{
		Persistence: store,
		Messaging:   sender,
		EventBus:    eventBus,
		Logger:      logger,
	}

	tracer := otel.Tracer("tide-webhook")

	executor := automation.NewExecutor(registry.NewDefaultRegistry(logger), deps, eventBus, logger).
		WithTracer(tracer)
	matcher := automation.NewMatcher(store, logger)
	dispatcher := automation.NewDispatcher(store, matcher, executor, logger).
		WithTracer(tracer)
	mapper := webhook.NewMapper(store, logger)

	return &Server{
		logger:      logger,
		handler:     webhook.NewHandler(store, mapper, executor, dispatcher, broadcaster, logger),
		broadcaster: broadcaster,
	}, nil
}

func (s *Server) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	s.handler.Register(app)

	return app
}

func (s *Server) Start(port int) error {
	app := s.App()

	return app.Listen(":" + strconv.Itoa(port))
}

func (s *Server) Close(ctx context.Context) {
	if err := s.broadcaster.Close(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to close capture broadcaster", "error", err)
	}
}
