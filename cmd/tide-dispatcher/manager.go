// Package main provides the Tide dispatcher service. It consumes business
// events from the event bus, runs the automations they match, and drives the
// campaign scheduler.
package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/tidecrm/tide/pkg/automation"
	"github.com/tidecrm/tide/pkg/eventbus"
	"github.com/tidecrm/tide/pkg/events"
	"github.com/tidecrm/tide/pkg/messaging"
	"github.com/tidecrm/tide/pkg/persistence"
	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/tidecrm/tide/pkg/registry"
)

type DispatcherManager struct {
	id         string
	store      persistence.Persistence
	eventBus   eventbus.EventBus
	logger     *slog.Logger
	dispatcher *automation.Dispatcher
	scheduler  *automation.Scheduler
}

func NewDispatcherManager(
	id string,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	messagingAPIURL string,
	messagingAPIToken string,
) *DispatcherManager {
	var sender messaging.Sender = messaging.NewMemorySender()
	if messagingAPIURL != "" {
		sender = messaging.NewHTTPSender(messagingAPIURL, messagingAPIToken, logger)
	}

	deps := protocol.Dependencies{
		Persistence: store,
		Messaging:   sender,
		EventBus:    eventBus,
		Logger:      logger,
	}

	tracer := otel.Tracer("tide-dispatcher")

	executor := automation.NewExecutor(registry.NewDefaultRegistry(logger), deps, eventBus, logger).
		WithTracer(tracer)
	matcher := automation.NewMatcher(store, logger)
	dispatcher := automation.NewDispatcher(store, matcher, executor, logger).
		WithTracer(tracer)

	return &DispatcherManager{
		id:         id,
		store:      store,
		eventBus:   eventBus,
		logger:     logger,
		dispatcher: dispatcher,
		scheduler:  automation.NewScheduler(store, executor, logger),
	}
}

// Start subscribes to business events and runs the scheduler loop. It blocks
// until the context is cancelled.
func (m *DispatcherManager) Start(ctx context.Context) error {
	businessEvents := []events.EventType{
		events.MessageReceivedEvent,
		events.ContactCreatedEvent,
		events.TagAddedEvent,
		events.DealCreatedEvent,
		events.DealStageChangedEvent,
	}

	for _, eventType := range businessEvents {
		err := m.eventBus.Handle(eventType, func(ctx context.Context, event any) error {
			m.dispatcher.Dispatch(ctx, event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := m.eventBus.Subscribe(ctx); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Tide dispatcher started", "events", len(businessEvents))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return m.scheduler.Start(ctx)
	})

	return group.Wait()
}
