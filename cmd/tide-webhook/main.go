package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidecrm/tide/pkg/cmd"
	"github.com/tidecrm/tide/pkg/log"
	"github.com/tidecrm/tide/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 8085

func main() {
	logger := log.WithModule("webhook")

	command := &cli.Command{
		Name:                  "tide-webhook",
		Usage:                 "Start the externally reachable webhook trigger server",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the webhook server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for listening-mode capture fan-out (in-memory when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "messaging-api-url",
				Usage:   "Base URL of the outbound messaging API (in-memory sender when empty)",
				Value:   "",
				Sources: cli.EnvVars("MESSAGING_API_URL"),
			},
			&cli.StringFlag{
				Name:    "messaging-api-token",
				Usage:   "API token for the outbound messaging API",
				Value:   "",
				Sources: cli.EnvVars("MESSAGING_API_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Tide Webhook server")

			tracerProvider, err := otelhelper.InitTracer(ctx, "tide-webhook")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "tide-webhook", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			server, err := NewServer(ctx, logger, store, eventBus, ServerConfig{
				RedisURL:          command.String("redis-url"),
				MessagingAPIURL:   command.String("messaging-api-url"),
				MessagingAPIToken: command.String("messaging-api-token"),
			})
			if err != nil {
				return fmt.Errorf("failed to build webhook server: %w", err)
			}
			defer server.Close(ctx)

			err = server.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start webhook server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
