package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/tidecrm/tide/pkg/channels/gochannel"
	"github.com/tidecrm/tide/pkg/channels/kafka"
	"github.com/tidecrm/tide/pkg/eventbus"
)

// NewEventBus creates an event bus instance based on the provider. The
// in-memory gochannel bus is the default and only suits single-process
// deployments.
func NewEventBus(provider, serviceName string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")

		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName, brokers)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("unsupported event bus provider: " + provider)
	}
}
