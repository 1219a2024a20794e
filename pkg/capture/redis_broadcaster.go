package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroadcaster distributes captured samples over redis pub/sub so editor
// sessions see captures regardless of which webhook instance received them.
type RedisBroadcaster struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisBroadcaster(client redis.UniversalClient, logger *slog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{
		client: client,
		logger: logger.With("module", "capture"),
	}
}

// NewRedisBroadcasterFromURL connects using a redis URL, for example
// "redis://localhost:6379/0".
func NewRedisBroadcasterFromURL(ctx context.Context, rawURL string, logger *slog.Logger) (*RedisBroadcaster, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisBroadcaster(client, logger), nil
}

func channelFor(automationID string) string {
	return "capture." + automationID
}

func (b *RedisBroadcaster) Publish(ctx context.Context, sample *Sample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal capture sample: %w", err)
	}

	err = b.client.Publish(ctx, channelFor(sample.AutomationID), data).Err()
	if err != nil {
		return fmt.Errorf("failed to publish capture sample: %w", err)
	}

	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, automationID string) (<-chan *Sample, func(), error) {
	pubsub := b.client.Subscribe(ctx, channelFor(automationID))

	// Force the subscription before handing back the channel.
	_, err := pubsub.Receive(ctx)
	if err != nil {
		_ = pubsub.Close()

		return nil, nil, fmt.Errorf("failed to subscribe to capture channel: %w", err)
	}

	out := make(chan *Sample)

	go func() {
		defer close(out)

		for msg := range pubsub.Channel() {
			var sample Sample

			err := json.Unmarshal([]byte(msg.Payload), &sample)
			if err != nil {
				b.logger.ErrorContext(ctx, "failed to decode capture sample", "error", err)

				continue
			}

			select {
			case out <- &sample:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		err := pubsub.Close()
		if err != nil {
			b.logger.Error("failed to close capture subscription", "error", err)
		}
	}

	return out, cancel, nil
}

func (b *RedisBroadcaster) Close(_ context.Context) error {
	err := b.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

var _ Broadcaster = (*RedisBroadcaster)(nil)
