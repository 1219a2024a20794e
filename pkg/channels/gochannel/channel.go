// Package gochannel provides an in-memory channel implementation for tests
// and local development.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// CreateChannel creates the pub/sub pair for single-process deployments. The
// same GoChannel instance backs both sides.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return build(gochannel.Config{OutputChannelBuffer: 1000}, logger)
}

// CreateTestChannel blocks publishes until the subscriber acks, which keeps
// bus tests deterministic.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return build(gochannel.Config{
		OutputChannelBuffer:            10,
		Persistent:                     true,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}

func build(config gochannel.Config, logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(config, logger)

	return pubSub, pubSub, nil
}
