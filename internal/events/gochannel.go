package events

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus is an in-process publisher with a subscription side, used when the
// engine is embedded as a library and by the service in single-node mode.
type Bus struct {
	*watermillPublisher
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process event bus backed by watermill's Go channel
// pub/sub.
func NewBus(logger *slog.Logger) *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, newLoggerAdapter(logger))

	return &Bus{
		watermillPublisher: newWatermillPublisher(pubsub, DefaultTopic),
		pubsub:             pubsub,
	}
}

// Subscribe returns a channel of raw session event messages. The caller owns
// acking; messages carry a JSON-encoded Event payload.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, DefaultTopic)
}
