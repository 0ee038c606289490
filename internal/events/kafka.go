package events

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
)

// NewKafkaPublisher creates a Publisher that emits session events to a Kafka
// topic, for deployments where other services consume them.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, newLoggerAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return newWatermillPublisher(pub, topic), nil
}
