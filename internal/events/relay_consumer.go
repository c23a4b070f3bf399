package events

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/platform/kafka"
)

// Relayer delivers an event to the local observers of a session.
type Relayer interface {
	Relay(ctx context.Context, sessionID string, evt navigation.Event) error
}

// RelayConsumer re-broadcasts navigation events produced by other
// instances to observers connected to this one.
type RelayConsumer struct {
	consumer   *kafka.Consumer
	relayer    Relayer
	instanceID string
	logger     *zap.Logger
}

// NewRelayConsumer creates a RelayConsumer reading topic in its own
// consumer group, so every instance sees every event.
func NewRelayConsumer(
	brokers []string,
	groupPrefix string,
	topic string,
	instanceID string,
	relayer Relayer,
	logger *zap.Logger,
) *RelayConsumer {
	if topic == "" {
		topic = TopicNavigationEvents
	}
	groupID := groupPrefix + "navigation-relay-" + instanceID
	consumer := kafka.NewConsumer(brokers, groupID, topic, logger)
	return NewRelayConsumerWithConsumer(consumer, instanceID, relayer, logger)
}

// NewRelayConsumerWithConsumer creates a RelayConsumer over an existing
// consumer.
func NewRelayConsumerWithConsumer(consumer *kafka.Consumer, instanceID string, relayer Relayer, logger *zap.Logger) *RelayConsumer {
	return &RelayConsumer{
		consumer:   consumer,
		relayer:    relayer,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Start consumes until ctx is cancelled.
func (c *RelayConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *RelayConsumer) Close() error {
	return c.consumer.Close()
}

func (c *RelayConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	ce, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from navigation topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	if _, ok := navigationTypes[ce.Type]; !ok {
		c.logger.Debug("ignoring unhandled navigation event type", zap.String("type", ce.Type))
		return nil
	}

	var data NavigationEventData
	if err := ce.ParseData(&data); err != nil {
		c.logger.Error("failed to parse NavigationEventData", zap.Error(err))
		return nil // Don't retry malformed data
	}
	if data.InstanceID == c.instanceID {
		return nil
	}

	if err := c.relayer.Relay(ctx, data.SessionID, data.Event); err != nil {
		c.logger.Warn("relay failed",
			zap.String("session_id", data.SessionID),
			zap.String("type", ce.Type),
			zap.Error(err),
		)
	}
	return nil
}

var navigationTypes = map[string]struct{}{
	NavigationLocation:      {},
	NavigationRouteUpdated:  {},
	NavigationRerouted:      {},
	NavigationStopped:       {},
	NavigationRerouteFailed: {},
}
