package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/platform/kafka"
)

// Producer is the subset of *kafka.Producer the publisher uses.
type Producer interface {
	PublishKeyed(ctx context.Context, topic, key string, ce kafka.CloudEvent) error
}

// KafkaPublisher publishes session events as CloudEvents keyed by session
// id, so the events of one session stay ordered within their partition.
type KafkaPublisher struct {
	producer   Producer
	topic      string
	instanceID string
	source     string
}

// NewKafkaPublisher creates a new KafkaPublisher.
func NewKafkaPublisher(producer Producer, topic, instanceID string) *KafkaPublisher {
	if topic == "" {
		topic = TopicNavigationEvents
	}
	return &KafkaPublisher{
		producer:   producer,
		topic:      topic,
		instanceID: instanceID,
		source:     "service-navigation/" + instanceID,
	}
}

// PublishNavigationEvent implements application.EventPublisher.
func (p *KafkaPublisher) PublishNavigationEvent(ctx context.Context, sessionID string, evt navigation.Event) error {
	ceType, ok := cloudEventType(evt.Type)
	if !ok {
		return fmt.Errorf("no cloud event type for %q", evt.Type)
	}
	ce, err := kafka.NewCloudEvent(p.source, ceType, NavigationEventData{
		SessionID:  sessionID,
		InstanceID: p.instanceID,
		Event:      evt,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	ce.Subject = sessionID
	return p.producer.PublishKeyed(ctx, p.topic, sessionID, ce)
}
