package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafkago.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes CloudEvents.
type Producer struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewProducer creates a Producer writing to brokers. The topic is chosen
// per message.
func NewProducer(brokers []string, logger *zap.Logger) *Producer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(w, logger)
}

// NewProducerWithWriter creates a Producer over an existing writer.
func NewProducerWithWriter(w MessageWriter, logger *zap.Logger) *Producer {
	return &Producer{writer: w, logger: logger}
}

// PublishEvent publishes ce to topic without a key.
func (p *Producer) PublishEvent(ctx context.Context, topic string, ce CloudEvent) error {
	return p.PublishKeyed(ctx, topic, "", ce)
}

// PublishKeyed publishes ce to topic. Events with the same key land on the
// same partition and keep their order.
func (p *Producer) PublishKeyed(ctx context.Context, topic, key string, ce CloudEvent) error {
	value, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("marshal cloud event: %w", err)
	}
	msg := kafkago.Message{
		Topic: topic,
		Value: value,
		Headers: []kafkago.Header{
			{Key: "ce_type", Value: []byte(ce.Type)},
			{Key: "ce_source", Value: []byte(ce.Source)},
		},
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", ce.Type, topic, err)
	}
	p.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("type", ce.Type),
		zap.String("id", ce.ID),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
