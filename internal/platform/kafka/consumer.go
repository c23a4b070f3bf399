package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader is the subset of *kafkago.Reader the consumer uses, so tests can
// replace it.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Handler processes one message. A returned error leaves the message
// uncommitted.
type Handler func(ctx context.Context, msg kafkago.Message) error

// Consumer reads a topic as a member of a consumer group.
type Consumer struct {
	reader Reader
	logger *zap.Logger
}

// NewConsumer creates a Consumer for topic in group groupID.
func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafkago.LastOffset,
	})
	return NewConsumerWithReader(r, logger)
}

// NewConsumerWithReader creates a Consumer over an existing reader.
func NewConsumerWithReader(r Reader, logger *zap.Logger) *Consumer {
	return &Consumer{reader: r, logger: logger}
}

// Consume calls handle for every message until ctx is cancelled or the
// reader is closed. Read errors back off exponentially.
func (c *Consumer) Consume(ctx context.Context, handle Handler) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			wait := b.NextBackOff()
			c.logger.Warn("kafka fetch failed", zap.Error(err), zap.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		if err := handle(ctx, msg); err != nil {
			c.logger.Error("kafka message handler failed",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
