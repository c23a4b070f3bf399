//go:build integration

package main_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/application"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
	navEvents "github.com/Kilat-Pet-Delivery/service-navigation/internal/events"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/hub"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/platform/kafka"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	KafkaBrokers []string
	Cleanup      func()
}

// instanceStack is one wired-up navigation instance.
type instanceStack struct {
	ID       string
	Registry *application.Registry
	Relay    *navEvents.RelayConsumer
	Cleanup  func()
}

// setupContainers starts a Kafka testcontainer.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	// Pre-create required topics.
	createTopics(t, kafkaBrokers, navEvents.TopicNavigationEvents)

	cleanup := func() {
		if err := testcontainers.TerminateContainer(kafkaContainer); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
	}

	return &testInfra{
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupInstance wires a navigation instance that publishes to and relays
// from Kafka.
func setupInstance(t *testing.T, brokers []string, fetcher navigation.RouteFetcher) *instanceStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	id := "nav-" + uuid.New().String()[:8]
	producer := kafka.NewProducer(brokers, logger)
	publisher := application.NewAsyncPublisher(
		navEvents.NewKafkaPublisher(producer, navEvents.TopicNavigationEvents, id),
		application.DefaultAsyncPublisherConfig(),
		logger,
	)

	registry := application.NewRegistry(application.RegistryConfig{
		Fetcher:   fetcher,
		Publisher: publisher,
		Session:   navigation.DefaultSessionConfig(),
		Hub:       hub.Config{SendTimeout: time.Second, MaxParallel: 8},
	}, logger)

	relay := navEvents.NewRelayConsumer(brokers, "test-", navEvents.TopicNavigationEvents, id, registry, logger)

	return &instanceStack{
		ID:       id,
		Registry: registry,
		Relay:    relay,
		Cleanup: func() {
			_ = relay.Close()
			registry.Close()
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = publisher.Close(flushCtx)
			_ = producer.Close()
		},
	}
}

// staticFetcher always returns the same plan.
type staticFetcher struct {
	plan *navigation.RoutePlan
}

func (f staticFetcher) FetchRoute(context.Context, geo.Coordinate, geo.Coordinate, bool) (*navigation.RoutePlan, error) {
	return f.plan, nil
}

// observer records the events delivered to one connection.
type observer struct {
	id string

	mu     sync.Mutex
	events []navigation.Event
}

func (o *observer) ID() string { return o.id }

func (o *observer) Send(_ context.Context, payload []byte) error {
	var evt navigation.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, evt)
	return nil
}

func (o *observer) Close() error { return nil }

func (o *observer) has(t navigation.EventType) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
