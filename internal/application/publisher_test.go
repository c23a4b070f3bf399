package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/hub"
)

// stalledPublisher never completes a publication before its context ends,
// like a broker that stopped answering.
type stalledPublisher struct {
	started chan struct{}

	mu        sync.Mutex
	calls     int
	deadlines int
}

func newStalledPublisher() *stalledPublisher {
	return &stalledPublisher{started: make(chan struct{}, 64)}
}

func (p *stalledPublisher) PublishNavigationEvent(ctx context.Context, _ string, _ navigation.Event) error {
	p.mu.Lock()
	p.calls++
	if _, ok := ctx.Deadline(); ok {
		p.deadlines++
	}
	p.mu.Unlock()
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *stalledPublisher) counts() (calls, deadlines int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.deadlines
}

func TestAsyncPublisher_DeliversInOrder(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewAsyncPublisher(rec, AsyncPublisherConfig{}, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, p.PublishNavigationEvent(ctx, "trip", navigation.RouteUpdateEvent(equatorPlan)))
	require.NoError(t, p.PublishNavigationEvent(ctx, "trip", navigation.LocationEvent(origin)))
	require.NoError(t, p.PublishNavigationEvent(ctx, "trip", navigation.NavStoppedEvent()))
	require.NoError(t, p.Close(ctx))

	assert.Equal(t, []navigation.EventType{
		navigation.EventRouteUpdate,
		navigation.EventLocation,
		navigation.EventNavStopped,
	}, rec.Types())
	assert.ErrorIs(t, p.PublishNavigationEvent(ctx, "trip", navigation.NavStoppedEvent()), ErrPublisherClosed)
}

func TestAsyncPublisher_DropsWhenQueueIsFull(t *testing.T) {
	stalled := newStalledPublisher()
	p := NewAsyncPublisher(stalled, AsyncPublisherConfig{QueueSize: 1, Timeout: time.Minute}, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, p.PublishNavigationEvent(ctx, "trip", navigation.LocationEvent(origin)))
	<-stalled.started

	require.NoError(t, p.PublishNavigationEvent(ctx, "trip", navigation.LocationEvent(origin)))
	assert.ErrorIs(t, p.PublishNavigationEvent(ctx, "trip", navigation.LocationEvent(origin)), ErrPublishQueueFull)
	assert.Equal(t, uint64(1), p.Dropped())

	closeCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(closeCtx), context.DeadlineExceeded)
}

func TestHandleMessage_StalledBrokerDoesNotDelaySession(t *testing.T) {
	stalled := newStalledPublisher()
	publisher := NewAsyncPublisher(stalled, AsyncPublisherConfig{QueueSize: 16, Timeout: 2 * time.Second}, zap.NewNop())

	clock := &manualClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	driver := &recordingConn{id: "driver"}
	observers := hub.NewManager(testHubConfig(), zap.NewNop())
	require.NoError(t, observers.Attach(driver))
	fetcher := &queueFetcher{results: []fetchResult{{plan: equatorPlan}, {plan: detourPlan}}}
	svc := NewNavigationService("trip-1", fetcher, observers, publisher, zap.NewNop(), navigation.WithClock(clock.Now))

	began := time.Now()
	svc.HandleMessage(context.Background(), driver, []byte(`{"type":"start_nav","lat":0,"lng":0,"dest_lat":0,"dest_lng":0.1}`))
	clock.Advance(time.Minute)
	svc.HandleMessage(context.Background(), driver, []byte(`{"type":"location","lat":0.0018,"lng":0.05}`))
	elapsed := time.Since(began)

	assert.Less(t, elapsed, time.Second)
	assert.Len(t, fetcher.Calls(), 2)
	assert.Equal(t, navigation.StateNavigating, svc.Snapshot().State)
	require.Eventually(t, func() bool { return len(driver.OfType(navigation.EventReroute)) == 1 }, time.Second, time.Millisecond)

	closeCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = publisher.Close(closeCtx)

	calls, deadlines := stalled.counts()
	assert.Positive(t, calls)
	assert.Equal(t, calls, deadlines)
}
