package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

var (
	// ErrPublishQueueFull is returned when an event is dropped because the
	// publication queue is full.
	ErrPublishQueueFull = errors.New("publish queue full")
	// ErrPublisherClosed is returned for events published after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)

// AsyncPublisherConfig bounds an AsyncPublisher.
type AsyncPublisherConfig struct {
	QueueSize int
	Timeout   time.Duration
}

// DefaultAsyncPublisherConfig returns a 1024 event queue and a 5s
// per-event deadline.
func DefaultAsyncPublisherConfig() AsyncPublisherConfig {
	return AsyncPublisherConfig{QueueSize: 1024, Timeout: 5 * time.Second}
}

type pendingEvent struct {
	sessionID string
	evt       navigation.Event
}

// AsyncPublisher queues events for a single background sender, so a slow
// or unreachable broker never holds up a session. Events are delivered in
// the order they were queued, each bounded by the configured timeout. A full
// queue drops the new event.
type AsyncPublisher struct {
	next   EventPublisher
	cfg    AsyncPublisherConfig
	logger *zap.Logger

	queue  chan pendingEvent
	quit   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewAsyncPublisher starts a publisher that forwards to next.
func NewAsyncPublisher(next EventPublisher, cfg AsyncPublisherConfig, logger *zap.Logger) *AsyncPublisher {
	def := DefaultAsyncPublisherConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &AsyncPublisher{
		next:   next,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan pendingEvent, cfg.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go p.run()
	return p
}

// PublishNavigationEvent queues evt and returns without waiting for the
// broker.
func (p *AsyncPublisher) PublishNavigationEvent(_ context.Context, sessionID string, evt navigation.Event) error {
	select {
	case <-p.quit:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.queue <- pendingEvent{sessionID: sessionID, evt: evt}:
		return nil
	default:
		p.dropped.Add(1)
		return ErrPublishQueueFull
	}
}

// Dropped returns how many events were dropped on a full queue.
func (p *AsyncPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close delivers what is still queued and stops the sender. If ctx expires
// first, deliveries in progress are cancelled and the rest are dropped.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.quit) })
	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.done
		return ctx.Err()
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for {
		select {
		case e := <-p.queue:
			p.deliver(e)
		case <-p.quit:
			for {
				select {
				case e := <-p.queue:
					p.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (p *AsyncPublisher) deliver(e pendingEvent) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()
	if err := p.next.PublishNavigationEvent(ctx, e.sessionID, e.evt); err != nil {
		p.logger.Warn("event publication failed",
			zap.String("session_id", e.sessionID),
			zap.String("type", string(e.evt.Type)),
			zap.Error(err),
		)
	}
}
