package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/hub"
)

// DefaultSessionID is the session shared by clients of /ws/location.
const DefaultSessionID = "default"

// RegistryConfig holds what every new session is built from.
type RegistryConfig struct {
	Fetcher      navigation.RouteFetcher
	Publisher    EventPublisher
	Session      navigation.SessionConfig
	Hub          hub.Config
	Clock        func() time.Time
	// AbandonAfter is how long a navigating session may run without
	// observers before it is stopped and evicted. Zero keeps it forever.
	AbandonAfter time.Duration
}

// abandonTimer identifies one scheduled abandonment.
type abandonTimer struct {
	timer *time.Timer
}

// Registry maps session ids to their navigation service. A session is
// created on first connect and evicted once it is idle with no observers.
// A navigating session left without observers is stopped after
// AbandonAfter unless someone reconnects.
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*NavigationService
	timers   map[string]*abandonTimer
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*NavigationService),
		timers:   make(map[string]*abandonTimer),
	}
}

// Connect attaches conn to session id, creating the session if needed.
func (r *Registry) Connect(id string, conn hub.Conn) (*NavigationService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelAbandon(id)
	svc := r.getOrCreate(id)
	if err := svc.Observers().Attach(conn); err != nil {
		return nil, err
	}
	return svc, nil
}

// Disconnect detaches conn from session id and evicts the session when it
// is idle and nobody is watching.
func (r *Registry) Disconnect(id string, conn hub.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.sessions[id]
	if !ok {
		return
	}
	svc.Observers().Detach(conn)
	if svc.Observers().Count() > 0 {
		return
	}
	if svc.Snapshot().State.IsActive() {
		r.scheduleAbandon(id, svc)
		return
	}
	r.evict(id, svc)
}

// Lookup returns session id if it exists.
func (r *Registry) Lookup(id string) (*NavigationService, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.sessions[id]
	return svc, ok
}

// Relay broadcasts an event produced elsewhere to the local observers of
// session id. Sessions without local observers are skipped.
func (r *Registry) Relay(ctx context.Context, id string, evt navigation.Event) error {
	svc, ok := r.Lookup(id)
	if !ok {
		return nil
	}
	return svc.Observers().Broadcast(ctx, evt)
}

// Stats reports the number of sessions and connected observers.
func (r *Registry) Stats() (sessions, clients int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, svc := range r.sessions {
		clients += svc.Observers().Count()
	}
	return len(r.sessions), clients
}

// Close closes every session's observers.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*NavigationService)
	for id := range r.timers {
		r.cancelAbandon(id)
	}
	r.mu.Unlock()

	for _, svc := range sessions {
		svc.Observers().Close()
	}
}

// getOrCreate returns session id, creating it. Caller holds mu.
func (r *Registry) getOrCreate(id string) *NavigationService {
	if svc, ok := r.sessions[id]; ok {
		return svc
	}
	opts := []navigation.SessionOption{navigation.WithSessionConfig(r.cfg.Session)}
	if r.cfg.Clock != nil {
		opts = append(opts, navigation.WithClock(r.cfg.Clock))
	}
	svc := NewNavigationService(id, r.cfg.Fetcher, hub.NewManager(r.cfg.Hub, r.logger), r.cfg.Publisher, r.logger, opts...)
	r.sessions[id] = svc
	r.logger.Debug("session created", zap.String("session_id", id))
	return svc
}

// evict removes session id. Caller holds mu.
func (r *Registry) evict(id string, svc *NavigationService) {
	r.cancelAbandon(id)
	delete(r.sessions, id)
	go svc.Observers().Close()
	r.logger.Debug("session evicted", zap.String("session_id", id))
}

// scheduleAbandon arms the abandonment timer of session id. Caller holds mu.
func (r *Registry) scheduleAbandon(id string, svc *NavigationService) {
	if r.cfg.AbandonAfter <= 0 {
		return
	}
	r.cancelAbandon(id)
	t := &abandonTimer{}
	t.timer = time.AfterFunc(r.cfg.AbandonAfter, func() { r.abandon(id, svc, t) })
	r.timers[id] = t
}

// cancelAbandon disarms the abandonment timer of session id. Caller holds mu.
func (r *Registry) cancelAbandon(id string) {
	if t, ok := r.timers[id]; ok {
		t.timer.Stop()
		delete(r.timers, id)
	}
}

// abandon stops and evicts session id if t is still its pending timer and
// nobody reconnected.
func (r *Registry) abandon(id string, svc *NavigationService, t *abandonTimer) {
	r.mu.Lock()
	if r.timers[id] != t || r.sessions[id] != svc || svc.Observers().Count() > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.timers, id)
	delete(r.sessions, id)
	r.mu.Unlock()

	r.logger.Info("stopping abandoned session",
		zap.String("session_id", id),
		zap.Duration("after", r.cfg.AbandonAfter),
	)
	svc.Stop(context.Background())
	svc.Observers().Close()
}
