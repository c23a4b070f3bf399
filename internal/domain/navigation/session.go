package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
)

// DefaultRecalcCooldown is the minimum time between two automatic reroutes.
const DefaultRecalcCooldown = 5 * time.Second

// SessionConfig tunes deviation detection.
type SessionConfig struct {
	DeviationThresholdMeters float64
	RecalcCooldown           time.Duration
}

// DefaultSessionConfig returns the 50 m / 5 s defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DeviationThresholdMeters: geo.DefaultDeviationThresholdMeters,
		RecalcCooldown:           DefaultRecalcCooldown,
	}
}

// RerouteDecision explains what IngestLocation did with an off-route sample.
type RerouteDecision string

const (
	DecisionNone        RerouteDecision = ""
	DecisionCoolingDown RerouteDecision = "cooling_down"
	DecisionInFlight    RerouteDecision = "in_flight"
	DecisionRerouted    RerouteDecision = "rerouted"
	DecisionFailed      RerouteDecision = "failed"
	DecisionDiscarded   RerouteDecision = "discarded"
)

// IngestResult reports the outcome of one location sample.
type IngestResult struct {
	OffRoute bool
	Decision RerouteDecision
	Plan     *RoutePlan
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID                string
	State             State
	Destination       *geo.Coordinate
	Plan              *RoutePlan
	ActiveRoute       *Route
	LastRecalculation time.Time
	Generation        uint64
}

// Session is the navigation state machine of one trip.
//
// All state is guarded by mu. The lock is never held across a routing call:
// a reroute marks the session recalculating, releases the lock, fetches, and
// commits only if the generation is unchanged. Stop and Start bump the
// generation, so results that arrive after them are dropped. Each Start also
// takes a ticket from startSeq; only the latest ticket may commit, whatever
// order the fetches finish in.
//
// Committed events are queued under mu and delivered by a single drainer
// holding emitMu, so observers see route events in the order the session
// committed them.
type Session struct {
	id       string
	fetcher  RouteFetcher
	notifier Notifier
	cfg      SessionConfig
	now      func() time.Time

	mu          sync.Mutex
	state       State
	destination *geo.Coordinate
	plan        *RoutePlan
	active      *Route
	index       *geo.SegmentIndex
	lastRecalc  time.Time
	generation  uint64
	startSeq    uint64
	outbox      []Event

	emitMu sync.Mutex
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithClock overrides the session clock.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSessionConfig overrides the deviation threshold and cooldown.
func WithSessionConfig(cfg SessionConfig) SessionOption {
	return func(s *Session) { s.cfg = cfg }
}

// NewSession creates an idle session. notifier may be nil.
func NewSession(id string, fetcher RouteFetcher, notifier Notifier, opts ...SessionOption) *Session {
	s := &Session{
		id:       id,
		fetcher:  fetcher,
		notifier: notifier,
		cfg:      DefaultSessionConfig(),
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                s.id,
		State:             s.state,
		Plan:              s.plan,
		LastRecalculation: s.lastRecalc,
		Generation:        s.generation,
	}
	if s.destination != nil {
		dest := *s.destination
		snap.Destination = &dest
	}
	if s.active != nil {
		route := *s.active
		snap.ActiveRoute = &route
	}
	return snap
}

// Start fetches a route from origin to destination and begins navigating.
// On failure nothing is committed and the previous state is kept.
func (s *Session) Start(ctx context.Context, origin, destination geo.Coordinate) (*RoutePlan, error) {
	if err := origin.Validate(); err != nil {
		return nil, NewValidationError("origin: " + err.Error())
	}
	if err := destination.Validate(); err != nil {
		return nil, NewValidationError("destination: " + err.Error())
	}

	s.mu.Lock()
	s.startSeq++
	ticket := s.startSeq
	gen := s.generation
	s.mu.Unlock()

	plan, err := s.fetcher.FetchRoute(ctx, origin, destination, true)
	if err != nil {
		return nil, err
	}
	primary, ok := plan.Primary()
	if !ok {
		return nil, NewNoPathFound("engine returned no routes")
	}

	s.mu.Lock()
	switch {
	case s.startSeq != ticket:
		state := s.state
		s.mu.Unlock()
		return nil, &StateError{Op: "start_nav", State: state, Detail: "superseded by a newer navigation request"}
	case s.generation != gen:
		state := s.state
		s.mu.Unlock()
		return nil, &StateError{Op: "start_nav", State: state, Detail: "cancelled by stop_nav"}
	}
	if err := s.transition("start_nav", StateNavigating); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.commit(plan, primary)
	s.destination = &destination
	s.lastRecalc = s.now()
	s.generation++
	s.publishAndUnlock(ctx, RouteUpdateEvent(plan))

	return plan, nil
}

// IngestLocation checks a location sample against the active route and, when
// the sample is off-route and the cooldown has elapsed, reroutes from it. A
// failed reroute keeps the previous route, emits an error event and returns
// the routing error.
func (s *Session) IngestLocation(ctx context.Context, point geo.Coordinate) (IngestResult, error) {
	if err := point.Validate(); err != nil {
		return IngestResult{}, NewValidationError(err.Error())
	}

	s.mu.Lock()
	if !s.state.IsActive() {
		state := s.state
		s.mu.Unlock()
		return IngestResult{}, &StateError{Op: "location", State: state, Detail: "no active navigation"}
	}

	res := IngestResult{OffRoute: s.index.IsOffRoute(point, s.cfg.DeviationThresholdMeters)}
	switch {
	case !res.OffRoute:
		s.mu.Unlock()
		return res, nil
	case s.state == StateRecalculating:
		res.Decision = DecisionInFlight
		s.mu.Unlock()
		return res, nil
	}

	now := s.now()
	if now.Sub(s.lastRecalc) <= s.cfg.RecalcCooldown {
		res.Decision = DecisionCoolingDown
		s.mu.Unlock()
		return res, nil
	}

	if err := s.transition("reroute", StateRecalculating); err != nil {
		s.mu.Unlock()
		return res, err
	}
	// The cooldown runs from the attempt, not from its completion.
	s.lastRecalc = now
	gen := s.generation
	destination := *s.destination
	s.mu.Unlock()

	plan, err := s.fetcher.FetchRoute(ctx, point, destination, false)
	var primary Route
	if err == nil {
		var ok bool
		if primary, ok = plan.Primary(); !ok {
			err = NewNoPathFound("engine returned no routes")
		}
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		res.Decision = DecisionDiscarded
		return res, nil
	}
	if terr := s.transition("reroute", StateNavigating); terr != nil {
		s.mu.Unlock()
		return res, terr
	}
	if err != nil {
		res.Decision = DecisionFailed
		s.publishAndUnlock(ctx, ErrorEvent(err))
		return res, err
	}
	s.commit(plan, primary)
	res.Decision = DecisionRerouted
	res.Plan = plan
	s.publishAndUnlock(ctx, RerouteEvent(plan))

	return res, nil
}

// Stop ends navigation from any state and discards any route request still
// in flight. Calling it again leaves the session idle and re-announces the
// stop.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	// Every state may stop.
	_ = s.transition("stop_nav", StateIdle)
	s.destination = nil
	s.plan = nil
	s.active = nil
	s.index = nil
	s.publishAndUnlock(ctx, NavStoppedEvent())
}

// transition moves the session to target if the state machine allows it.
// Caller holds mu.
func (s *Session) transition(op string, target State) error {
	if !s.state.CanTransitionTo(target) {
		return &StateError{Op: op, State: s.state, Detail: "cannot move to " + target.String()}
	}
	s.state = target
	return nil
}

// commit installs plan as the active plan. Caller holds mu.
func (s *Session) commit(plan *RoutePlan, primary Route) {
	s.plan = plan
	s.active = &primary
	s.index = geo.NewSegmentIndex(primary.Geometry)
}

// publishAndUnlock queues evt behind every event committed before it and
// releases mu. Whichever caller holds emitMu drains the queue, so the
// notifier sees events in commit order while mu stays free for other
// callers. It returns once evt has been delivered.
func (s *Session) publishAndUnlock(ctx context.Context, evt Event) {
	s.outbox = append(s.outbox, evt)
	s.mu.Unlock()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.mu.Unlock()
			return
		}
		next := s.outbox[0]
		s.outbox = s.outbox[1:]
		s.mu.Unlock()

		if s.notifier != nil {
			s.notifier.Notify(context.WithoutCancel(ctx), next)
		}
	}
}
