package application

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/hub"
)

// EventPublisher forwards session events outside the process.
type EventPublisher interface {
	PublishNavigationEvent(ctx context.Context, sessionID string, evt navigation.Event) error
}

type noopPublisher struct{}

func (noopPublisher) PublishNavigationEvent(context.Context, string, navigation.Event) error {
	return nil
}

// Sender delivers a payload to the connection a message came from.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// NavigationService binds one navigation session to the observers of that
// session. It dispatches client messages to the session and fans every
// committed event out to local observers and the event publisher.
type NavigationService struct {
	id        string
	session   *navigation.Session
	hub       *hub.Manager
	publisher EventPublisher
	messages  *MessageValidator
	logger    *zap.Logger
}

// NewNavigationService creates the service for session id.
func NewNavigationService(
	id string,
	fetcher navigation.RouteFetcher,
	observers *hub.Manager,
	publisher EventPublisher,
	logger *zap.Logger,
	opts ...navigation.SessionOption,
) *NavigationService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	s := &NavigationService{
		id:        id,
		hub:       observers,
		publisher: publisher,
		messages:  NewMessageValidator(),
		logger:    logger.With(zap.String("session_id", id)),
	}
	s.session = navigation.NewSession(id, fetcher, s, opts...)
	return s
}

// ID returns the session id.
func (s *NavigationService) ID() string {
	return s.id
}

// Observers returns the session's connection manager.
func (s *NavigationService) Observers() *hub.Manager {
	return s.hub
}

// Snapshot returns the session state.
func (s *NavigationService) Snapshot() navigation.Snapshot {
	return s.session.Snapshot()
}

// HandleMessage processes one raw client message. Problems with the
// message itself are reported to from only; session events go to every
// observer.
func (s *NavigationService) HandleMessage(ctx context.Context, from Sender, raw []byte) {
	msg, err := s.messages.Decode(raw)
	if err != nil {
		s.reply(ctx, from, navigation.ErrorEvent(err))
		return
	}

	// The session outlives the connection that drives it.
	ctx = context.WithoutCancel(ctx)

	switch msg.Type {
	case MessageLocation:
		req, err := s.messages.Location(msg)
		if err != nil {
			s.reply(ctx, from, navigation.ErrorEvent(err))
			return
		}
		s.IngestLocation(ctx, req.Point())

	case MessageStartNav:
		req, err := s.messages.StartNav(msg)
		if err != nil {
			s.reply(ctx, from, navigation.ErrorEvent(err))
			return
		}
		if _, err := s.Start(ctx, req.Origin(), req.Destination()); err != nil {
			s.reply(ctx, from, navigation.ErrorEvent(err))
		}

	case MessageStopNav:
		s.Stop(ctx)

	default:
		s.reply(ctx, from, navigation.ErrorDetailEvent(navigation.CodeValidation, "unknown type: "+msg.Type))
	}
}

// IngestLocation relays point to every observer and checks it against the
// active route. Reroute failures are already broadcast by the session.
func (s *NavigationService) IngestLocation(ctx context.Context, point geo.Coordinate) {
	evt := navigation.LocationEvent(point)
	s.hub.Publish(evt)
	s.publish(ctx, evt)

	res, err := s.session.IngestLocation(ctx, point)
	var stateErr *navigation.StateError
	switch {
	case errors.As(err, &stateErr):
		// Samples outside navigation are relayed only.
	case err != nil:
		s.logger.Warn("reroute failed, keeping previous route",
			zap.Stringer("from", point),
			zap.String("code", navigation.ErrorCode(err)),
			zap.Error(err),
		)
	case res.Decision == navigation.DecisionRerouted:
		s.logger.Info("rerouted", zap.Stringer("from", point))
	case res.Decision != navigation.DecisionNone:
		s.logger.Debug("off-route sample ignored",
			zap.Stringer("at", point),
			zap.String("decision", string(res.Decision)),
		)
	}
}

// Start begins navigation. The route_update event reaches every observer;
// errors are returned to the caller only.
func (s *NavigationService) Start(ctx context.Context, origin, destination geo.Coordinate) (*navigation.RoutePlan, error) {
	plan, err := s.session.Start(ctx, origin, destination)
	if err != nil {
		s.logger.Warn("start navigation failed",
			zap.Stringer("origin", origin),
			zap.Stringer("destination", destination),
			zap.Error(err),
		)
		return nil, err
	}
	s.logger.Info("navigation started",
		zap.Stringer("origin", origin),
		zap.Stringer("destination", destination),
		zap.Int("routes", len(plan.Routes)),
	)
	return plan, nil
}

// Stop ends navigation.
func (s *NavigationService) Stop(ctx context.Context) {
	s.session.Stop(ctx)
	s.logger.Info("navigation stopped")
}

// Notify implements navigation.Notifier.
func (s *NavigationService) Notify(ctx context.Context, evt navigation.Event) {
	if err := s.hub.Broadcast(ctx, evt); err != nil {
		s.logger.Error("broadcast failed", zap.String("type", string(evt.Type)), zap.Error(err))
	}
	s.publish(ctx, evt)
}

func (s *NavigationService) publish(ctx context.Context, evt navigation.Event) {
	if err := s.publisher.PublishNavigationEvent(ctx, s.id, evt); err != nil {
		s.logger.Warn("event publication failed", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

func (s *NavigationService) reply(ctx context.Context, to Sender, evt navigation.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("marshal reply", zap.Error(err))
		return
	}
	if err := to.Send(ctx, payload); err != nil {
		s.logger.Debug("reply not delivered", zap.Error(err))
	}
}
