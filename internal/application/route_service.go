package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/routing"
)

// RouteQuery is a one-shot route lookup.
type RouteQuery struct {
	Start        geo.Coordinate
	End          geo.Coordinate
	Alternatives bool
}

// Validate checks both endpoints.
func (q RouteQuery) Validate() error {
	if err := q.Start.Validate(); err != nil {
		return navigation.NewValidationError("start: " + err.Error())
	}
	if err := q.End.Validate(); err != nil {
		return navigation.NewValidationError("end: " + err.Error())
	}
	return nil
}

// EnrichedRoute is a route plan plus optional extras along it.
type EnrichedRoute struct {
	*navigation.RoutePlan
	routing.Enrichment
}

// RouteService answers one-shot route lookups. It never touches a
// navigation session.
type RouteService struct {
	fetcher  navigation.RouteFetcher
	enricher *routing.Enricher
	logger   *zap.Logger
}

// NewRouteService creates a new RouteService. enricher may be nil.
func NewRouteService(fetcher navigation.RouteFetcher, enricher *routing.Enricher, logger *zap.Logger) *RouteService {
	if enricher == nil {
		enricher = routing.NewEnricher(nil, nil, nil, logger)
	}
	return &RouteService{fetcher: fetcher, enricher: enricher, logger: logger}
}

// GetRoute fetches a route plan.
func (s *RouteService) GetRoute(ctx context.Context, q RouteQuery) (*navigation.RoutePlan, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	plan, err := s.fetcher.FetchRoute(ctx, q.Start, q.End, q.Alternatives)
	if err != nil {
		s.logger.Warn("route lookup failed",
			zap.Stringer("start", q.Start),
			zap.Stringer("end", q.End),
			zap.Error(err),
		)
		return nil, err
	}
	return plan, nil
}

// GetEnrichedRoute fetches a route plan and decorates it. Enrichment
// failures leave the extras empty.
func (s *RouteService) GetEnrichedRoute(ctx context.Context, q RouteQuery) (*EnrichedRoute, error) {
	plan, err := s.GetRoute(ctx, q)
	if err != nil {
		return nil, err
	}
	return &EnrichedRoute{
		RoutePlan:  plan,
		Enrichment: s.enricher.Enrich(ctx, plan, q.End),
	}, nil
}
