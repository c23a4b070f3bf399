package routing

import (
	"context"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

const (
	hiddenSpotRadiusMeters = 500.0
	templeRadiusMeters     = 1000.0
)

// POI is a point of interest suggested along a route.
type POI struct {
	ID                      string         `json:"id"`
	Name                    string         `json:"name"`
	Category                string         `json:"category"`
	Location                geo.Coordinate `json:"location"`
	DistanceFromRouteMeters float64        `json:"distance_from_route_m"`
}

// CrowdPrediction estimates how busy the destination will be.
type CrowdPrediction struct {
	Level string  `json:"level"`
	Score float64 `json:"score"`
}

// POIFinder returns candidate POIs near a polyline.
type POIFinder interface {
	FindNear(ctx context.Context, line geo.Polyline, radiusMeters float64) ([]POI, error)
}

// CrowdPredictor predicts crowding at a destination.
type CrowdPredictor interface {
	PredictCrowd(ctx context.Context, destination geo.Coordinate) (*CrowdPrediction, error)
}

// Enrichment is the optional extra data attached to an enriched route.
type Enrichment struct {
	HiddenSpots     []POI            `json:"hidden_spots"`
	Temples         []POI            `json:"temples"`
	CrowdPrediction *CrowdPrediction `json:"crowd_prediction"`
}

// Enricher decorates routes with data from optional collaborators. A missing
// or failing collaborator contributes an empty result; the route itself is
// never affected.
type Enricher struct {
	hiddenSpots POIFinder
	temples     POIFinder
	crowd       CrowdPredictor
	logger      *zap.Logger
}

// NewEnricher creates an Enricher. Any collaborator may be nil.
func NewEnricher(hiddenSpots, temples POIFinder, crowd CrowdPredictor, logger *zap.Logger) *Enricher {
	return &Enricher{hiddenSpots: hiddenSpots, temples: temples, crowd: crowd, logger: logger}
}

// Enrich collects extras along the primary route of plan.
func (e *Enricher) Enrich(ctx context.Context, plan *navigation.RoutePlan, destination geo.Coordinate) Enrichment {
	out := Enrichment{HiddenSpots: []POI{}, Temples: []POI{}}

	primary, ok := plan.Primary()
	if !ok {
		return out
	}
	idx := geo.NewSegmentIndex(primary.Geometry)

	out.HiddenSpots = e.near(ctx, "hidden_spots", e.hiddenSpots, idx, hiddenSpotRadiusMeters)
	out.Temples = e.near(ctx, "temples", e.temples, idx, templeRadiusMeters)

	if e.crowd != nil {
		prediction, err := e.crowd.PredictCrowd(ctx, destination)
		if err != nil {
			e.logger.Warn("crowd prediction failed", zap.Error(err))
		} else {
			out.CrowdPrediction = prediction
		}
	}
	return out
}

// near queries finder and keeps only POIs really within radius of the route.
func (e *Enricher) near(ctx context.Context, kind string, finder POIFinder, idx *geo.SegmentIndex, radius float64) []POI {
	if finder == nil {
		return []POI{}
	}
	candidates, err := finder.FindNear(ctx, idx.Line(), radius)
	if err != nil {
		e.logger.Warn("route enrichment failed", zap.String("kind", kind), zap.Error(err))
		return []POI{}
	}

	kept := make([]POI, 0, len(candidates))
	for _, poi := range candidates {
		if !idx.Within(poi.Location, radius) {
			continue
		}
		poi.DistanceFromRouteMeters = idx.MinDistance(poi.Location)
		kept = append(kept, poi)
	}
	return kept
}
