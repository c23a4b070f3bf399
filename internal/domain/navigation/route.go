package navigation

import (
	"context"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
)

// TrafficLabel describes the congestion level behind a traffic multiplier.
type TrafficLabel string

const (
	TrafficHeavy    TrafficLabel = "heavy"
	TrafficModerate TrafficLabel = "moderate"
	TrafficLight    TrafficLabel = "light"
	TrafficFreeFlow TrafficLabel = "free-flow"
)

// Traffic is the time-of-day adjustment applied to a route's raw duration.
type Traffic struct {
	RawDurationSeconds      float64      `json:"raw_duration_s"`
	AdjustedDurationSeconds float64      `json:"adjusted_duration_s"`
	Multiplier              float64      `json:"traffic_multiplier"`
	Label                   TrafficLabel `json:"traffic_label"`
}

// Maneuver is the engine's description of the action that starts a step.
type Maneuver struct {
	Type          string         `json:"type"`
	Modifier      string         `json:"modifier,omitempty"`
	Location      geo.Coordinate `json:"location"`
	BearingBefore int            `json:"bearing_before"`
	BearingAfter  int            `json:"bearing_after"`
	Exit          int            `json:"exit,omitempty"`
}

// Step is one turn instruction. Steps drive guidance display only.
type Step struct {
	Instruction     string   `json:"instruction"`
	Name            string   `json:"name"`
	DistanceMeters  float64  `json:"distance_m"`
	DurationSeconds float64  `json:"duration_s"`
	Maneuver        Maneuver `json:"maneuver"`
}

// Route is one candidate path returned by the routing engine. Routes are
// never edited after creation; a reroute supersedes the whole value.
type Route struct {
	Geometry        geo.Polyline `json:"geometry"`
	DistanceMeters  float64      `json:"distance_m"`
	DurationSeconds float64      `json:"duration_s"`
	Traffic         Traffic      `json:"traffic"`
	Steps           []Step       `json:"steps"`
	IsAlternative   bool         `json:"is_alternative"`
}

// Waypoint is an input coordinate as snapped by the engine.
type Waypoint struct {
	Name           string         `json:"name"`
	Location       geo.Coordinate `json:"location"`
	DistanceMeters float64        `json:"distance"`
}

// RoutePlan is the full answer to one routing call: the primary route first,
// then any alternatives.
type RoutePlan struct {
	Routes    []Route    `json:"routes"`
	Waypoints []Waypoint `json:"waypoints"`
}

// Primary returns the first, non-alternative route.
func (p *RoutePlan) Primary() (Route, bool) {
	if p == nil || len(p.Routes) == 0 {
		return Route{}, false
	}
	return p.Routes[0], true
}

// RouteFetcher obtains routes from a routing engine. Implementations return
// *RoutingError on failure.
type RouteFetcher interface {
	FetchRoute(ctx context.Context, start, end geo.Coordinate, alternatives bool) (*RoutePlan, error)
}
