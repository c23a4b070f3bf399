package routing

import (
	"context"
	"sync"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

type stubResult struct {
	plan *navigation.RoutePlan
	err  error
}

// stubFetcher replays queued results; the last one repeats.
type stubFetcher struct {
	mu      sync.Mutex
	results []stubResult
	calls   int
}

func (f *stubFetcher) FetchRoute(_ context.Context, _, _ geo.Coordinate, _ bool) (*navigation.RoutePlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.plan, r.err
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func straightPlan() *navigation.RoutePlan {
	return &navigation.RoutePlan{
		Routes: []navigation.Route{{
			Geometry:        geo.Polyline{geo.NewCoordinate(0, 0), geo.NewCoordinate(0, 0.1)},
			DistanceMeters:  11_100,
			DurationSeconds: 900,
		}},
	}
}
