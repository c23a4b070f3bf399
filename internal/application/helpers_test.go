package application

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/hub"
)

type fetchResult struct {
	plan *navigation.RoutePlan
	err  error
}

type fetchCall struct {
	start, end   geo.Coordinate
	alternatives bool
}

// queueFetcher replays results in order; the last one repeats.
type queueFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   []fetchCall
}

func (f *queueFetcher) FetchRoute(_ context.Context, start, end geo.Coordinate, alternatives bool) (*navigation.RoutePlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{start, end, alternatives})
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.plan, r.err
}

func (f *queueFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

// recordingConn is an observer connection that keeps every event it gets.
type recordingConn struct {
	id string

	mu     sync.Mutex
	events []navigation.Event
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(_ context.Context, payload []byte) error {
	var evt navigation.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) Events() []navigation.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]navigation.Event(nil), c.events...)
}

func (c *recordingConn) OfType(t navigation.EventType) []navigation.Event {
	var out []navigation.Event
	for _, e := range c.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type publishedEvent struct {
	sessionID string
	evt       navigation.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishNavigationEvent(_ context.Context, sessionID string, evt navigation.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{sessionID, evt})
	return nil
}

func (p *recordingPublisher) Types() []navigation.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]navigation.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.evt.Type)
	}
	return out
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func planAlong(line ...geo.Coordinate) *navigation.RoutePlan {
	return &navigation.RoutePlan{
		Routes: []navigation.Route{{Geometry: line, DistanceMeters: 11_100, DurationSeconds: 900}},
	}
}

var (
	origin      = geo.NewCoordinate(0, 0)
	destination = geo.NewCoordinate(0, 0.1)
	// About 200 m north of the equator leg.
	offRoute = geo.NewCoordinate(0.0018, 0.05)

	equatorPlan = planAlong(origin, destination)
	detourPlan  = planAlong(offRoute, geo.NewCoordinate(0.0018, 0.1), destination)
)

func testHubConfig() hub.Config {
	return hub.Config{SendTimeout: time.Second, MaxParallel: 4}
}
