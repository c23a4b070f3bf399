package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

const (
	// DefaultBaseURL is the public OSRM demo server.
	DefaultBaseURL = "https://router.project-osrm.org"
	// DefaultProfile is the OSRM routing profile used for cars.
	DefaultProfile = "driving"
	// DefaultTimeout bounds one routing call.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 16 << 20
)

// OSRMConfig configures an OSRMClient.
type OSRMConfig struct {
	BaseURL string
	Profile string
	Timeout time.Duration
}

// OSRMClient fetches routes from an OSRM-compatible /route service and
// normalizes them into navigation route plans.
type OSRMClient struct {
	baseURL    string
	profile    string
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger
}

// ClientOption customizes an OSRMClient.
type ClientOption func(*OSRMClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *OSRMClient) { o.httpClient = c }
}

// WithTrafficClock sets the clock whose local hour drives traffic adjustment.
func WithTrafficClock(now func() time.Time) ClientOption {
	return func(o *OSRMClient) { o.now = now }
}

// NewOSRMClient creates a new OSRMClient.
func NewOSRMClient(cfg OSRMConfig, logger *zap.Logger, opts ...ClientOption) *OSRMClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &OSRMClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		profile:    cfg.Profile,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRoute asks the engine for a route from start to end. It returns a
// NoPathFound routing error when the engine cannot connect the points and
// EngineUnavailable for every transport or protocol failure.
func (c *OSRMClient) FetchRoute(ctx context.Context, start, end geo.Coordinate, alternatives bool) (*navigation.RoutePlan, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.routeURL(start, end, alternatives), nil)
	if err != nil {
		return nil, navigation.NewEngineUnavailable("build request", err)
	}
	req.Header.Set("Accept", "application/json")

	startedAt := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, navigation.NewEngineUnavailable(fmt.Sprintf("timed out after %s", c.timeout), err)
		}
		return nil, navigation.NewEngineUnavailable("request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, navigation.NewEngineUnavailable("read response", err)
	}

	var data osrmResponse
	decodeErr := json.Unmarshal(body, &data)

	// OSRM answers NoRoute with HTTP 400, so the body code is checked first.
	if decodeErr == nil && isNoPathCode(data.Code) {
		return nil, navigation.NewNoPathFound(osrmDetail(data))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, navigation.NewEngineUnavailable(fmt.Sprintf("engine returned status %d", resp.StatusCode), nil)
	}
	if decodeErr != nil {
		return nil, navigation.NewEngineUnavailable("decode response", decodeErr)
	}
	if data.Code != "Ok" {
		return nil, navigation.NewEngineUnavailable(osrmDetail(data), nil)
	}

	plan := c.normalize(data)
	if len(plan.Routes) == 0 {
		return nil, navigation.NewNoPathFound("engine returned no usable routes")
	}

	c.logger.Debug("route fetched",
		zap.Stringer("start", start),
		zap.Stringer("end", end),
		zap.Bool("alternatives", alternatives),
		zap.Int("routes", len(plan.Routes)),
		zap.Duration("took", time.Since(startedAt)),
	)
	return plan, nil
}

// routeURL builds /route/v1/{profile}/{lng},{lat};{lng},{lat}.
func (c *OSRMClient) routeURL(start, end geo.Coordinate, alternatives bool) string {
	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	q.Set("steps", "true")
	q.Set("alternatives", fmt.Sprintf("%t", alternatives))

	return fmt.Sprintf("%s/route/v1/%s/%s,%s;%s,%s?%s",
		c.baseURL, url.PathEscape(c.profile),
		formatDegrees(start.Lng), formatDegrees(start.Lat),
		formatDegrees(end.Lng), formatDegrees(end.Lat),
		q.Encode(),
	)
}

// normalize converts the engine answer into a route plan, dropping routes
// whose geometry cannot describe a path.
func (c *OSRMClient) normalize(data osrmResponse) *navigation.RoutePlan {
	at := c.now()
	plan := &navigation.RoutePlan{
		Routes:    make([]navigation.Route, 0, len(data.Routes)),
		Waypoints: make([]navigation.Waypoint, 0, len(data.Waypoints)),
	}

	for _, r := range data.Routes {
		if len(r.Geometry) < 2 {
			continue
		}
		route := navigation.Route{
			Geometry:        r.Geometry,
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
			Traffic:         ApplyTraffic(r.Duration, at),
			Steps:           []navigation.Step{},
			IsAlternative:   len(plan.Routes) > 0,
		}
		for _, leg := range r.Legs {
			for _, s := range leg.Steps {
				route.Steps = append(route.Steps, normalizeStep(s))
			}
		}
		plan.Routes = append(plan.Routes, route)
	}

	for _, w := range data.Waypoints {
		plan.Waypoints = append(plan.Waypoints, navigation.Waypoint{
			Name:           w.Name,
			Location:       geo.NewCoordinate(w.Location[1], w.Location[0]),
			DistanceMeters: w.Distance,
		})
	}
	return plan
}

func normalizeStep(s osrmStep) navigation.Step {
	instruction := s.Maneuver.Type
	if s.Maneuver.Modifier != "" {
		instruction += "-" + strings.ReplaceAll(s.Maneuver.Modifier, " ", "-")
	}
	return navigation.Step{
		Instruction:     instruction,
		Name:            s.Name,
		DistanceMeters:  s.Distance,
		DurationSeconds: s.Duration,
		Maneuver: navigation.Maneuver{
			Type:          s.Maneuver.Type,
			Modifier:      s.Maneuver.Modifier,
			Location:      geo.NewCoordinate(s.Maneuver.Location[1], s.Maneuver.Location[0]),
			BearingBefore: s.Maneuver.BearingBefore,
			BearingAfter:  s.Maneuver.BearingAfter,
			Exit:          s.Maneuver.Exit,
		},
	}
}

func isNoPathCode(code string) bool {
	return code == "NoRoute" || code == "NoSegment"
}

func osrmDetail(data osrmResponse) string {
	if data.Message == "" {
		return "engine code " + data.Code
	}
	return fmt.Sprintf("engine code %s: %s", data.Code, data.Message)
}

func formatDegrees(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

type osrmResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Routes    []osrmRoute    `json:"routes"`
	Waypoints []osrmWaypoint `json:"waypoints"`
}

type osrmRoute struct {
	Geometry geo.Polyline `json:"geometry"`
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Legs     []osrmLeg    `json:"legs"`
}

type osrmLeg struct {
	Steps []osrmStep `json:"steps"`
}

type osrmStep struct {
	Name     string       `json:"name"`
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmManeuver struct {
	Type          string     `json:"type"`
	Modifier      string     `json:"modifier"`
	Location      [2]float64 `json:"location"`
	BearingBefore int        `json:"bearing_before"`
	BearingAfter  int        `json:"bearing_after"`
	Exit          int        `json:"exit"`
}

type osrmWaypoint struct {
	Name     string     `json:"name"`
	Location [2]float64 `json:"location"`
	Distance float64    `json:"distance"`
}
