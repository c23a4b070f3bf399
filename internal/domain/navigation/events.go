package navigation

import (
	"context"
	"errors"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
)

// EventType tags every outbound message.
type EventType string

const (
	EventLocation    EventType = "location"
	EventRouteUpdate EventType = "route_update"
	EventReroute     EventType = "reroute"
	EventNavStopped  EventType = "nav_stopped"
	EventError       EventType = "error"
)

// ReasonOffRoute is the reason attached to automatic reroutes.
const ReasonOffRoute = "off_route"

// Event is the JSON payload delivered to observers.
type Event struct {
	Type      EventType  `json:"type"`
	Lat       *float64   `json:"lat,omitempty"`
	Lng       *float64   `json:"lng,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Route     *RoutePlan `json:"route,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	Code      string     `json:"code,omitempty"`
	Retryable *bool      `json:"retryable,omitempty"`
}

// LocationEvent relays a location sample.
func LocationEvent(c geo.Coordinate) Event {
	lat, lng := c.Lat, c.Lng
	return Event{Type: EventLocation, Lat: &lat, Lng: &lng}
}

// RouteUpdateEvent announces the route of a newly started navigation.
func RouteUpdateEvent(plan *RoutePlan) Event {
	return Event{Type: EventRouteUpdate, Route: plan}
}

// RerouteEvent announces an automatic recalculation.
func RerouteEvent(plan *RoutePlan) Event {
	return Event{Type: EventReroute, Reason: ReasonOffRoute, Route: plan}
}

// NavStoppedEvent announces that navigation ended.
func NavStoppedEvent() Event {
	return Event{Type: EventNavStopped}
}

// ErrorEvent describes err with a code observers can switch on.
func ErrorEvent(err error) Event {
	retryable := IsRetryable(err)
	return Event{
		Type:      EventError,
		Detail:    errorDetail(err),
		Code:      ErrorCode(err),
		Retryable: &retryable,
	}
}

// ErrorDetailEvent is an error event with a plain detail string.
func ErrorDetailEvent(code, detail string) Event {
	retryable := false
	return Event{Type: EventError, Detail: detail, Code: code, Retryable: &retryable}
}

// Notifier receives the events a session commits, in commit order.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, evt Event)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, evt Event) {
	f(ctx, evt)
}

func errorDetail(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Detail
	}
	return err.Error()
}
