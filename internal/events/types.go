package events

import (
	"time"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

// TopicNavigationEvents is the default topic for session events.
const TopicNavigationEvents = "navigation.events"

// CloudEvent types published for session events.
const (
	NavigationLocation      = "navigation.location"
	NavigationRouteUpdated  = "navigation.route_updated"
	NavigationRerouted      = "navigation.rerouted"
	NavigationStopped       = "navigation.stopped"
	NavigationRerouteFailed = "navigation.reroute_failed"
)

// NavigationEventData is the data of every navigation CloudEvent.
type NavigationEventData struct {
	SessionID  string           `json:"session_id"`
	InstanceID string           `json:"instance_id"`
	Event      navigation.Event `json:"event"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// cloudEventType maps a session event to its CloudEvent type.
func cloudEventType(t navigation.EventType) (string, bool) {
	switch t {
	case navigation.EventLocation:
		return NavigationLocation, true
	case navigation.EventRouteUpdate:
		return NavigationRouteUpdated, true
	case navigation.EventReroute:
		return NavigationRerouted, true
	case navigation.EventNavStopped:
		return NavigationStopped, true
	case navigation.EventError:
		return NavigationRerouteFailed, true
	default:
		return "", false
	}
}
