package routing

import (
	"time"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

// Speed multipliers by time of day. Below 1.0 models congestion and
// lengthens the estimate; above 1.0 shortens it.
const (
	morningRushMultiplier = 0.6
	eveningRushMultiplier = 0.5
	nightMultiplier       = 1.2
	normalMultiplier      = 1.0
)

// TrafficMultiplier returns the speed multiplier for a local wall-clock hour:
//
//	08:00–09:59  0.6
//	17:00–19:59  0.5
//	22:00–04:59  1.2
//	otherwise    1.0
func TrafficMultiplier(hour int) float64 {
	switch {
	case hour >= 8 && hour < 10:
		return morningRushMultiplier
	case hour >= 17 && hour < 20:
		return eveningRushMultiplier
	case hour >= 22 || hour < 5:
		return nightMultiplier
	default:
		return normalMultiplier
	}
}

// TrafficLabelFor classifies a multiplier. Exactly 1.0 is "light", not
// "free-flow".
func TrafficLabelFor(multiplier float64) navigation.TrafficLabel {
	switch {
	case multiplier <= morningRushMultiplier:
		return navigation.TrafficHeavy
	case multiplier < 1.0:
		return navigation.TrafficModerate
	case multiplier <= 1.0:
		return navigation.TrafficLight
	default:
		return navigation.TrafficFreeFlow
	}
}

// ApplyTraffic adjusts a raw engine duration for the hour of at.
func ApplyTraffic(rawDurationSeconds float64, at time.Time) navigation.Traffic {
	mult := TrafficMultiplier(at.Hour())
	return navigation.Traffic{
		RawDurationSeconds:      rawDurationSeconds,
		AdjustedDurationSeconds: rawDurationSeconds / mult,
		Multiplier:              mult,
		Label:                   TrafficLabelFor(mult),
	}
}
