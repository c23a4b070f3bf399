package navigation

// State is the lifecycle state of a navigation session.
type State string

const (
	StateIdle          State = "idle"
	StateNavigating    State = "navigating"
	StateRecalculating State = "recalculating"
)

// validTransitions defines the session state machine. Recalculating is
// transient: it only lasts while a reroute request is in flight.
var validTransitions = map[State][]State{
	StateIdle:          {StateNavigating, StateIdle},
	StateNavigating:    {StateRecalculating, StateNavigating, StateIdle},
	StateRecalculating: {StateNavigating, StateIdle},
}

// CanTransitionTo returns true if a transition from this state to the target is allowed.
func (s State) CanTransitionTo(target State) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsActive returns true while the session has a destination and a route.
func (s State) IsActive() bool {
	return s == StateNavigating || s == StateRecalculating
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
