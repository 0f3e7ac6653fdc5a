// Package destnode implements the destination side of the polling
// protocol: non-blocking ingress, fragment reassembly, per-source age
// accounting, and the scheduler loop that decides which source to poll
// next.
package destnode

import "fmt"

// State is a source's lifecycle stage at the destination. Transitions are
// monotonic; there are no back-edges.
type State int

const (
	StateNew State = iota
	StateSynced
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSynced:
		return "SYNCED"
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition moves from the current state to next, rejecting any back-edge
// or self-edge other than the idempotent ACTIVE->ACTIVE case a delivery
// event produces on every poll cycle.
func (s State) Transition(next State) (State, error) {
	if next == s && s == StateActive {
		return s, nil
	}
	if next <= s {
		return s, fmt.Errorf("destnode: illegal transition %s -> %s", s, next)
	}
	return next, nil
}
