package source

import "fmt"

// State represents the discovery lifecycle state.
type State int

const (
	// StateSearching - no source known, all strategies probing.
	StateSearching State = iota
	// StateCandidatePending - at least one candidate awaiting re-observation.
	StateCandidatePending
	// StateAttached - a single source is attached and feeding snapshots.
	StateAttached
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateSearching:
		return "SEARCHING"
	case StateCandidatePending:
		return "CANDIDATE_PENDING"
	case StateAttached:
		return "ATTACHED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}
