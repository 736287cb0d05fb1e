// Package domain provides core business rules for the service request
// bounded context.
package domain

// State is the lifecycle state of a service request.
type State string

const (
	StatePending     State = "pending"
	StateSearching   State = "searching"
	StateCalling     State = "calling"
	StateAnalyzing   State = "analyzing"
	StateRecommended State = "recommended"
	StateBooking     State = "booking"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// allowedTransitions is the lifecycle graph. booking -> recommended is the
// revert edge for an unconfirmed booking call; every active state can fail.
var allowedTransitions = map[State][]State{
	StatePending:     {StateSearching},
	StateSearching:   {StateCalling, StateFailed},
	StateCalling:     {StateAnalyzing, StateFailed},
	StateAnalyzing:   {StateRecommended, StateFailed},
	StateRecommended: {StateBooking},
	StateBooking:     {StateCompleted, StateRecommended, StateFailed},
}

// terminalStates are states after which the lifecycle never moves again.
var terminalStates = map[State]bool{
	StateCompleted: true,
	StateFailed:    true,
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state ends the lifecycle.
func IsTerminal(state State) bool {
	return terminalStates[state]
}

// IsKnownState reports whether the value is a lifecycle state at all.
func IsKnownState(state State) bool {
	if terminalStates[state] {
		return true
	}
	_, ok := allowedTransitions[state]
	return ok
}
