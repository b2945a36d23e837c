package inbox

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a managed message
type State string

const (
	// StateDelivered is the initial state of every message in an inbox
	StateDelivered State = "delivered"
	// StateRead means the recipient has opened the message
	StateRead State = "read"
	// StateAcknowledged means the recipient confirmed it will act on it
	StateAcknowledged State = "acknowledged"
	// StateEscalated means the message sat unanswered and was bumped
	StateEscalated State = "escalated"
	// StateArchived is terminal and set explicitly
	StateArchived State = "archived"
	// StateExpired is set by the sweeper once ExpiresAt has passed
	StateExpired State = "expired"
)

// States lists every state in lifecycle order
var States = []State{
	StateDelivered,
	StateRead,
	StateAcknowledged,
	StateEscalated,
	StateArchived,
	StateExpired,
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsClosed reports whether the message has left the active inbox
func (s State) IsClosed() bool {
	switch s {
	case StateArchived, StateExpired:
		return true
	case StateDelivered, StateRead, StateAcknowledged, StateEscalated:
		return false
	}
	return false
}

// ParseState parses a state name
func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range States {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown state: %s", s)
}

// allowedTransitions defines the valid lifecycle transitions.
// Expired messages can only be archived, archived is terminal.
var allowedTransitions = map[State][]State{
	StateDelivered:    {StateRead, StateAcknowledged, StateEscalated, StateArchived, StateExpired},
	StateRead:         {StateAcknowledged, StateEscalated, StateArchived, StateExpired},
	StateEscalated:    {StateRead, StateAcknowledged, StateArchived, StateExpired},
	StateAcknowledged: {StateArchived, StateExpired},
	StateExpired:      {StateArchived},
	StateArchived:     {},
}

// CanTransitionTo checks if a transition to the target state is allowed
func (s State) CanTransitionTo(target State) bool {
	for _, valid := range allowedTransitions[s] {
		if valid == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error if the transition is not allowed
func ValidateTransition(from, to State) error {
	if !from.CanTransitionTo(to) {
		return &ErrInvalidTransition{From: from, To: to}
	}
	return nil
}
