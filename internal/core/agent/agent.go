// Package agent describes the agents that own inboxes and manages the ones
// declared in the project configuration.
package agent

import (
	"errors"
	"time"
)

// ErrAgentNotFound is returned when an agent is not declared
var ErrAgentNotFound = errors.New("agent not found")

// Agent is a logical worker identity that owns an inbox
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Session is the tmux session notifications are sent to
	Session      string    `json:"session,omitempty"`
	Role         string    `json:"role,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// SessionName returns the tmux session for the agent, defaulting to its ID
func (a Agent) SessionName() string {
	if a.Session != "" {
		return a.Session
	}
	return a.ID
}

// DisplayName returns the human name, defaulting to the ID
func (a Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
