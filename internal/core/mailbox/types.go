// Package mailbox routes messages between agents. It owns one inbox per
// agent, persists every change and notifies recipients through the
// terminal bridge.
package mailbox

import (
	"errors"
	"time"

	"github.com/aki/agentpost/internal/core/inbox"
)

var (
	// ErrInboxNotFound is returned for operations on an agent with no inbox
	ErrInboxNotFound = errors.New("inbox not found")
	// ErrNoRecipient is returned when a direct delivery has no recipient
	ErrNoRecipient = errors.New("message has no recipient")
	// ErrInvalidAgentID is returned for empty or malformed agent IDs
	ErrInvalidAgentID = errors.New("invalid agent id")
)

// GlobalStats aggregates every inbox
type GlobalStats struct {
	Agents         int                    `json:"agents"`
	TotalMessages  int                    `json:"total_messages"`
	TotalUnread    int                    `json:"total_unread"`
	NotifyFailures int64                  `json:"notify_failures"`
	PerAgent       map[string]inbox.Stats `json:"per_agent"`
	GeneratedAt    time.Time              `json:"generated_at"`
}

// SweepReport summarizes a manager-wide sweep
type SweepReport struct {
	Expired   int `json:"expired"`
	Escalated int `json:"escalated"`
	Reminded  int `json:"reminded"`
}

// Total is the number of messages the sweep touched
func (r SweepReport) Total() int {
	return r.Expired + r.Escalated + r.Reminded
}
