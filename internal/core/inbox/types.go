// Package inbox holds a single agent's messages: classification, priority
// ordering, lifecycle transitions and capacity eviction.
package inbox

import (
	"fmt"
	"strings"
	"time"
)

// MessageType describes how a message was addressed
type MessageType string

const (
	// TypeDirect is a message to a single agent
	TypeDirect MessageType = "direct"
	// TypeBroadcast is a copy of a message sent to every known agent
	TypeBroadcast MessageType = "broadcast"
	// TypeSystem is generated by agentpost itself
	TypeSystem MessageType = "system"
	// TypeTaskUpdate reports progress on a task
	TypeTaskUpdate MessageType = "task_update"
)

// ParseMessageType parses a message type name. Empty means direct.
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeDirect:
		return TypeDirect, nil
	case TypeBroadcast:
		return TypeBroadcast, nil
	case TypeSystem:
		return TypeSystem, nil
	case TypeTaskUpdate, "task-update":
		return TypeTaskUpdate, nil
	}
	return "", fmt.Errorf("unknown message type: %s", s)
}

// Priority orders messages. Higher values sort first; the zero value is
// normal.
type Priority int

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
	PriorityUrgent Priority = 2
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

// String returns the priority name
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Raise returns p increased by n levels, capped at urgent
func (p Priority) Raise(n int) Priority {
	raised := p + Priority(n)
	if raised > PriorityUrgent {
		return PriorityUrgent
	}
	if raised < PriorityLow {
		return PriorityLow
	}
	return raised
}

// ParsePriority parses a priority name. Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	}
	return PriorityNormal, fmt.Errorf("unknown priority: %s", s)
}

// MarshalText implements encoding.TextMarshaler
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DeliveryStatus is the sender-facing status of a message
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// Category is the inbox folder a message is sorted into
type Category string

const (
	CategoryUrgent      Category = "urgent"
	CategoryTasks       Category = "tasks"
	CategoryQuestions   Category = "questions"
	CategoryInformation Category = "information"
	CategoryCompleted   Category = "completed"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryUrgent,
	CategoryTasks,
	CategoryQuestions,
	CategoryInformation,
	CategoryCompleted,
}

// ParseCategory parses a category name
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category: %s", s)
}

// Kind is the content classification of a message
type Kind string

const (
	KindTask       Kind = "task"
	KindQuestion   Kind = "question"
	KindStatus     Kind = "status"
	KindError      Kind = "error"
	KindCompletion Kind = "completion"
	KindGeneral    Kind = "general"
)

// Message is what a sender hands to agentpost
type Message struct {
	ID        string            `json:"id"`
	Sender    string            `json:"sender"`
	Recipient string            `json:"recipient,omitempty"`
	Type      MessageType       `json:"type"`
	Priority  Priority          `json:"priority"`
	Subject   string            `json:"subject"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Status    DeliveryStatus    `json:"status"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IsBroadcast reports whether the message has no explicit recipient
func (m Message) IsBroadcast() bool {
	return m.Recipient == "" || m.Type == TypeBroadcast
}

// Metrics tracks how an agent handled a message
type Metrics struct {
	ResponseTime    time.Duration `json:"response_time,omitempty"`
	EscalationCount int           `json:"escalation_count"`
	ReminderCount   int           `json:"reminder_count"`
	LastReminderAt  time.Time     `json:"last_reminder_at,omitempty"`
	AcknowledgedAt  time.Time     `json:"acknowledged_at,omitempty"`
}

// ManagedMessage is a Message as held by an inbox
type ManagedMessage struct {
	Message

	Kind              Kind      `json:"kind"`
	Category          Category  `json:"category"`
	State             State     `json:"state"`
	EffectivePriority Priority  `json:"effective_priority"`
	ExpiresAt         time.Time `json:"expires_at,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
	LastUpdated       time.Time `json:"last_updated"`
	Metrics           Metrics   `json:"metrics"`

	// Seq is the arrival order within the owning inbox
	Seq uint64 `json:"seq"`
}

// IsUnread reports whether the message has never been read
func (m *ManagedMessage) IsUnread() bool {
	return m.ReadAt == nil
}

// IsExpiredAt reports whether the message is past its expiration at now
func (m *ManagedMessage) IsExpiredAt(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

func (m *ManagedMessage) clone() ManagedMessage {
	c := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	if m.Metadata != nil {
		c.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Stats aggregates an inbox
type Stats struct {
	AgentID     string         `json:"agent_id"`
	Total       int            `json:"total"`
	Unread      int            `json:"unread"`
	ByState     map[string]int `json:"by_state"`
	ByCategory  map[string]int `json:"by_category"`
	ByPriority  map[string]int `json:"by_priority"`
	LastChecked time.Time      `json:"last_checked,omitempty"`
}

// Filter selects messages for List
type Filter struct {
	State      State
	Category   Category
	UnreadOnly bool
	// IncludeClosed also returns archived and expired messages
	IncludeClosed bool
	// Limit caps the result (0 = all)
	Limit int
}

func (f Filter) matches(m *ManagedMessage) bool {
	if f.State != "" && m.State != f.State {
		return false
	}
	if f.State == "" && !f.IncludeClosed && m.State.IsClosed() {
		return false
	}
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.UnreadOnly && !m.IsUnread() {
		return false
	}
	return true
}
