// Package notify tells agents about new mail by typing a one-line notice
// into their terminal session. Delivery is best effort.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/aki/agentpost/internal/adapters/tmux"
	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/id"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/logger"
)

// Event is why a notification is sent
type Event string

const (
	EventDelivered Event = "new"
	EventEscalated Event = "escalated"
	EventReminder  Event = "reminder"
)

// DefaultFormat is used when no format is configured
const DefaultFormat = `[agentpost] {{.Event}} {{.Priority}} message from {{.Sender}}: {{.Subject}} ({{.ShortID}})`

// Notifier sends a notice about msg to the recipient agent
type Notifier interface {
	Notify(ctx context.Context, to agent.Agent, msg inbox.ManagedMessage, event Event) error
}

// Data is what the format template sees
type Data struct {
	Event    Event
	ID       string
	ShortID  string
	Sender   string
	Subject  string
	Priority string
	Category string
	Content  string
}

// Nop discards every notification
type Nop struct{}

// Notify does nothing
func (Nop) Notify(context.Context, agent.Agent, inbox.ManagedMessage, Event) error { return nil }

// TmuxNotifier types notices into the agent's tmux session
type TmuxNotifier struct {
	adapter tmux.Adapter
	tmpl    *template.Template
	log     logger.Logger
}

// NewTmuxNotifier parses format (empty = DefaultFormat)
func NewTmuxNotifier(adapter tmux.Adapter, format string, log logger.Logger) (*TmuxNotifier, error) {
	if format == "" {
		format = DefaultFormat
	}
	tmpl, err := template.New("notify").Option("missingkey=zero").Parse(format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notify format: %w", err)
	}
	return &TmuxNotifier{
		adapter: adapter,
		tmpl:    tmpl,
		log:     logger.Component(log, "notify"),
	}, nil
}

// Notify renders the notice and sends it. A missing session is an error the
// caller is expected to log and ignore.
func (n *TmuxNotifier) Notify(ctx context.Context, to agent.Agent, msg inbox.ManagedMessage, event Event) error {
	line, err := n.Render(msg, event)
	if err != nil {
		return err
	}

	session := to.SessionName()
	if !n.adapter.SessionExists(ctx, session) {
		return fmt.Errorf("%w: %s", tmux.ErrSessionNotFound, session)
	}
	if err := n.adapter.SendKeys(ctx, session, line); err != nil {
		return fmt.Errorf("failed to notify %s: %w", to.ID, err)
	}

	n.log.Debug("notified agent", "agent", to.ID, "session", session, "message", msg.ID, "event", string(event))
	return nil
}

// Render formats the notice as a single line
func (n *TmuxNotifier) Render(msg inbox.ManagedMessage, event Event) (string, error) {
	subject := msg.Subject
	if subject == "" {
		subject = firstLine(msg.Content, 60)
	}
	data := Data{
		Event:    event,
		ID:       msg.ID,
		ShortID:  id.Short(msg.ID),
		Sender:   msg.Sender,
		Subject:  subject,
		Priority: msg.EffectivePriority.String(),
		Category: string(msg.Category),
		Content:  msg.Content,
	}

	var buf bytes.Buffer
	if err := n.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render notification: %w", err)
	}
	// A newline would submit a partial line to the agent
	return strings.Join(strings.Fields(buf.String()), " "), nil
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}
