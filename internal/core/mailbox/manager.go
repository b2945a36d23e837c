package mailbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/id"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/logger"
	"github.com/aki/agentpost/internal/notify"
	"github.com/aki/agentpost/internal/store"
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Options configures a Manager
type Options struct {
	// MaxSize is the per-agent inbox capacity
	MaxSize int
	// DefaultTTL stamps an expiry on every new message (0 = never)
	DefaultTTL time.Duration
	// Keywords extends the classifier per category
	Keywords map[inbox.Category][]string
	// Policy drives escalation and reminders during Sweep
	Policy inbox.SweepPolicy

	Store    store.Store
	Notifier notify.Notifier
	Logger   logger.Logger
	IDs      id.Generator
	Now      func() time.Time
}

// maxConflictRetries bounds how often a write is retried after losing to a
// concurrent writer
const maxConflictRetries = 5

// Manager owns every agent inbox. It is safe for concurrent use.
//
// The store is the shared state of every process using the same database.
// Each operation rebuilds the agent's inbox from the store before acting on
// it, and writes back only rows nobody else changed in between.
type Manager struct {
	mu      sync.RWMutex
	inboxes map[string]*inbox.Inbox
	agents  map[string]agent.Agent

	inboxOpts inbox.Options
	policy    inbox.SweepPolicy
	store     store.Store
	notifier  notify.Notifier
	log       logger.Logger
	now       func() time.Time

	notifyFailures atomic.Int64
}

// NewManager creates a manager. Missing collaborators fall back to an
// in-memory store, no notifications and a no-op logger.
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.IDs == nil {
		opts.IDs = id.NewUUIDGenerator("msg")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		inboxes: make(map[string]*inbox.Inbox),
		agents:  make(map[string]agent.Agent),
		inboxOpts: inbox.Options{
			MaxSize:    opts.MaxSize,
			DefaultTTL: opts.DefaultTTL,
			Classifier: inbox.NewClassifier(opts.Keywords),
			IDs:        opts.IDs,
			Now:        opts.Now,
		},
		policy:   opts.Policy,
		store:    opts.Store,
		notifier: opts.Notifier,
		log:      logger.Component(opts.Logger, "mailbox"),
		now:      opts.Now,
	}
}

// Load synchronizes the known agents with the store and reloads every
// inbox. Agents registered by other processes appear and removed ones are
// dropped.
func (m *Manager) Load(ctx context.Context) error {
	agents, err := m.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load agents: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	known := make(map[string]bool, len(agents))
	for _, a := range agents {
		known[a.ID] = true
		if _, err := m.openInboxLocked(ctx, a); err != nil {
			return err
		}
	}
	for agentID := range m.agents {
		if !known[agentID] {
			delete(m.agents, agentID)
			delete(m.inboxes, agentID)
		}
	}
	m.log.Debug("loaded agents", "count", len(agents))
	return nil
}

// RegisterAgent creates the agent's inbox if it does not exist yet, loading
// any persisted messages. Registering again updates name, session and role
// when they are given.
func (m *Manager) RegisterAgent(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	if !agentIDPattern.MatchString(a.ID) {
		return agent.Agent{}, fmt.Errorf("%w: %q", ErrInvalidAgentID, a.ID)
	}

	m.mu.RLock()
	_, known := m.agents[a.ID]
	m.mu.RUnlock()
	if !known {
		// Another process may have registered it already
		if err := m.Load(ctx); err != nil {
			return agent.Agent{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.agents[a.ID]
	if !ok {
		if a.RegisteredAt.IsZero() {
			a.RegisteredAt = m.now()
		}
		if err := m.store.SaveAgent(ctx, a); err != nil {
			return agent.Agent{}, fmt.Errorf("failed to save agent: %w", err)
		}
		if _, err := m.openInboxLocked(ctx, a); err != nil {
			return agent.Agent{}, err
		}
		m.log.Info("registered agent", "agent", a.ID)
		return a, nil
	}

	updated := existing
	if a.Name != "" {
		updated.Name = a.Name
	}
	if a.Session != "" {
		updated.Session = a.Session
	}
	if a.Role != "" {
		updated.Role = a.Role
	}
	if updated != existing {
		if err := m.store.SaveAgent(ctx, updated); err != nil {
			return agent.Agent{}, fmt.Errorf("failed to save agent: %w", err)
		}
		m.agents[a.ID] = updated
	}
	return updated, nil
}

// RemoveAgent drops an agent, its inbox and its persisted messages
func (m *Manager) RemoveAgent(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.DeleteAgent(ctx, agentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	delete(m.agents, agentID)
	delete(m.inboxes, agentID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInboxNotFound, agentID)
	}
	m.log.Info("removed agent", "agent", agentID)
	return nil
}

// view is an agent's inbox as rebuilt from the store, together with the
// rows it was built from. Writes compare against those rows to detect
// changes made by other processes.
type view struct {
	ib    *inbox.Inbox
	agent agent.Agent
	rows  map[string]inbox.ManagedMessage
}

// openInboxLocked rebuilds a's inbox from its persisted messages, reusing
// the inbox already held so its last-checked time carries over. Callers
// hold m.mu.
func (m *Manager) openInboxLocked(ctx context.Context, a agent.Agent) (view, error) {
	persisted, err := m.store.LoadMessages(ctx, a.ID)
	if err != nil {
		return view{}, fmt.Errorf("failed to load messages for %s: %w", a.ID, err)
	}

	ib, ok := m.inboxes[a.ID]
	if !ok {
		ib = inbox.New(a.ID, m.inboxOpts)
	}
	if evicted := ib.Restore(persisted); len(evicted) > 0 {
		if err := m.store.DeleteMessages(ctx, a.ID, evicted...); err != nil {
			m.log.Warn("failed to drop evicted messages", "agent", a.ID, "error", err)
		}
	}

	rows := make(map[string]inbox.ManagedMessage, len(persisted))
	for _, msg := range persisted {
		rows[msg.ID] = msg
	}
	m.agents[a.ID] = a
	m.inboxes[a.ID] = ib
	return view{ib: ib, agent: a, rows: rows}, nil
}

// reload rebuilds a known agent's inbox from the store. Agents this process
// has not seen yet are looked up in the store first.
func (m *Manager) reload(ctx context.Context, agentID string) (view, error) {
	m.mu.RLock()
	a, ok := m.agents[agentID]
	m.mu.RUnlock()
	if !ok {
		if err := m.Load(ctx); err != nil {
			return view{}, err
		}
		m.mu.RLock()
		a, ok = m.agents[agentID]
		m.mu.RUnlock()
		if !ok {
			return view{}, fmt.Errorf("%w: %s", ErrInboxNotFound, agentID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openInboxLocked(ctx, a)
}

// ensureInbox reloads the agent's inbox, auto-registering unknown agents
func (m *Manager) ensureInbox(ctx context.Context, agentID string) (view, error) {
	v, err := m.reload(ctx, agentID)
	if !errors.Is(err, ErrInboxNotFound) {
		return v, err
	}
	if _, err := m.RegisterAgent(ctx, agent.Agent{ID: agentID}); err != nil {
		return view{}, err
	}
	return m.reload(ctx, agentID)
}

// Deliver places msg in the recipient's inbox, creating the inbox when the
// recipient is unknown. The recipient is notified on a best-effort basis;
// notification failures are logged and never fail the delivery.
//
// Delivering an ID the inbox already holds returns the held copy without
// storing or notifying again. When the store rejects the message it is not
// delivered at all.
func (m *Manager) Deliver(ctx context.Context, msg inbox.Message, opts ...inbox.AddOption) (inbox.ManagedMessage, error) {
	if msg.Recipient == "" {
		return inbox.ManagedMessage{}, ErrNoRecipient
	}

	v, err := m.ensureInbox(ctx, msg.Recipient)
	if err != nil {
		return inbox.ManagedMessage{}, err
	}
	if msg.ID != "" {
		if held, err := v.ib.Get(msg.ID); err == nil {
			m.log.Debug("message already delivered", "id", msg.ID, "to", msg.Recipient)
			return held, nil
		}
	}

	managed, evicted := v.ib.AddMessage(msg, opts...)
	seq, err := m.store.InsertMessage(ctx, managed)
	if err != nil {
		_ = v.ib.Delete(managed.ID)
		if errors.Is(err, store.ErrConflict) {
			// Delivered by another process since the reload
			if current, rerr := m.reload(ctx, msg.Recipient); rerr == nil {
				if held, gerr := current.ib.Get(managed.ID); gerr == nil {
					return held, nil
				}
			}
		}
		m.log.Error("failed to persist message", "id", managed.ID, "error", err)
		return inbox.ManagedMessage{}, fmt.Errorf("failed to persist message %s: %w", managed.ID, err)
	}
	managed.Seq = seq

	m.log.Info("delivered message",
		"id", managed.ID,
		"from", managed.Sender,
		"to", managed.Recipient,
		"priority", managed.EffectivePriority.String(),
		"category", string(managed.Category))

	if len(evicted) > 0 {
		m.log.Debug("evicted messages", "agent", v.agent.ID, "count", len(evicted))
		if err := m.store.DeleteMessages(ctx, v.agent.ID, evicted...); err != nil {
			m.log.Warn("failed to drop evicted messages", "agent", v.agent.ID, "error", err)
		}
	}

	m.notify(ctx, v.agent, managed, notify.EventDelivered)
	return managed, nil
}

// Broadcast delivers an independent copy of msg to every listed agent
// except the sender and returns how many copies were delivered. A nil list
// means every known agent.
func (m *Manager) Broadcast(ctx context.Context, msg inbox.Message, agentIDs []string, opts ...inbox.AddOption) (int, error) {
	delivered, err := m.broadcast(ctx, msg, agentIDs, opts)
	return len(delivered), err
}

func (m *Manager) broadcast(ctx context.Context, msg inbox.Message, agentIDs []string, opts []inbox.AddOption) ([]inbox.ManagedMessage, error) {
	if agentIDs == nil {
		if err := m.Load(ctx); err != nil {
			return nil, err
		}
		agentIDs = m.Agents()
	}

	seen := make(map[string]bool, len(agentIDs))
	var (
		delivered []inbox.ManagedMessage
		errs      []error
	)
	for _, agentID := range agentIDs {
		if agentID == msg.Sender || seen[agentID] {
			continue
		}
		seen[agentID] = true

		cp := msg
		cp.ID = ""
		cp.Recipient = agentID
		cp.Type = inbox.TypeBroadcast
		cp.ReadAt = nil
		if msg.Metadata != nil {
			cp.Metadata = make(map[string]string, len(msg.Metadata))
			for k, v := range msg.Metadata {
				cp.Metadata[k] = v
			}
		}

		managed, err := m.Deliver(ctx, cp, opts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("deliver to %s: %w", agentID, err))
			continue
		}
		delivered = append(delivered, managed)
	}

	m.log.Info("broadcast message", "from", msg.Sender, "recipients", len(delivered))
	return delivered, errors.Join(errs...)
}

// Send delivers directly when msg names a recipient and broadcasts to every
// known agent otherwise.
func (m *Manager) Send(ctx context.Context, msg inbox.Message, opts ...inbox.AddOption) ([]inbox.ManagedMessage, error) {
	if msg.Recipient != "" && msg.Type != inbox.TypeBroadcast {
		managed, err := m.Deliver(ctx, msg, opts...)
		if err != nil {
			return nil, err
		}
		return []inbox.ManagedMessage{managed}, nil
	}
	return m.broadcast(ctx, msg, nil, opts)
}

// Resolve maps a full or short message ID to the held ID
func (m *Manager) Resolve(ctx context.Context, agentID, ref string) (string, error) {
	v, err := m.reload(ctx, agentID)
	if err != nil {
		return "", err
	}
	return v.ib.Resolve(ref)
}

// Get returns one message
func (m *Manager) Get(ctx context.Context, agentID, messageID string) (inbox.ManagedMessage, error) {
	v, err := m.reload(ctx, agentID)
	if err != nil {
		return inbox.ManagedMessage{}, err
	}
	return v.ib.Get(messageID)
}

// UpdateStatus moves a message through its lifecycle and persists it
func (m *Manager) UpdateStatus(ctx context.Context, agentID, messageID string, to inbox.State) (inbox.ManagedMessage, error) {
	managed, _, err := m.change(ctx, agentID, messageID, func(ib *inbox.Inbox) (inbox.ManagedMessage, error) {
		return ib.UpdateStatus(messageID, to)
	})
	if err != nil {
		return managed, err
	}
	m.log.Debug("updated message", "agent", agentID, "id", messageID, "state", to.String())
	return managed, nil
}

// MarkRead marks a message read
func (m *Manager) MarkRead(ctx context.Context, agentID, messageID string) (inbox.ManagedMessage, error) {
	return m.UpdateStatus(ctx, agentID, messageID, inbox.StateRead)
}

// Acknowledge marks a message acknowledged
func (m *Manager) Acknowledge(ctx context.Context, agentID, messageID string) (inbox.ManagedMessage, error) {
	return m.UpdateStatus(ctx, agentID, messageID, inbox.StateAcknowledged)
}

// Archive archives a message; archiving twice succeeds
func (m *Manager) Archive(ctx context.Context, agentID, messageID string) (inbox.ManagedMessage, error) {
	return m.UpdateStatus(ctx, agentID, messageID, inbox.StateArchived)
}

// Escalate escalates a message and notifies the recipient again
func (m *Manager) Escalate(ctx context.Context, agentID, messageID string) (inbox.ManagedMessage, error) {
	managed, to, err := m.change(ctx, agentID, messageID, func(ib *inbox.Inbox) (inbox.ManagedMessage, error) {
		return ib.Escalate(messageID)
	})
	if err != nil {
		return managed, err
	}
	m.log.Debug("escalated message", "agent", agentID, "id", messageID)
	m.notify(ctx, to, managed, notify.EventEscalated)
	return managed, nil
}

// change runs fn against a freshly loaded inbox and writes the message it
// returns back to the store. If another process changed the row in the
// meantime, the inbox is reloaded and fn runs again on the new state.
func (m *Manager) change(ctx context.Context, agentID, messageID string, fn func(*inbox.Inbox) (inbox.ManagedMessage, error)) (inbox.ManagedMessage, agent.Agent, error) {
	for attempt := 0; ; attempt++ {
		v, err := m.reload(ctx, agentID)
		if err != nil {
			return inbox.ManagedMessage{}, agent.Agent{}, err
		}
		managed, err := fn(v.ib)
		if err != nil {
			return managed, v.agent, err
		}

		prev, ok := v.rows[messageID]
		if !ok || unchanged(managed, prev) {
			return managed, v.agent, nil
		}
		err = m.update(ctx, managed, prev)
		switch {
		case errors.Is(err, store.ErrConflict) && attempt < maxConflictRetries:
			m.log.Debug("message changed concurrently, retrying", "agent", agentID, "id", messageID)
			continue
		case errors.Is(err, store.ErrNotFound):
			return inbox.ManagedMessage{}, v.agent, inbox.ErrMessageNotFound
		}
		return managed, v.agent, err
	}
}

func unchanged(managed, prev inbox.ManagedMessage) bool {
	return managed.State == prev.State && managed.LastUpdated.Equal(prev.LastUpdated)
}

// Delete purges a message from the inbox and the store
func (m *Manager) Delete(ctx context.Context, agentID, messageID string) error {
	v, err := m.reload(ctx, agentID)
	if err != nil {
		return err
	}
	if err := v.ib.Delete(messageID); err != nil {
		return err
	}
	if err := m.store.DeleteMessages(ctx, agentID, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	m.log.Info("deleted message", "agent", agentID, "id", messageID)
	return nil
}

// List returns an agent's messages newest first. Expired messages are
// swept and persisted first.
func (m *Manager) List(ctx context.Context, agentID string, filter inbox.Filter) ([]inbox.ManagedMessage, error) {
	v, err := m.reload(ctx, agentID)
	if err != nil {
		return nil, err
	}
	m.sweepExpired(ctx, v)
	return v.ib.List(filter), nil
}

// PriorityInbox returns an agent's open messages, most important first
func (m *Manager) PriorityInbox(ctx context.Context, agentID string, limit int) ([]inbox.ManagedMessage, error) {
	v, err := m.reload(ctx, agentID)
	if err != nil {
		return nil, err
	}
	m.sweepExpired(ctx, v)
	return v.ib.PriorityInbox(limit), nil
}

// Statistics returns one agent's inbox statistics
func (m *Manager) Statistics(ctx context.Context, agentID string) (inbox.Stats, error) {
	v, err := m.reload(ctx, agentID)
	if err != nil {
		return inbox.Stats{}, err
	}
	return v.ib.Statistics(), nil
}

// GlobalStatistics reloads and aggregates every inbox
func (m *Manager) GlobalStatistics(ctx context.Context) (GlobalStats, error) {
	if err := m.Load(ctx); err != nil {
		return GlobalStats{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := GlobalStats{
		Agents:         len(m.inboxes),
		NotifyFailures: m.notifyFailures.Load(),
		PerAgent:       make(map[string]inbox.Stats, len(m.inboxes)),
		GeneratedAt:    m.now(),
	}
	for agentID, ib := range m.inboxes {
		s := ib.Statistics()
		stats.PerAgent[agentID] = s
		stats.TotalMessages += s.Total
		stats.TotalUnread += s.Unread
	}
	return stats, nil
}

// Agents returns the sorted IDs of every agent known since the last Load
func (m *Manager) Agents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.agents))
	for agentID := range m.agents {
		ids = append(ids, agentID)
	}
	sort.Strings(ids)
	return ids
}

// AgentList returns every agent known since the last Load, sorted by ID
func (m *Manager) AgentList() []agent.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]agent.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// Agent returns a known agent
func (m *Manager) Agent(agentID string) (agent.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[agentID]
	return a, ok
}

// Sweep expires messages past their TTL, escalates stale unread high
// priority messages and re-notifies recipients of unread messages.
// Messages another process changed during the sweep are left for the next
// one and not notified.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	if err := m.Load(ctx); err != nil {
		return SweepReport{}, err
	}

	var (
		report SweepReport
		errs   []error
	)
	for _, agentID := range m.Agents() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		v, err := m.reload(ctx, agentID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result := v.ib.Sweep(now, m.policy)
		if !result.Changed() {
			continue
		}

		for _, messageID := range result.Expired {
			managed, err := v.ib.Get(messageID)
			if err != nil {
				continue
			}
			switch err := m.update(ctx, managed, v.rows[messageID]); {
			case err == nil:
				report.Expired++
			case !skippable(err):
				errs = append(errs, err)
			}
		}
		for _, managed := range result.Escalated {
			switch err := m.update(ctx, managed, v.rows[managed.ID]); {
			case err == nil:
				report.Escalated++
				m.notify(ctx, v.agent, managed, notify.EventEscalated)
			case !skippable(err):
				errs = append(errs, err)
			}
		}
		for _, managed := range result.Reminded {
			switch err := m.update(ctx, managed, v.rows[managed.ID]); {
			case err == nil:
				report.Reminded++
				m.notify(ctx, v.agent, managed, notify.EventReminder)
			case !skippable(err):
				errs = append(errs, err)
			}
		}
	}

	if report.Total() > 0 {
		m.log.Info("swept inboxes",
			"expired", report.Expired,
			"escalated", report.Escalated,
			"reminded", report.Reminded)
	}
	return report, errors.Join(errs...)
}

func (m *Manager) sweepExpired(ctx context.Context, v view) {
	for _, messageID := range v.ib.SweepExpired(m.now()) {
		managed, err := v.ib.Get(messageID)
		if err != nil {
			continue
		}
		if err := m.update(ctx, managed, v.rows[messageID]); err != nil && !skippable(err) {
			m.log.Warn("failed to persist expired message", "id", messageID, "error", err)
		}
	}
}

// skippable reports whether a write lost to another process, which already
// moved the message on or deleted it
func skippable(err error) bool {
	return errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound)
}

// update writes managed back, guarded by the row it was derived from
func (m *Manager) update(ctx context.Context, managed, prev inbox.ManagedMessage) error {
	err := m.store.UpdateMessage(ctx, managed, prev)
	switch {
	case err == nil:
		return nil
	case skippable(err):
		m.log.Debug("message changed concurrently", "id", managed.ID, "error", err)
	default:
		m.log.Error("failed to persist message", "id", managed.ID, "error", err)
	}
	return fmt.Errorf("failed to persist message %s: %w", managed.ID, err)
}

func (m *Manager) notify(ctx context.Context, to agent.Agent, managed inbox.ManagedMessage, event notify.Event) {
	if err := m.notifier.Notify(ctx, to, managed, event); err != nil {
		m.notifyFailures.Add(1)
		m.log.Warn("notification failed",
			"agent", to.ID,
			"id", managed.ID,
			"event", string(event),
			"error", err)
	}
}
