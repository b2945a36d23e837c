package inbox

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aki/agentpost/internal/core/id"
)

// DefaultMaxSize is the capacity used when Options.MaxSize is not positive
const DefaultMaxSize = 100

// Options configures an inbox
type Options struct {
	// MaxSize bounds the number of held messages; the oldest is evicted first
	MaxSize int
	// DefaultTTL stamps ExpiresAt on new messages (0 = never expire)
	DefaultTTL time.Duration
	// Classifier sorts messages into categories (nil = built-in rules)
	Classifier *Classifier
	// IDs generates IDs for messages that arrive without one
	IDs id.Generator
	// Now overrides the clock, for tests
	Now func() time.Time
}

// AddOption customizes a single AddMessage call
type AddOption func(*addConfig)

type addConfig struct {
	expiresAt time.Time
}

// WithExpiry overrides the default TTL for one message
func WithExpiry(t time.Time) AddOption {
	return func(c *addConfig) {
		c.expiresAt = t
	}
}

// Inbox holds and categorizes a single agent's messages.
// All methods are safe for concurrent use.
type Inbox struct {
	mu sync.RWMutex

	agentID    string
	maxSize    int
	ttl        time.Duration
	classifier *Classifier
	ids        id.Generator
	now        func() time.Time

	// messages is kept in arrival order, oldest first
	messages    []*ManagedMessage
	index       map[string]*ManagedMessage
	unread      int
	lastChecked time.Time
	seq         uint64
}

// New creates an empty inbox for agentID
func New(agentID string, opts Options) *Inbox {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier(nil)
	}
	if opts.IDs == nil {
		opts.IDs = id.NewUUIDGenerator("msg")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Inbox{
		agentID:    agentID,
		maxSize:    opts.MaxSize,
		ttl:        opts.DefaultTTL,
		classifier: opts.Classifier,
		ids:        opts.IDs,
		now:        opts.Now,
		index:      make(map[string]*ManagedMessage),
	}
}

// AgentID returns the owning agent
func (b *Inbox) AgentID() string {
	return b.agentID
}

// MaxSize returns the configured capacity
func (b *Inbox) MaxSize() int {
	return b.maxSize
}

// AddMessage classifies msg and stores it as delivered. It always succeeds.
// The returned slice holds the IDs evicted to stay within capacity.
// Re-adding an ID already present returns the held copy unchanged.
func (b *Inbox) AddMessage(msg Message, opts ...AddOption) (ManagedMessage, []string) {
	var cfg addConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.index[msg.ID]; ok && msg.ID != "" {
		return existing.clone(), nil
	}

	now := b.now()
	if msg.ID == "" {
		msg.ID = b.ids.Generate()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.Type == "" {
		msg.Type = TypeDirect
	}
	msg.Recipient = b.agentID
	msg.Status = StatusDelivered
	msg.ReadAt = nil

	class := b.classifier.Classify(msg)

	managed := &ManagedMessage{
		Message:           msg,
		Kind:              class.Kind,
		Category:          class.Category,
		State:             StateDelivered,
		EffectivePriority: msg.Priority.Raise(class.Boost),
		ReceivedAt:        now,
		LastUpdated:       now,
	}
	switch {
	case !cfg.expiresAt.IsZero():
		managed.ExpiresAt = cfg.expiresAt
	case b.ttl > 0:
		managed.ExpiresAt = now.Add(b.ttl)
	}

	evicted := b.insertLocked(managed)
	return managed.clone(), evicted
}

// Restore replaces the held messages with previously persisted ones without
// reclassifying them. Messages are placed in Seq order and capacity is
// enforced afterwards. The last-checked time survives a restore.
func (b *Inbox) Restore(msgs []ManagedMessage) []string {
	sorted := make([]ManagedMessage, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = make([]*ManagedMessage, 0, len(sorted))
	b.index = make(map[string]*ManagedMessage, len(sorted))
	b.unread = 0
	b.seq = 0

	var evicted []string
	for i := range sorted {
		m := sorted[i].clone()
		if _, ok := b.index[m.ID]; ok {
			continue
		}
		if m.Seq > b.seq {
			b.seq = m.Seq
		}
		b.messages = append(b.messages, &m)
		b.index[m.ID] = &m
		if m.IsUnread() {
			b.unread++
		}
		evicted = append(evicted, b.evictLocked()...)
	}
	return evicted
}

func (b *Inbox) insertLocked(m *ManagedMessage) []string {
	b.seq++
	m.Seq = b.seq
	b.messages = append(b.messages, m)
	b.index[m.ID] = m
	b.unread++
	return b.evictLocked()
}

func (b *Inbox) evictLocked() []string {
	var evicted []string
	for len(b.messages) > b.maxSize {
		oldest := b.messages[0]
		b.messages[0] = nil
		b.messages = b.messages[1:]
		delete(b.index, oldest.ID)
		if oldest.IsUnread() {
			b.unread--
		}
		evicted = append(evicted, oldest.ID)
	}
	return evicted
}

// Get returns a copy of the message with the given ID
func (b *Inbox) Get(messageID string) (ManagedMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	m, ok := b.index[messageID]
	if !ok {
		return ManagedMessage{}, ErrMessageNotFound
	}
	return m.clone(), nil
}

// UpdateStatus moves a message to a new lifecycle state.
// Unknown IDs return ErrMessageNotFound; transitioning to the current state
// is a no-op.
func (b *Inbox) UpdateStatus(messageID string, to State) (ManagedMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.index[messageID]
	if !ok {
		return ManagedMessage{}, ErrMessageNotFound
	}
	if err := b.transitionLocked(m, to, b.now()); err != nil {
		return m.clone(), err
	}
	return m.clone(), nil
}

func (b *Inbox) transitionLocked(m *ManagedMessage, to State, now time.Time) error {
	if m.State == to {
		return nil
	}
	if err := ValidateTransition(m.State, to); err != nil {
		return err
	}

	switch to {
	case StateRead:
		b.markReadLocked(m, now)
	case StateAcknowledged:
		b.markReadLocked(m, now)
		m.Metrics.AcknowledgedAt = now
	case StateEscalated:
		m.Metrics.EscalationCount++
		m.EffectivePriority = m.EffectivePriority.Raise(1)
		m.Category = CategoryUrgent
	case StateDelivered, StateArchived, StateExpired:
	}

	m.State = to
	m.LastUpdated = now
	return nil
}

func (b *Inbox) markReadLocked(m *ManagedMessage, now time.Time) {
	if m.ReadAt != nil {
		return
	}
	t := now
	m.ReadAt = &t
	m.Status = StatusRead
	m.Metrics.ResponseTime = now.Sub(m.Timestamp)
	b.unread--
}

// MarkRead transitions a message to read
func (b *Inbox) MarkRead(messageID string) (ManagedMessage, error) {
	return b.UpdateStatus(messageID, StateRead)
}

// Acknowledge transitions a message to acknowledged, marking it read
func (b *Inbox) Acknowledge(messageID string) (ManagedMessage, error) {
	return b.UpdateStatus(messageID, StateAcknowledged)
}

// Escalate transitions a message to escalated and bumps its priority
func (b *Inbox) Escalate(messageID string) (ManagedMessage, error) {
	return b.UpdateStatus(messageID, StateEscalated)
}

// Archive moves a message to the archived state. Archiving twice succeeds.
func (b *Inbox) Archive(messageID string) (ManagedMessage, error) {
	return b.UpdateStatus(messageID, StateArchived)
}

// Resolve maps ref to a held message ID. ref is either a full ID or a
// unique prefix of one, so the short IDs shown in notifications work.
func (b *Inbox) Resolve(ref string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if ref == "" {
		return "", ErrMessageNotFound
	}
	if _, ok := b.index[ref]; ok {
		return ref, nil
	}

	match := ""
	for messageID := range b.index {
		if !strings.HasPrefix(messageID, ref) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %s", ErrAmbiguousID, ref)
		}
		match = messageID
	}
	if match == "" {
		return "", ErrMessageNotFound
	}
	return match, nil
}

// Delete removes a message from the inbox entirely
func (b *Inbox) Delete(messageID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.index[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	delete(b.index, messageID)
	for i, held := range b.messages {
		if held == m {
			b.messages = append(b.messages[:i], b.messages[i+1:]...)
			break
		}
	}
	if m.IsUnread() {
		b.unread--
	}
	return nil
}

// PriorityInbox returns open messages ordered by effective priority, newest
// first within a priority. A limit of 0 returns all of them. Checking the
// inbox sweeps expired messages first.
func (b *Inbox) PriorityInbox(limit int) []ManagedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.sweepExpiredLocked(now)
	b.lastChecked = now

	open := make([]*ManagedMessage, 0, len(b.messages))
	for _, m := range b.messages {
		if !m.State.IsClosed() {
			open = append(open, m)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].EffectivePriority != open[j].EffectivePriority {
			return open[i].EffectivePriority > open[j].EffectivePriority
		}
		return open[i].Seq > open[j].Seq
	})

	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	out := make([]ManagedMessage, len(open))
	for i, m := range open {
		out[i] = m.clone()
	}
	return out
}

// List returns messages matching filter, newest first
func (b *Inbox) List(filter Filter) []ManagedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.sweepExpiredLocked(now)
	b.lastChecked = now

	var out []ManagedMessage
	for i := len(b.messages) - 1; i >= 0; i-- {
		m := b.messages[i]
		if !filter.matches(m) {
			continue
		}
		out = append(out, m.clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// UnreadCount returns the number of never-read messages
func (b *Inbox) UnreadCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unread
}

// Len returns the number of held messages, closed ones included
func (b *Inbox) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// Statistics aggregates counts by state, category and priority
func (b *Inbox) Statistics() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		AgentID:     b.agentID,
		Total:       len(b.messages),
		Unread:      b.unread,
		ByState:     make(map[string]int),
		ByCategory:  make(map[string]int),
		ByPriority:  make(map[string]int),
		LastChecked: b.lastChecked,
	}
	for _, m := range b.messages {
		stats.ByState[string(m.State)]++
		stats.ByCategory[string(m.Category)]++
		stats.ByPriority[m.EffectivePriority.String()]++
	}
	return stats
}

// SweepExpired marks messages past their expiration as expired and returns
// their IDs.
func (b *Inbox) SweepExpired(now time.Time) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sweepExpiredLocked(now)
}

func (b *Inbox) sweepExpiredLocked(now time.Time) []string {
	var expired []string
	for _, m := range b.messages {
		if m.State.IsClosed() || !m.IsExpiredAt(now) {
			continue
		}
		m.State = StateExpired
		m.LastUpdated = now
		expired = append(expired, m.ID)
	}
	return expired
}

// SweepPolicy controls Sweep beyond expiration
type SweepPolicy struct {
	// EscalateAfter escalates unread high/urgent messages older than this (0 = off)
	EscalateAfter time.Duration
	// RemindAfter re-notifies unread messages that have seen no activity for
	// this long (0 = off)
	RemindAfter time.Duration
}

// SweepResult reports what a sweep changed
type SweepResult struct {
	Expired   []string
	Escalated []ManagedMessage
	Reminded  []ManagedMessage
}

// Changed reports whether the sweep touched any message
func (r SweepResult) Changed() bool {
	return len(r.Expired)+len(r.Escalated)+len(r.Reminded) > 0
}

// Sweep expires, escalates and reminds in one pass
func (b *Inbox) Sweep(now time.Time, policy SweepPolicy) SweepResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := SweepResult{Expired: b.sweepExpiredLocked(now)}

	for _, m := range b.messages {
		if m.State.IsClosed() || !m.IsUnread() {
			continue
		}

		if policy.EscalateAfter > 0 &&
			m.State == StateDelivered &&
			m.EffectivePriority >= PriorityHigh &&
			now.Sub(m.Timestamp) >= policy.EscalateAfter {
			if err := b.transitionLocked(m, StateEscalated, now); err == nil {
				result.Escalated = append(result.Escalated, m.clone())
			}
			continue
		}

		if policy.RemindAfter > 0 && now.Sub(m.LastUpdated) >= policy.RemindAfter {
			b.remindLocked(m, now)
			result.Reminded = append(result.Reminded, m.clone())
		}
	}

	return result
}

// remindLocked records a reminder without changing the message state
func (b *Inbox) remindLocked(m *ManagedMessage, now time.Time) {
	m.Metrics.ReminderCount++
	m.Metrics.LastReminderAt = now
	m.LastUpdated = now
}
