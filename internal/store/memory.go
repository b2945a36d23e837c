package store

import (
	"context"
	"sort"
	"sync"

	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/inbox"
)

// Memory is a Store that lives only as long as the process
type Memory struct {
	mu       sync.RWMutex
	agents   map[string]agent.Agent
	messages map[string]map[string]inbox.ManagedMessage
	closed   bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		agents:   make(map[string]agent.Agent),
		messages: make(map[string]map[string]inbox.ManagedMessage),
	}
}

// SaveAgent upserts an agent
func (s *Memory) SaveAgent(_ context.Context, a agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.agents[a.ID] = a
	return nil
}

// ListAgents returns agents sorted by ID
func (s *Memory) ListAgents(_ context.Context) ([]agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]agent.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteAgent removes an agent and its messages
func (s *Memory) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.agents[id]; !ok {
		return ErrNotFound
	}
	delete(s.agents, id)
	delete(s.messages, id)
	return nil
}

// InsertMessage stores a new message under its recipient
func (s *Memory) InsertMessage(_ context.Context, msg inbox.ManagedMessage) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	held, ok := s.messages[msg.Recipient]
	if !ok {
		held = make(map[string]inbox.ManagedMessage)
		s.messages[msg.Recipient] = held
	}
	if _, ok := held[msg.ID]; ok {
		return 0, ErrConflict
	}

	var seq uint64
	for _, m := range held {
		if m.Seq > seq {
			seq = m.Seq
		}
	}
	msg.Seq = seq + 1
	held[msg.ID] = copyMessage(msg)
	return msg.Seq, nil
}

// UpdateMessage overwrites a message unless it changed since prev was read
func (s *Memory) UpdateMessage(_ context.Context, msg, prev inbox.ManagedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	current, ok := s.messages[msg.Recipient][msg.ID]
	if !ok {
		return ErrNotFound
	}
	if current.State != prev.State || !current.LastUpdated.Equal(prev.LastUpdated) {
		return ErrConflict
	}
	msg.Seq = current.Seq
	s.messages[msg.Recipient][msg.ID] = copyMessage(msg)
	return nil
}

// LoadMessages returns an agent's messages in arrival order
func (s *Memory) LoadMessages(_ context.Context, agentID string) ([]inbox.ManagedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	held := s.messages[agentID]
	out := make([]inbox.ManagedMessage, 0, len(held))
	for _, m := range held {
		out = append(out, copyMessage(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// DeleteMessages removes messages by ID; unknown IDs are ignored
func (s *Memory) DeleteMessages(_ context.Context, agentID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	held := s.messages[agentID]
	for _, id := range ids {
		delete(held, id)
	}
	return nil
}

// Close marks the store closed
func (s *Memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func copyMessage(m inbox.ManagedMessage) inbox.ManagedMessage {
	if m.ReadAt != nil {
		t := *m.ReadAt
		m.ReadAt = &t
	}
	if m.Metadata != nil {
		md := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}
