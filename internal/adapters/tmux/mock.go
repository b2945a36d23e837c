package tmux

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MockAdapter is an in-memory Adapter for tests
type MockAdapter struct {
	mu            sync.RWMutex
	sessions      map[string]*MockSession
	available     bool
	sendKeysError error
}

// MockSession records what was typed into a session
type MockSession struct {
	workDir string
	output  []string
}

// NewMockAdapter creates a new mock adapter
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		sessions:  make(map[string]*MockSession),
		available: true,
	}
}

// SetAvailable sets whether tmux is available
func (m *MockAdapter) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// SetSendKeysError makes every SendKeys call fail with err
func (m *MockAdapter) SetSendKeysError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendKeysError = err
}

// AddSession registers a session as running
func (m *MockAdapter) AddSession(sessionName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionName]; !ok {
		m.sessions[sessionName] = &MockSession{}
	}
}

// Sent returns everything typed into a session, in order
func (m *MockAdapter) Sent(sessionName string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionName]
	if !ok {
		return nil
	}
	return append([]string(nil), s.output...)
}

// IsAvailable reports the configured availability
func (m *MockAdapter) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// SessionExists checks if a session was added or created
func (m *MockAdapter) SessionExists(_ context.Context, sessionName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.sessions[sessionName]
	return exists
}

// CreateSession registers a new session
func (m *MockAdapter) CreateSession(_ context.Context, sessionName, workDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionName]; exists {
		return fmt.Errorf("session already exists: %s", sessionName)
	}
	m.sessions[sessionName] = &MockSession{workDir: workDir}
	return nil
}

// KillSession forgets a session
func (m *MockAdapter) KillSession(_ context.Context, sessionName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionName)
	return nil
}

// SendKeys records text as typed into the session
func (m *MockAdapter) SendKeys(_ context.Context, sessionName, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendKeysError != nil {
		return m.sendKeysError
	}
	session, exists := m.sessions[sessionName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionName)
	}
	session.output = append(session.output, text)
	return nil
}

// CapturePane returns the last lines typed into the session
func (m *MockAdapter) CapturePane(_ context.Context, sessionName string, lines int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionName]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionName)
	}
	out := session.output
	if lines > 0 && len(out) > lines {
		out = out[len(out)-lines:]
	}
	return strings.Join(out, "\n"), nil
}

// ListSessions returns session names sorted
func (m *MockAdapter) ListSessions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
