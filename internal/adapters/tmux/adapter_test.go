package tmux

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Adapter = (*RealAdapter)(nil)
	_ Adapter = (*MockAdapter)(nil)
)

func newRealAdapter(t *testing.T) *RealAdapter {
	t.Helper()
	adapter, err := NewAdapter()
	if err != nil || !adapter.IsAvailable() {
		t.Skip("tmux not available on this system")
	}
	return adapter
}

func TestAdapter_SessionLifecycle(t *testing.T) {
	adapter := newRealAdapter(t)
	ctx := context.Background()

	sessionName := fmt.Sprintf("agentpost-test-%d", time.Now().UnixNano())
	require.NoError(t, adapter.CreateSession(ctx, sessionName, t.TempDir()))
	defer func() { _ = adapter.KillSession(ctx, sessionName) }()

	assert.True(t, adapter.SessionExists(ctx, sessionName))
	assert.False(t, adapter.SessionExists(ctx, sessionName[:len(sessionName)-1]), "prefix must not match")

	sessions, err := adapter.ListSessions(ctx)
	require.NoError(t, err)
	assert.Contains(t, sessions, sessionName)

	require.NoError(t, adapter.SendKeys(ctx, sessionName, "echo agentpost-marker"))

	var captured string
	for i := 0; i < 20; i++ {
		captured, err = adapter.CapturePane(ctx, sessionName, 50)
		require.NoError(t, err)
		if strings.Count(captured, "agentpost-marker") >= 2 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	assert.Contains(t, captured, "agentpost-marker")

	require.NoError(t, adapter.KillSession(ctx, sessionName))
	assert.False(t, adapter.SessionExists(ctx, sessionName))
	assert.NoError(t, adapter.KillSession(ctx, sessionName))
}

func TestAdapter_SendKeysMissingSession(t *testing.T) {
	adapter := newRealAdapter(t)

	err := adapter.SendKeys(context.Background(), "agentpost-does-not-exist", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMockAdapter(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	err := m.SendKeys(ctx, "alice", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	m.AddSession("alice")
	require.NoError(t, m.CreateSession(ctx, "bob", "/tmp"))
	assert.Error(t, m.CreateSession(ctx, "bob", "/tmp"))

	require.NoError(t, m.SendKeys(ctx, "alice", "one"))
	require.NoError(t, m.SendKeys(ctx, "alice", "two"))
	require.NoError(t, m.SendKeys(ctx, "alice", "three"))
	assert.Equal(t, []string{"one", "two", "three"}, m.Sent("alice"))

	pane, err := m.CapturePane(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, "two\nthree", pane)

	sessions, err := m.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, sessions)

	boom := errors.New("boom")
	m.SetSendKeysError(boom)
	assert.ErrorIs(t, m.SendKeys(ctx, "alice", "four"), boom)

	require.NoError(t, m.KillSession(ctx, "bob"))
	assert.False(t, m.SessionExists(ctx, "bob"))

	m.SetAvailable(false)
	assert.False(t, m.IsAvailable())
}

func TestParseLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseLines("a\n\n b \n"))
	assert.Equal(t, []string{}, parseLines(""))
}
