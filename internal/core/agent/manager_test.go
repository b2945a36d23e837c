package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/agentpost/internal/core/config"
)

func setupTestManager(t *testing.T) *Manager {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Agents = map[string]config.Agent{
		"alice": {Name: "Alice", Session: "alice-pane", Role: "lead"},
		"bob":   {},
	}

	configManager := config.NewManager(t.TempDir())
	require.NoError(t, configManager.Save(cfg))
	return NewManager(configManager)
}

func TestManager_Get(t *testing.T) {
	m := setupTestManager(t)

	alice, err := m.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", alice.DisplayName())
	assert.Equal(t, "alice-pane", alice.SessionName())

	bob, err := m.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", bob.DisplayName())
	assert.Equal(t, "bob", bob.SessionName())

	_, err = m.Get("nobody")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestManager_List(t *testing.T) {
	m := setupTestManager(t)

	agents, err := m.List()
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "alice", agents[0].ID)
	assert.Equal(t, "bob", agents[1].ID)
}

func TestManager_AddRemove(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, Agent{ID: "carol", Role: "reviewer"}))
	carol, err := m.Get("carol")
	require.NoError(t, err)
	assert.Equal(t, "reviewer", carol.Role)

	assert.Error(t, m.Add(ctx, Agent{ID: "bad id"}))

	require.NoError(t, m.Remove(ctx, "carol"))
	_, err = m.Get("carol")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	err = m.Remove(ctx, "carol")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
