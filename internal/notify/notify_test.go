package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/agentpost/internal/adapters/tmux"
	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/logger"
)

func testMessage() inbox.ManagedMessage {
	return inbox.ManagedMessage{
		Message: inbox.Message{
			ID:      "msg-123e4567-e89b-12d3-a456-426614174000",
			Sender:  "lead",
			Subject: "Deploy",
			Content: "please deploy\nthe staging build",
		},
		Category:          inbox.CategoryTasks,
		EffectivePriority: inbox.PriorityHigh,
	}
}

func TestTmuxNotifier_Notify(t *testing.T) {
	mock := tmux.NewMockAdapter()
	mock.AddSession("alice-pane")

	n, err := NewTmuxNotifier(mock, "", logger.Nop())
	require.NoError(t, err)

	err = n.Notify(context.Background(), agent.Agent{ID: "alice", Session: "alice-pane"}, testMessage(), EventDelivered)
	require.NoError(t, err)

	sent := mock.Sent("alice-pane")
	require.Len(t, sent, 1)
	assert.Equal(t, "[agentpost] new high message from lead: Deploy (msg-123e4567)", sent[0])
}

func TestTmuxNotifier_MissingSession(t *testing.T) {
	n, err := NewTmuxNotifier(tmux.NewMockAdapter(), "", logger.Nop())
	require.NoError(t, err)

	err = n.Notify(context.Background(), agent.Agent{ID: "ghost"}, testMessage(), EventDelivered)
	assert.ErrorIs(t, err, tmux.ErrSessionNotFound)
}

func TestTmuxNotifier_CustomFormat(t *testing.T) {
	n, err := NewTmuxNotifier(tmux.NewMockAdapter(), "{{.Event}}|{{.Category}}|{{.Content}}", logger.Nop())
	require.NoError(t, err)

	line, err := n.Render(testMessage(), EventReminder)
	require.NoError(t, err)
	assert.Equal(t, "reminder|tasks|please deploy the staging build", line)

	_, err = NewTmuxNotifier(tmux.NewMockAdapter(), "{{.Broken", logger.Nop())
	assert.Error(t, err)
}

func TestTmuxNotifier_SubjectFallback(t *testing.T) {
	n, err := NewTmuxNotifier(tmux.NewMockAdapter(), "{{.Subject}}", logger.Nop())
	require.NoError(t, err)

	msg := testMessage()
	msg.Subject = ""
	line, err := n.Render(msg, EventDelivered)
	require.NoError(t, err)
	assert.Equal(t, "please deploy", line)
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Notify(context.Background(), agent.Agent{}, inbox.ManagedMessage{}, EventDelivered))
}
