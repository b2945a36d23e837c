package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/mailbox"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	restore := SetOutput(&out, &errOut)
	t.Cleanup(restore)
	return &out, &errOut
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "< 1m"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{50 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimeAt(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"zero", time.Time{}, "never"},
		{"seconds", now.Add(-10 * time.Second), "just now"},
		{"one minute", now.Add(-time.Minute), "1 minute ago"},
		{"minutes", now.Add(-15 * time.Minute), "15 minutes ago"},
		{"one hour", now.Add(-time.Hour), "1 hour ago"},
		{"days", now.Add(-72 * time.Hour), "3 days ago"},
		{"old", now.Add(-30 * 24 * time.Hour), "2025-02-08 12:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTimeAt(tt.at, now))
		})
	}
}

func TestMessagesGoToConfiguredWriters(t *testing.T) {
	out, errOut := captureOutput(t)

	Success("sent %d", 2)
	Info("hello")
	Warning("careful")
	Error("broken")

	assert.Contains(t, out.String(), "sent 2")
	assert.Contains(t, out.String(), "hello")
	assert.Contains(t, errOut.String(), "careful")
	assert.Contains(t, errOut.String(), "broken")
	assert.NotContains(t, out.String(), "broken")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "m-1", ShortID("m-1"))
	assert.Equal(t, "msg-123e4567", ShortID("msg-123e4567-e89b-12d3-a456-426614174000"))
}

func TestPrintMessageList(t *testing.T) {
	out, _ := captureOutput(t)

	now := time.Now()
	read := now
	msgs := []inbox.ManagedMessage{
		{
			Message: inbox.Message{
				ID: "msg-0190a1b2-0000-7000-8000-000000000001", Sender: "alice", Subject: "deploy failed",
			},
			State: inbox.StateDelivered, EffectivePriority: inbox.PriorityUrgent, ReceivedAt: now,
		},
		{
			Message: inbox.Message{
				ID: "msg-0190ffff-0000-7000-8000-000000000002", Sender: "bob", Subject: "status", ReadAt: &read,
			},
			State: inbox.StateRead, EffectivePriority: inbox.PriorityLow, ReceivedAt: now,
		},
	}

	PrintMessageList("carol", msgs)

	text := out.String()
	assert.Contains(t, text, "Inbox carol (2)")
	assert.Contains(t, text, "0190a1b2")
	assert.NotContains(t, text, "msg-0190a1b2-0000-7000-8000-000000000001")
	assert.Contains(t, text, "● deploy failed")
	assert.Contains(t, text, "urgent")
	assert.Contains(t, text, "bob")
	assert.NotContains(t, text, "● status")
}

func TestPrintMessageList_Empty(t *testing.T) {
	out, _ := captureOutput(t)
	PrintMessageList("carol", nil)
	assert.Contains(t, out.String(), "No messages for carol")
}

func TestPrintMessage(t *testing.T) {
	out, _ := captureOutput(t)

	PrintMessage(inbox.ManagedMessage{
		Message: inbox.Message{
			ID: "m-1", Sender: "alice", Recipient: "bob", Subject: "Review",
			Content: "line one\nline two\n", Priority: inbox.PriorityNormal,
		},
		State:             inbox.StateEscalated,
		EffectivePriority: inbox.PriorityHigh,
		Category:          inbox.CategoryTasks,
		Kind:              inbox.KindTask,
		Metrics:           inbox.Metrics{EscalationCount: 1},
	})

	text := out.String()
	assert.Contains(t, text, "Review")
	assert.Contains(t, text, "high (sent as normal)")
	assert.Contains(t, text, "Escalations")
	assert.Contains(t, text, "  line two")
}

func TestPrintAgentList(t *testing.T) {
	out, _ := captureOutput(t)

	PrintAgentList(
		[]agent.Agent{{ID: "alice", Role: "reviewer"}, {ID: "bob", Name: "Bob", Session: "bob-1"}},
		map[string]inbox.Stats{"alice": {Total: 3, Unread: 1}},
	)

	lines := strings.Split(out.String(), "\n")
	var aliceLine, bobLine string
	for _, l := range lines {
		switch {
		case strings.HasPrefix(strings.TrimSpace(l), "alice"):
			aliceLine = l
		case strings.HasPrefix(strings.TrimSpace(l), "bob"):
			bobLine = l
		}
	}
	require.NotEmpty(t, aliceLine)
	require.NotEmpty(t, bobLine)
	assert.Contains(t, aliceLine, "reviewer")
	assert.Contains(t, aliceLine, "3")
	assert.Contains(t, bobLine, "bob-1")
	assert.Contains(t, bobLine, "Bob")
}

func TestPrintGlobalStats(t *testing.T) {
	out, _ := captureOutput(t)

	PrintGlobalStats(mailbox.GlobalStats{
		Agents:         2,
		TotalMessages:  5,
		TotalUnread:    2,
		NotifyFailures: 1,
		PerAgent: map[string]inbox.Stats{
			"bob":   {AgentID: "bob", Total: 1},
			"alice": {AgentID: "alice", Total: 4, Unread: 2},
		},
	})

	text := out.String()
	assert.Contains(t, text, "Notify fail")
	assert.Less(t, strings.Index(text, "alice"), strings.Index(text, "bob"))
}

func TestPrintStats(t *testing.T) {
	out, _ := captureOutput(t)

	PrintStats(inbox.Stats{
		AgentID: "alice",
		Total:   3,
		ByState: map[string]int{"read": 1, "delivered": 2},
	})

	assert.Contains(t, out.String(), "delivered=2 read=1")
}
