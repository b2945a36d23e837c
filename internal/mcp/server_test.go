package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/core/id"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/mailbox"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	mgr := mailbox.NewManager(mailbox.Options{
		MaxSize: 10,
		IDs:     id.NewSequentialGenerator("msg"),
	})
	s, err := NewServer(mgr, Options{})
	require.NoError(t, err)
	return s
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// decodeResult unmarshals the "result" field of an enhanced tool result
func decodeResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])

	var envelope struct {
		Result   json.RawMessage    `json:"result"`
		Metadata ToolResultMetadata `json:"_metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Result, target))
}

func TestMessageSendAndRead(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	result, err := s.handleMessageSend(ctx, call("message_send", map[string]any{
		"from":     "planner",
		"to":       "coder",
		"subject":  "login form",
		"content":  "please implement the login form",
		"priority": "high",
	}))
	require.NoError(t, err)

	var sent inbox.ManagedMessage
	decodeResult(t, result, &sent)
	assert.Equal(t, "msg-1", sent.ID)
	assert.Equal(t, "coder", sent.Recipient)
	assert.Equal(t, inbox.PriorityHigh, sent.Priority)
	assert.Equal(t, inbox.CategoryTasks, sent.Category)

	result, err = s.handleInboxList(ctx, call("inbox_list", map[string]any{"agent": "coder"}))
	require.NoError(t, err)
	var listing struct {
		Count    int              `json:"count"`
		Unread   int              `json:"unread"`
		Messages []messageSummary `json:"messages"`
	}
	decodeResult(t, result, &listing)
	assert.Equal(t, 1, listing.Count)
	assert.Equal(t, 1, listing.Unread)
	assert.Equal(t, "planner", listing.Messages[0].From)

	result, err = s.handleInboxRead(ctx, call("inbox_read", map[string]any{
		"agent":      "coder",
		"message_id": "msg-1",
	}))
	require.NoError(t, err)
	var read inbox.ManagedMessage
	decodeResult(t, result, &read)
	assert.Equal(t, inbox.StateRead, read.State)
	assert.NotNil(t, read.ReadAt)

	stats, err := s.mailbox.Statistics(ctx, "coder")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Unread)
}

func TestMessageSend_InvalidArguments(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing recipient", map[string]any{"from": "a", "content": "x"}},
		{"bad priority", map[string]any{"from": "a", "to": "b", "content": "x", "priority": "whenever"}},
		{"broadcast type", map[string]any{"from": "a", "to": "b", "content": "x", "type": "broadcast"}},
		{"bad ttl", map[string]any{"from": "a", "to": "b", "content": "x", "ttl": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleMessageSend(ctx, call("message_send", tt.args))
			var withSuggestions *ErrorWithSuggestions
			assert.True(t, errors.As(err, &withSuggestions), "got %v", err)
		})
	}
}

func TestMessageSend_TTL(t *testing.T) {
	s := setupTestServer(t)

	result, err := s.handleMessageSend(context.Background(), call("message_send", map[string]any{
		"from": "a", "to": "b", "content": "short lived", "ttl": "30m",
	}))
	require.NoError(t, err)
	var sent inbox.ManagedMessage
	decodeResult(t, result, &sent)
	assert.False(t, sent.ExpiresAt.IsZero())
}

func TestMessageBroadcast(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	for _, agentID := range []string{"planner", "coder", "reviewer"} {
		_, err := s.handleAgentRegister(ctx, call("agent_register", map[string]any{"id": agentID}))
		require.NoError(t, err)
	}

	result, err := s.handleMessageBroadcast(ctx, call("message_broadcast", map[string]any{
		"from":    "planner",
		"content": "main is frozen",
	}))
	require.NoError(t, err)
	var out struct {
		Delivered int `json:"delivered"`
	}
	decodeResult(t, result, &out)
	assert.Equal(t, 2, out.Delivered)

	result, err = s.handleMessageBroadcast(ctx, call("message_broadcast", map[string]any{
		"from":    "planner",
		"content": "review please",
		"agents":  "reviewer, ",
	}))
	require.NoError(t, err)
	decodeResult(t, result, &out)
	assert.Equal(t, 1, out.Delivered)

	// Separators alone name nobody rather than everybody
	for _, agents := range []string{",", " , ,"} {
		_, err = s.handleMessageBroadcast(ctx, call("message_broadcast", map[string]any{
			"from":    "planner",
			"content": "review please",
			"agents":  agents,
		}))
		var withSuggestions *ErrorWithSuggestions
		assert.True(t, errors.As(err, &withSuggestions), "agents %q: got %v", agents, err)
	}

	stats, err := s.mailbox.GlobalStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalMessages)
}

func TestSplitAgents(t *testing.T) {
	tests := []struct {
		list    string
		want    []string
		wantErr bool
	}{
		{list: "", want: nil},
		{list: "   ", want: nil},
		{list: "coder", want: []string{"coder"}},
		{list: " coder , reviewer,", want: []string{"coder", "reviewer"}},
		{list: ",", wantErr: true},
		{list: ", ,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.list, func(t *testing.T) {
			got, err := splitAgents(tt.list)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInboxLifecycleTools(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.handleMessageSend(ctx, call("message_send", map[string]any{
		"from": "planner", "to": "coder", "content": "fyi",
	}))
	require.NoError(t, err)
	ref := map[string]any{"agent": "coder", "message_id": "msg-1"}

	result, err := s.handleInboxAck(ctx, call("inbox_ack", ref))
	require.NoError(t, err)
	var acked messageSummary
	decodeResult(t, result, &acked)
	assert.Equal(t, "acknowledged", acked.State)
	assert.False(t, acked.Unread)

	result, err = s.handleInboxArchive(ctx, call("inbox_archive", ref))
	require.NoError(t, err)
	var archived messageSummary
	decodeResult(t, result, &archived)
	assert.Equal(t, "archived", archived.State)

	// Reading a closed message returns it unchanged
	result, err = s.handleInboxRead(ctx, call("inbox_read", ref))
	require.NoError(t, err)
	var read inbox.ManagedMessage
	decodeResult(t, result, &read)
	assert.Equal(t, inbox.StateArchived, read.State)

	_, err = s.handleInboxAck(ctx, call("inbox_ack", ref))
	var transition *inbox.ErrInvalidTransition
	assert.True(t, errors.As(err, &transition), "archived messages stay archived")

	_, err = s.handleInboxEscalate(ctx, call("inbox_escalate", ref))
	assert.True(t, errors.As(err, &transition), "archived messages cannot be escalated")

	_, err = s.handleInboxDelete(ctx, call("inbox_delete", ref))
	require.NoError(t, err)

	_, err = s.handleInboxRead(ctx, call("inbox_read", ref))
	assert.ErrorIs(t, err, inbox.ErrMessageNotFound)
}

func TestInboxEscalateTool(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.handleMessageSend(ctx, call("message_send", map[string]any{
		"from": "planner", "to": "coder", "content": "fyi",
	}))
	require.NoError(t, err)

	result, err := s.handleInboxEscalate(ctx, call("inbox_escalate", map[string]any{
		"agent": "coder", "message_id": "msg-1",
	}))
	require.NoError(t, err)
	var escalated messageSummary
	decodeResult(t, result, &escalated)
	assert.Equal(t, "escalated", escalated.State)
	assert.Equal(t, "urgent", escalated.Category)
	assert.Equal(t, "high", escalated.Priority)
	assert.True(t, escalated.Unread, "escalation does not mark read")

	_, err = s.handleInboxEscalate(ctx, call("inbox_escalate", map[string]any{"agent": "coder"}))
	assert.Error(t, err)
}

func TestInboxTools_UnknownAgent(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.handleInboxList(ctx, call("inbox_list", map[string]any{"agent": "ghost"}))
	assert.ErrorIs(t, err, mailbox.ErrInboxNotFound)
	assert.Contains(t, err.Error(), "agent_register")

	_, err = s.handleInboxStats(ctx, call("inbox_stats", map[string]any{"agent": "ghost"}))
	assert.ErrorIs(t, err, mailbox.ErrInboxNotFound)
}

func TestInboxList_PriorityView(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	for _, p := range []string{"low", "urgent", "normal"} {
		_, err := s.handleMessageSend(ctx, call("message_send", map[string]any{
			"from": "planner", "to": "coder", "content": "fyi", "priority": p,
		}))
		require.NoError(t, err)
	}

	result, err := s.handleInboxList(ctx, call("inbox_list", map[string]any{
		"agent": "coder", "view": "priority", "limit": float64(2),
	}))
	require.NoError(t, err)
	var listing struct {
		Messages []messageSummary `json:"messages"`
	}
	decodeResult(t, result, &listing)
	require.Len(t, listing.Messages, 2)
	assert.Equal(t, "urgent", listing.Messages[0].Priority)
	assert.Equal(t, "normal", listing.Messages[1].Priority)

	_, err = s.handleInboxList(ctx, call("inbox_list", map[string]any{"agent": "coder", "view": "oldest"}))
	assert.Error(t, err)
	_, err = s.handleInboxList(ctx, call("inbox_list", map[string]any{"agent": "coder", "category": "misc"}))
	assert.Error(t, err)
}

func TestGlobalStatsTool(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.handleMessageSend(ctx, call("message_send", map[string]any{
		"from": "planner", "to": "coder", "content": "fyi",
	}))
	require.NoError(t, err)

	result, err := s.handleGlobalStats(ctx, call("global_stats", nil))
	require.NoError(t, err)
	var stats mailbox.GlobalStats
	decodeResult(t, result, &stats)
	assert.Equal(t, 1, stats.Agents)
	assert.Equal(t, 1, stats.TotalUnread)
}

func TestAgentRegister_InvalidID(t *testing.T) {
	s := setupTestServer(t)
	_, err := s.handleAgentRegister(context.Background(), call("agent_register", map[string]any{"id": "no spaces"}))
	assert.ErrorIs(t, err, mailbox.ErrInvalidAgentID)
}

func TestNewServer_ListsToolsAndResources(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	response := s.MCPServer().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(response)
	require.NoError(t, err)
	for _, name := range []string{
		"message_send", "message_broadcast", "inbox_list", "inbox_read", "inbox_ack",
		"inbox_archive", "inbox_escalate", "inbox_delete", "inbox_stats", "global_stats", "agent_register",
	} {
		assert.Contains(t, string(raw), `"`+name+`"`)
	}

	response = s.MCPServer().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`))
	raw, err = json.Marshal(response)
	require.NoError(t, err)
	assert.Contains(t, string(raw), agentsURI)
	assert.Contains(t, string(raw), statsURI)
}

func TestStart_UnsupportedTransport(t *testing.T) {
	s := setupTestServer(t)
	s.opts.Transport = "carrier-pigeon"
	assert.Error(t, s.Start(context.Background()))
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		auth       config.AuthConfig
		setup      func(r *http.Request)
		wantStatus int
	}{
		{
			name:       "no auth",
			auth:       config.AuthConfig{},
			wantStatus: http.StatusOK,
		},
		{
			name:       "bearer ok",
			auth:       config.AuthConfig{Type: config.AuthBearer, Bearer: "s3cret"},
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") },
			wantStatus: http.StatusOK,
		},
		{
			name:       "bearer wrong",
			auth:       config.AuthConfig{Type: config.AuthBearer, Bearer: "s3cret"},
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "basic ok",
			auth: config.AuthConfig{Type: config.AuthBasic, Basic: config.BasicAuth{Username: "u", Password: "p"}},
			setup: func(r *http.Request) {
				r.SetBasicAuth("u", "p")
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "basic missing",
			auth:       config.AuthConfig{Type: config.AuthBasic, Basic: config.BasicAuth{Username: "u", Password: "p"}},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown type",
			auth:       config.AuthConfig{Type: "kerberos"},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t)
			s.opts.HTTP.Auth = tt.auth

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.setup != nil {
				tt.setup(req)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestServer(t)
	s.opts.HTTP.Auth = config.AuthConfig{Type: config.AuthBearer, Bearer: "s3cret"}

	req := httptest.NewRequest(http.MethodOptions, "/message", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code, "preflight skips auth")
}
