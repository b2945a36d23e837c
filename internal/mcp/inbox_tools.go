package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/id"
	"github.com/aki/agentpost/internal/core/inbox"
)

// messageSummary is the compact form used in listings
type messageSummary struct {
	ID        string    `json:"id"`
	ShortID   string    `json:"short_id"`
	From      string    `json:"from"`
	Subject   string    `json:"subject,omitempty"`
	Content   string    `json:"content"`
	Priority  string    `json:"priority"`
	Category  string    `json:"category"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Unread    bool      `json:"unread"`
	Timestamp time.Time `json:"timestamp"`
}

func summarize(m inbox.ManagedMessage) messageSummary {
	return messageSummary{
		ID:        m.ID,
		ShortID:   id.Short(m.ID),
		From:      m.Sender,
		Subject:   m.Subject,
		Content:   m.Content,
		Priority:  m.EffectivePriority.String(),
		Category:  string(m.Category),
		Kind:      string(m.Kind),
		State:     m.State.String(),
		Unread:    m.IsUnread(),
		Timestamp: m.Timestamp,
	}
}

func (s *Server) registerInboxTools() error {
	tools := []struct {
		name    string
		params  any
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
	}{
		{"inbox_list", InboxListParams{}, s.handleInboxList},
		{"inbox_read", InboxMessageParams{}, s.handleInboxRead},
		{"inbox_ack", InboxMessageParams{}, s.handleInboxAck},
		{"inbox_archive", InboxMessageParams{}, s.handleInboxArchive},
		{"inbox_escalate", InboxMessageParams{}, s.handleInboxEscalate},
		{"inbox_delete", InboxMessageParams{}, s.handleInboxDelete},
		{"inbox_stats", InboxStatsParams{}, s.handleInboxStats},
		{"global_stats", GlobalStatsParams{}, s.handleGlobalStats},
		{"agent_register", AgentRegisterParams{}, s.handleAgentRegister},
	}
	for _, tool := range tools {
		if err := s.addTool(tool.name, tool.params, tool.handler); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleInboxList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params InboxListParams
	if err := UnmarshalArgs(request, &params); err != nil {
		return nil, err
	}
	if params.Agent == "" {
		return nil, InvalidParameterError("agent", "an agent ID")
	}
	if params.Limit < 0 {
		return nil, InvalidParameterError("limit", "a non-negative number")
	}

	var (
		messages []inbox.ManagedMessage
		err      error
	)
	switch params.View {
	case "priority":
		messages, err = s.mailbox.PriorityInbox(ctx, params.Agent, params.Limit)
	case "", "recent":
		filter := inbox.Filter{
			UnreadOnly:    params.UnreadOnly,
			IncludeClosed: params.IncludeClosed,
			Limit:         params.Limit,
		}
		if params.State != "" {
			if filter.State, err = inbox.ParseState(params.State); err != nil {
				return nil, InvalidParameterError("state", "a message state")
			}
		}
		if params.Category != "" {
			if filter.Category, err = inbox.ParseCategory(params.Category); err != nil {
				return nil, InvalidParameterError("category", "urgent, tasks, questions, information or completed")
			}
		}
		messages, err = s.mailbox.List(ctx, params.Agent, filter)
	default:
		return nil, InvalidParameterError("view", "recent or priority")
	}
	if err != nil {
		return nil, toolError(params.Agent, "", err)
	}

	summaries := make([]messageSummary, 0, len(messages))
	for _, m := range messages {
		summaries = append(summaries, summarize(m))
	}
	stats, _ := s.mailbox.Statistics(ctx, params.Agent)

	return createEnhancedResult("inbox_list", map[string]any{
		"agent":    params.Agent,
		"count":    len(summaries),
		"unread":   stats.Unread,
		"messages": summaries,
	})
}

// transition resolves the message reference and applies fn to it
func (s *Server) transition(ctx context.Context, request mcp.CallToolRequest, fn func(agentID, messageID string) (inbox.ManagedMessage, error)) (inbox.ManagedMessage, error) {
	var params InboxMessageParams
	if err := UnmarshalArgs(request, &params); err != nil {
		return inbox.ManagedMessage{}, err
	}
	if params.Agent == "" || params.MessageID == "" {
		return inbox.ManagedMessage{}, InvalidParameterError("arguments", "agent and message_id")
	}

	messageID, err := s.mailbox.Resolve(ctx, params.Agent, params.MessageID)
	if err != nil {
		return inbox.ManagedMessage{}, toolError(params.Agent, params.MessageID, err)
	}
	managed, err := fn(params.Agent, messageID)
	if err != nil {
		return inbox.ManagedMessage{}, toolError(params.Agent, params.MessageID, err)
	}
	return managed, nil
}

func (s *Server) handleInboxRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	managed, err := s.transition(ctx, request, func(agentID, messageID string) (inbox.ManagedMessage, error) {
		current, err := s.mailbox.Get(ctx, agentID, messageID)
		if err != nil {
			return current, err
		}
		// Reading an acknowledged or closed message only returns it
		if current.State != inbox.StateDelivered && current.State != inbox.StateEscalated {
			return current, nil
		}
		return s.mailbox.MarkRead(ctx, agentID, messageID)
	})
	if err != nil {
		return nil, err
	}
	return createEnhancedResult("inbox_read", managed)
}

func (s *Server) handleInboxAck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	managed, err := s.transition(ctx, request, func(agentID, messageID string) (inbox.ManagedMessage, error) {
		return s.mailbox.Acknowledge(ctx, agentID, messageID)
	})
	if err != nil {
		return nil, err
	}
	return createEnhancedResult("inbox_ack", summarize(managed))
}

func (s *Server) handleInboxArchive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	managed, err := s.transition(ctx, request, func(agentID, messageID string) (inbox.ManagedMessage, error) {
		return s.mailbox.Archive(ctx, agentID, messageID)
	})
	if err != nil {
		return nil, err
	}
	return createEnhancedResult("inbox_archive", summarize(managed))
}

func (s *Server) handleInboxEscalate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	managed, err := s.transition(ctx, request, func(agentID, messageID string) (inbox.ManagedMessage, error) {
		return s.mailbox.Escalate(ctx, agentID, messageID)
	})
	if err != nil {
		return nil, err
	}
	return createEnhancedResult("inbox_escalate", summarize(managed))
}

func (s *Server) handleInboxDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var deleted string
	_, err := s.transition(ctx, request, func(agentID, messageID string) (inbox.ManagedMessage, error) {
		deleted = messageID
		return inbox.ManagedMessage{}, s.mailbox.Delete(ctx, agentID, messageID)
	})
	if err != nil {
		return nil, err
	}
	return createEnhancedResult("inbox_delete", map[string]string{"deleted": deleted})
}

func (s *Server) handleInboxStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params InboxStatsParams
	if err := UnmarshalArgs(request, &params); err != nil {
		return nil, err
	}
	stats, err := s.mailbox.Statistics(ctx, params.Agent)
	if err != nil {
		return nil, toolError(params.Agent, "", err)
	}
	return createEnhancedResult("inbox_stats", stats)
}

func (s *Server) handleGlobalStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.mailbox.GlobalStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect statistics: %w", err)
	}
	return createEnhancedResult("global_stats", stats)
}

func (s *Server) handleAgentRegister(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params AgentRegisterParams
	if err := UnmarshalArgs(request, &params); err != nil {
		return nil, err
	}

	registered, err := s.mailbox.RegisterAgent(ctx, agent.Agent{
		ID:      params.ID,
		Name:    params.Name,
		Session: params.Session,
		Role:    params.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	return createEnhancedResult("agent_register", registered)
}
