package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	agentsURI      = "agentpost://agents"
	statsURI       = "agentpost://stats"
	inboxURIPrefix = "agentpost://inbox/"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		agentsURI,
		"Agents",
		mcp.WithResourceDescription("Every known agent with its unread count"),
		mcp.WithMIMEType("application/json"),
	), s.handleAgentsResource)

	s.mcpServer.AddResource(mcp.NewResource(
		statsURI,
		"Global Statistics",
		mcp.WithResourceDescription("Message totals across every inbox"),
		mcp.WithMIMEType("application/json"),
	), s.handleStatsResource)

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(
		inboxURIPrefix+"{agent}",
		"Agent Inbox",
		mcp.WithTemplateDescription("Open messages of one agent, most important first"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.handleInboxResource)
}

type agentInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Session string `json:"session"`
	Role    string `json:"role,omitempty"`
	Total   int    `json:"total"`
	Unread  int    `json:"unread"`
	Inbox   string `json:"inbox"`
}

func (s *Server) handleAgentsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	global, err := s.mailbox.GlobalStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect statistics: %w", err)
	}
	agents := s.mailbox.AgentList()
	infos := make([]agentInfo, 0, len(agents))
	for _, a := range agents {
		info := agentInfo{
			ID:      a.ID,
			Name:    a.Name,
			Session: a.SessionName(),
			Role:    a.Role,
			Inbox:   inboxURIPrefix + a.ID,
		}
		if stats, ok := global.PerAgent[a.ID]; ok {
			info.Total = stats.Total
			info.Unread = stats.Unread
		}
		infos = append(infos, info)
	}
	return jsonResource(request.Params.URI, infos)
}

func (s *Server) handleStatsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := s.mailbox.GlobalStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect statistics: %w", err)
	}
	return jsonResource(request.Params.URI, stats)
}

func (s *Server) handleInboxResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	agentID := strings.TrimPrefix(request.Params.URI, inboxURIPrefix)
	if agentID == "" || agentID == request.Params.URI || strings.Contains(agentID, "/") {
		return nil, fmt.Errorf("invalid inbox URI: %s", request.Params.URI)
	}

	messages, err := s.mailbox.PriorityInbox(ctx, agentID, 0)
	if err != nil {
		return nil, toolError(agentID, "", err)
	}
	summaries := make([]messageSummary, 0, len(messages))
	for _, m := range messages {
		summaries = append(summaries, summarize(m))
	}
	return jsonResource(request.Params.URI, map[string]any{
		"agent":    agentID,
		"messages": summaries,
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
