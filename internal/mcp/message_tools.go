package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aki/agentpost/internal/core/inbox"
)

func (s *Server) registerMessageTools() error {
	if err := s.addTool("message_send", MessageSendParams{}, s.handleMessageSend); err != nil {
		return err
	}
	return s.addTool("message_broadcast", MessageBroadcastParams{}, s.handleMessageBroadcast)
}

func (s *Server) handleMessageSend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params MessageSendParams
	if err := UnmarshalArgs(request, &params); err != nil {
		return nil, err
	}
	if params.From == "" || params.To == "" || params.Content == "" {
		return nil, InvalidParameterError("arguments", "from, to and content")
	}

	priority, err := inbox.ParsePriority(params.Priority)
	if err != nil {
		return nil, InvalidParameterError("priority", "low, normal, high or urgent")
	}
	msgType, err := inbox.ParseMessageType(params.Type)
	if err != nil || msgType == inbox.TypeBroadcast {
		return nil, InvalidParameterError("type", "direct, system or task_update")
	}
	addOpts, err := expiryOption(params.TTL)
	if err != nil {
		return nil, err
	}

	managed, err := s.mailbox.Deliver(ctx, inbox.Message{
		Sender:    params.From,
		Recipient: params.To,
		Type:      msgType,
		Priority:  priority,
		Subject:   params.Subject,
		Content:   params.Content,
	}, addOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", toolError(params.To, "", err))
	}

	return createEnhancedResult("message_send", managed)
}

func (s *Server) handleMessageBroadcast(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params MessageBroadcastParams
	if err := UnmarshalArgs(request, &params); err != nil {
		return nil, err
	}
	if params.From == "" || params.Content == "" {
		return nil, InvalidParameterError("arguments", "from and content")
	}

	priority, err := inbox.ParsePriority(params.Priority)
	if err != nil {
		return nil, InvalidParameterError("priority", "low, normal, high or urgent")
	}
	addOpts, err := expiryOption(params.TTL)
	if err != nil {
		return nil, err
	}

	agents, err := splitAgents(params.Agents)
	if err != nil {
		return nil, err
	}

	delivered, err := s.mailbox.Broadcast(ctx, inbox.Message{
		Sender:   params.From,
		Priority: priority,
		Subject:  params.Subject,
		Content:  params.Content,
	}, agents, addOpts...)

	result := map[string]any{"delivered": delivered}
	if err != nil {
		if delivered == 0 {
			return nil, fmt.Errorf("failed to broadcast message: %w", err)
		}
		result["errors"] = err.Error()
	}
	return createEnhancedResult("message_broadcast", result)
}

// splitAgents parses a comma-separated ID list. A blank list means every
// agent; a list made only of separators names nobody and is rejected.
func splitAgents(list string) ([]string, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var ids []string
	for _, part := range strings.Split(list, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, InvalidParameterError("agents", "a comma-separated list of agent IDs, or nothing for every agent")
	}
	return ids, nil
}

func expiryOption(ttl string) ([]inbox.AddOption, error) {
	if ttl == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(ttl)
	if err != nil || d <= 0 {
		return nil, InvalidParameterError("ttl", "a positive duration such as 30m or 4h")
	}
	return []inbox.AddOption{inbox.WithExpiry(time.Now().Add(d))}, nil
}
