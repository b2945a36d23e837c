// Package mcp exposes agentpost inboxes over the Model Context Protocol.
package mcp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StructToToolOptions converts a struct with tags into MCP tool options.
// Fields use tags like
//
//	`json:"agent" mcp:"required" description:"Agent ID" enum:"a,b"`
func StructToToolOptions(structType any) ([]mcp.ToolOption, error) {
	t := reflect.TypeOf(structType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct type, got %v", t.Kind())
	}

	var toolOptions []mcp.ToolOption
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}

		description := field.Tag.Get("description")
		if description == "" {
			description = fmt.Sprintf("%s field", name)
		}

		opts := []mcp.PropertyOption{mcp.Description(description)}
		if field.Tag.Get("mcp") == "required" {
			opts = append(opts, mcp.Required())
		}

		switch field.Type.Kind() { //nolint:exhaustive // only scalar parameters are exposed
		case reflect.String:
			if enum := field.Tag.Get("enum"); enum != "" {
				opts = append(opts, mcp.Enum(strings.Split(enum, ",")...))
			}
			toolOptions = append(toolOptions, mcp.WithString(name, opts...))
		case reflect.Int, reflect.Int64:
			toolOptions = append(toolOptions, mcp.WithNumber(name, opts...))
		case reflect.Bool:
			toolOptions = append(toolOptions, mcp.WithBoolean(name, opts...))
		default:
			continue
		}
	}

	return toolOptions, nil
}

// WithStructOptions prepends the tool description to the struct-based options
func WithStructOptions(description string, structType any) ([]mcp.ToolOption, error) {
	structOpts, err := StructToToolOptions(structType)
	if err != nil {
		return nil, err
	}
	return append([]mcp.ToolOption{mcp.WithDescription(description)}, structOpts...), nil
}

// UnmarshalArgs decodes CallToolRequest arguments into target
func UnmarshalArgs[T any](request mcp.CallToolRequest, target *T) error {
	raw, err := json.Marshal(request.GetArguments())
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to unmarshal arguments to struct: %w", err)
	}
	return nil
}

// MessageSendParams defines parameters for message_send
type MessageSendParams struct {
	From     string `json:"from" mcp:"required" description:"Sending agent ID"`
	To       string `json:"to" mcp:"required" description:"Recipient agent ID; unknown agents get an inbox on first delivery"`
	Subject  string `json:"subject,omitempty" description:"Short subject line"`
	Content  string `json:"content" mcp:"required" description:"Message body"`
	Priority string `json:"priority,omitempty" enum:"low,normal,high,urgent" description:"Sender priority (default normal)"`
	Type     string `json:"type,omitempty" enum:"direct,system,task_update" description:"Message type (default direct)"`
	TTL      string `json:"ttl,omitempty" description:"Expire the message after this duration, e.g. 30m or 4h"`
}

// MessageBroadcastParams defines parameters for message_broadcast
type MessageBroadcastParams struct {
	From     string `json:"from" mcp:"required" description:"Sending agent ID; the sender gets no copy"`
	Subject  string `json:"subject,omitempty" description:"Short subject line"`
	Content  string `json:"content" mcp:"required" description:"Message body"`
	Priority string `json:"priority,omitempty" enum:"low,normal,high,urgent" description:"Sender priority (default normal)"`
	Agents   string `json:"agents,omitempty" description:"Comma-separated recipient IDs (default every known agent)"`
	TTL      string `json:"ttl,omitempty" description:"Expire the copies after this duration"`
}

// InboxListParams defines parameters for inbox_list
type InboxListParams struct {
	Agent         string `json:"agent" mcp:"required" description:"Agent whose inbox to list"`
	View          string `json:"view,omitempty" enum:"recent,priority" description:"recent lists newest first, priority lists open messages most important first"`
	State         string `json:"state,omitempty" enum:"delivered,read,acknowledged,escalated,archived,expired" description:"Only messages in this state"`
	Category      string `json:"category,omitempty" enum:"urgent,tasks,questions,information,completed" description:"Only messages in this category"`
	UnreadOnly    bool   `json:"unread_only,omitempty" description:"Only unread messages"`
	IncludeClosed bool   `json:"include_closed,omitempty" description:"Also list archived and expired messages"`
	Limit         int    `json:"limit,omitempty" description:"Maximum number of messages (default all)"`
}

// InboxMessageParams identifies one message in an inbox
type InboxMessageParams struct {
	Agent     string `json:"agent" mcp:"required" description:"Agent that owns the inbox"`
	MessageID string `json:"message_id" mcp:"required" description:"Message ID or unique short ID"`
}

// InboxStatsParams defines parameters for inbox_stats
type InboxStatsParams struct {
	Agent string `json:"agent" mcp:"required" description:"Agent whose inbox to summarize"`
}

// GlobalStatsParams defines parameters for global_stats
type GlobalStatsParams struct{}

// AgentRegisterParams defines parameters for agent_register
type AgentRegisterParams struct {
	ID      string `json:"id" mcp:"required" description:"Agent ID (letters, digits, dot, dash, underscore)"`
	Name    string `json:"name,omitempty" description:"Display name"`
	Session string `json:"session,omitempty" description:"tmux session notified on delivery (default the agent ID)"`
	Role    string `json:"role,omitempty" description:"Free-form role, e.g. reviewer"`
}
