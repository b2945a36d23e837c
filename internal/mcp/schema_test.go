package mcp

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestStructToToolOptions(t *testing.T) {
	tests := []struct {
		name        string
		structType  any
		wantFields  []string
		wantMissing []string
	}{
		{
			name:       "MessageSendParams",
			structType: MessageSendParams{},
			wantFields: []string{"from", "to", "subject", "content", "priority", "type", "ttl"},
		},
		{
			name:       "InboxListParams",
			structType: &InboxListParams{},
			wantFields: []string{"agent", "view", "state", "category", "unread_only", "include_closed", "limit"},
		},
		{
			name:       "GlobalStatsParams",
			structType: GlobalStatsParams{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := StructToToolOptions(tt.structType)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			tool := mcp.NewTool("test", opts...)
			if len(tool.InputSchema.Properties) != len(tt.wantFields) {
				t.Errorf("expected %d properties, got %d", len(tt.wantFields), len(tool.InputSchema.Properties))
			}
			for _, field := range tt.wantFields {
				if _, ok := tool.InputSchema.Properties[field]; !ok {
					t.Errorf("expected property %s", field)
				}
			}
		})
	}
}

func TestStructToToolOptions_RequiredAndEnum(t *testing.T) {
	opts, err := StructToToolOptions(MessageSendParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tool := mcp.NewTool("message_send", opts...)

	required := map[string]bool{}
	for _, name := range tool.InputSchema.Required {
		required[name] = true
	}
	for _, name := range []string{"from", "to", "content"} {
		if !required[name] {
			t.Errorf("expected %s to be required", name)
		}
	}
	if required["subject"] {
		t.Error("expected subject to be optional")
	}

	priority, ok := tool.InputSchema.Properties["priority"].(map[string]any)
	if !ok {
		t.Fatalf("expected priority schema map, got %T", tool.InputSchema.Properties["priority"])
	}
	enum, ok := priority["enum"].([]string)
	if !ok || len(enum) != 4 || enum[0] != "low" || enum[3] != "urgent" {
		t.Errorf("unexpected priority enum: %v", priority["enum"])
	}
}

func TestStructToToolOptions_NotStruct(t *testing.T) {
	if _, err := StructToToolOptions("nope"); err == nil {
		t.Error("expected error for non-struct type")
	}
}

func TestUnmarshalArgs(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]any{
				"agent":       "alice",
				"limit":       float64(5),
				"unread_only": true,
			},
		},
	}

	var params InboxListParams
	if err := UnmarshalArgs(req, &params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Agent != "alice" || params.Limit != 5 || !params.UnreadOnly {
		t.Errorf("unexpected params: %+v", params)
	}
}
