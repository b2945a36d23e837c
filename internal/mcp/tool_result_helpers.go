package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolResultMetadata is attached to every tool result
type ToolResultMetadata struct {
	ToolUsed           string              `json:"tool_used"`
	SuggestedNextTools []map[string]string `json:"suggested_next_tools,omitempty"`
}

type enhancedResult struct {
	Result   any                 `json:"result"`
	Metadata *ToolResultMetadata `json:"_metadata,omitempty"`
}

// createEnhancedResult renders content as indented JSON with next-tool hints
func createEnhancedResult(toolName string, content any) (*mcp.CallToolResult, error) {
	enhanced := enhancedResult{
		Result: content,
		Metadata: &ToolResultMetadata{
			ToolUsed:           toolName,
			SuggestedNextTools: GetNextToolSuggestions(toolName),
		},
	}

	jsonData, err := json.MarshalIndent(enhanced, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(jsonData),
			},
		},
	}, nil
}
