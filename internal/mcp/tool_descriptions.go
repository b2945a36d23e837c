package mcp

import "strings"

// ToolDescription provides enhanced descriptions for AI agents
type ToolDescription struct {
	Description string
	WhenToUse   []string
	Examples    []string
	NextTools   []string
}

var toolDescriptions = map[string]ToolDescription{
	"message_send": {
		Description: "Send a message to another agent's inbox. The recipient is notified in its tmux session and the message is sorted into a category by its content",
		WhenToUse: []string{
			"When handing a task to another agent",
			"When asking another agent a question",
			"When reporting that requested work is done",
		},
		Examples: []string{
			`message_send(from: "planner", to: "coder", subject: "Implement login", content: "Please implement the login form")`,
			`message_send(from: "coder", to: "planner", content: "Login form done", priority: "high")`,
		},
		NextTools: []string{
			"inbox_list - Check your own inbox for replies",
		},
	},

	"message_broadcast": {
		Description: "Send an independent copy of a message to every known agent except the sender",
		WhenToUse: []string{
			"When every agent needs the same information",
			"When announcing a change that affects all work in progress",
		},
		Examples: []string{
			`message_broadcast(from: "planner", content: "Main branch is frozen until release")`,
			`message_broadcast(from: "planner", content: "Review needed", agents: "reviewer,qa")`,
		},
		NextTools: []string{
			"global_stats - Confirm delivery across inboxes",
		},
	},

	"inbox_list": {
		Description: "List messages in an agent's inbox. Use view priority to see open messages most important first",
		WhenToUse: []string{
			"At the start of a work session to see what is waiting",
			"After being notified of a new message",
			"To find the ID of a message to read or acknowledge",
		},
		Examples: []string{
			`inbox_list(agent: "coder", view: "priority", limit: 5)`,
			`inbox_list(agent: "coder", category: "questions", unread_only: true)`,
		},
		NextTools: []string{
			"inbox_read - Open a message and mark it read",
			"inbox_ack - Confirm you will act on a message",
		},
	},

	"inbox_read": {
		Description: "Return a message and mark it read",
		WhenToUse: []string{
			"When opening a message from the inbox listing",
		},
		Examples: []string{
			`inbox_read(agent: "coder", message_id: "msg-3f2a9c1b")`,
		},
		NextTools: []string{
			"inbox_ack - Acknowledge the message",
			"message_send - Reply to the sender",
			"inbox_archive - File the message away",
		},
	},

	"inbox_ack": {
		Description: "Acknowledge a message, telling the sender you will act on it. Acknowledged messages are never escalated",
		Examples: []string{
			`inbox_ack(agent: "coder", message_id: "msg-3f2a9c1b")`,
		},
		NextTools: []string{
			"inbox_archive - Archive once the work is done",
		},
	},

	"inbox_archive": {
		Description: "Archive a message. Archived messages leave the active inbox and cannot be reopened",
		Examples: []string{
			`inbox_archive(agent: "coder", message_id: "msg-3f2a9c1b")`,
		},
		NextTools: []string{
			"inbox_list - Continue with the next message",
		},
	},

	"inbox_escalate": {
		Description: "Escalate a message: raise its priority one level, file it as urgent and notify the recipient again",
		WhenToUse: []string{
			"When a message you sent is blocking you and has not been read",
			"When a message needs attention sooner than its priority suggests",
		},
		Examples: []string{
			`inbox_escalate(agent: "coder", message_id: "msg-3f2a9c1b")`,
		},
		NextTools: []string{
			"inbox_list - Check the escalated message in the priority view",
		},
	},

	"inbox_delete": {
		Description: "Permanently delete a message from an inbox. Prefer inbox_archive unless the message was sent by mistake",
		Examples: []string{
			`inbox_delete(agent: "coder", message_id: "msg-3f2a9c1b")`,
		},
	},

	"inbox_stats": {
		Description: "Summarize an agent's inbox: totals and counts per state, category and priority",
		Examples: []string{
			`inbox_stats(agent: "coder")`,
		},
		NextTools: []string{
			"inbox_list - Drill into a category",
		},
	},

	"global_stats": {
		Description: "Summarize every inbox, including how many notifications failed to reach a tmux session",
		NextTools: []string{
			"inbox_stats - Inspect one agent",
		},
	},

	"agent_register": {
		Description: "Register an agent so it receives broadcasts and can be notified in its tmux session. Registering again updates name, session and role",
		WhenToUse: []string{
			"When an agent joins the project",
			"When an agent's tmux session name differs from its ID",
		},
		Examples: []string{
			`agent_register(id: "reviewer", session: "review-pane", role: "code review")`,
		},
		NextTools: []string{
			"inbox_list - Check the new agent's inbox",
		},
	},
}

// GetEnhancedDescription returns the enhanced description for a tool
func GetEnhancedDescription(toolName string) string {
	desc, ok := toolDescriptions[toolName]
	if !ok {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(desc.Description)
	if len(desc.WhenToUse) > 0 {
		sb.WriteString("\n\nWHEN TO USE THIS TOOL:\n")
		for _, when := range desc.WhenToUse {
			sb.WriteString("- " + when + "\n")
		}
	}
	if len(desc.Examples) > 0 {
		sb.WriteString("\nEXAMPLES:\n")
		for _, example := range desc.Examples {
			sb.WriteString(example + "\n")
		}
	}
	return sb.String()
}

// GetNextToolSuggestions returns suggested next tools for a given tool
func GetNextToolSuggestions(toolName string) []map[string]string {
	desc, ok := toolDescriptions[toolName]
	if !ok {
		return nil
	}
	suggestions := make([]map[string]string, 0, len(desc.NextTools))
	for _, next := range desc.NextTools {
		suggestions = append(suggestions, map[string]string{"tool": next})
	}
	return suggestions
}
