package mcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/mailbox"
)

// ErrorWithSuggestions is a tool error that points the caller at tools that
// can help
type ErrorWithSuggestions struct {
	Message     string
	Suggestions []string
	cause       error
}

// Error returns the message followed by the suggestions
func (e *ErrorWithSuggestions) Error() string {
	if len(e.Suggestions) == 0 {
		return e.Message
	}

	var sb strings.Builder
	sb.WriteString(e.Message)
	sb.WriteString("\n\nDid you mean to use one of these tools instead?\n")
	for _, suggestion := range e.Suggestions {
		sb.WriteString("  - ")
		sb.WriteString(suggestion)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Unwrap returns the underlying domain error, if any
func (e *ErrorWithSuggestions) Unwrap() error {
	return e.cause
}

// NewErrorWithSuggestions creates an error with tool suggestions
func NewErrorWithSuggestions(message string, suggestions ...string) error {
	return &ErrorWithSuggestions{
		Message:     message,
		Suggestions: suggestions,
	}
}

// InboxNotFoundError is returned for agents that have never received mail
func InboxNotFoundError(agentID string, cause error) error {
	return &ErrorWithSuggestions{
		Message: fmt.Sprintf("no inbox for agent: %s", agentID),
		Suggestions: []string{
			"resource_agents - List known agents",
			"agent_register - Create the agent's inbox",
		},
		cause: cause,
	}
}

// MessageNotFoundError is returned for unknown message IDs
func MessageNotFoundError(agentID, messageID string, cause error) error {
	return &ErrorWithSuggestions{
		Message: fmt.Sprintf("message %s not found in %s's inbox", messageID, agentID),
		Suggestions: []string{
			"inbox_list - List messages with their IDs",
			"inbox_list(include_closed: true) - Include archived and expired messages",
		},
		cause: cause,
	}
}

// InvalidParameterError returns an error with suggestions for invalid parameters
func InvalidParameterError(param string, expected string) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("invalid %s: expected %s", param, expected),
		"Use the tool descriptions to understand parameter requirements",
	)
}

// toolError maps domain errors to errors with suggestions
func toolError(agentID, messageID string, err error) error {
	var transition *inbox.ErrInvalidTransition
	switch {
	case errors.Is(err, mailbox.ErrInboxNotFound):
		return InboxNotFoundError(agentID, err)
	case errors.Is(err, inbox.ErrMessageNotFound), errors.Is(err, inbox.ErrAmbiguousID):
		return MessageNotFoundError(agentID, messageID, err)
	case errors.As(err, &transition):
		return &ErrorWithSuggestions{
			Message: err.Error(),
			Suggestions: []string{
				"inbox_list(include_closed: true) - Check the message's current state",
			},
			cause: err,
		}
	}
	return err
}
