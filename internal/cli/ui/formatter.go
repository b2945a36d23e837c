package ui

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/mailbox"
)

// OutputFormat selects how command results are printed
type OutputFormat string

const (
	FormatPretty OutputFormat = "pretty"
	FormatJSON   OutputFormat = "json"
)

// ParseFormat converts a --format value. Empty means pretty.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatPretty, "":
		return FormatPretty, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// Formatter prints command results and errors
type Formatter interface {
	Output(data any) error
	OutputError(err error) error
	IsJSON() bool
}

type prettyFormatter struct{}

// NewPrettyFormatter returns the human-readable formatter
func NewPrettyFormatter() Formatter {
	return prettyFormatter{}
}

// Output prints strings verbatim; callers render tables themselves.
func (prettyFormatter) Output(data any) error {
	if s, ok := data.(string); ok {
		_, err := fmt.Fprint(stdout, s)
		return err
	}
	_, err := fmt.Fprintln(stdout, data)
	return err
}

func (prettyFormatter) OutputError(err error) error {
	_, werr := fmt.Fprintf(stderr, "%s %s\n", ErrorIcon, ErrorStyle.Render(err.Error()))
	return werr
}

func (prettyFormatter) IsJSON() bool { return false }

type jsonFormatter struct{}

// NewJSONFormatter returns a formatter that writes indented JSON
func NewJSONFormatter() Formatter {
	return jsonFormatter{}
}

func (jsonFormatter) Output(data any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// OutputError writes the error as a JSON object on stderr so stdout stays
// parseable.
func (jsonFormatter) OutputError(err error) error {
	enc := json.NewEncoder(stderr)
	return enc.Encode(errorPayload{Error: err.Error(), Code: ErrorCode(err)})
}

func (jsonFormatter) IsJSON() bool { return true }

// ErrorCode maps well-known errors to a stable machine-readable code.
// Unknown errors yield "".
func ErrorCode(err error) string {
	var transition *inbox.ErrInvalidTransition
	switch {
	case errors.Is(err, config.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, mailbox.ErrInboxNotFound):
		return "inbox_not_found"
	case errors.Is(err, mailbox.ErrInvalidAgentID):
		return "invalid_agent_id"
	case errors.Is(err, inbox.ErrAmbiguousID):
		return "ambiguous_id"
	case errors.Is(err, inbox.ErrMessageNotFound):
		return "message_not_found"
	case errors.As(err, &transition):
		return "invalid_transition"
	}
	return ""
}

// GlobalFormatter is used by every command
var GlobalFormatter Formatter = NewPrettyFormatter()

// SetGlobalFormatter replaces GlobalFormatter
func SetGlobalFormatter(format OutputFormat) error {
	switch format {
	case FormatPretty:
		GlobalFormatter = NewPrettyFormatter()
	case FormatJSON:
		GlobalFormatter = NewJSONFormatter()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	return nil
}

// WithFormatter runs fn with format installed, restoring the previous
// formatter afterwards
func WithFormatter(format OutputFormat, fn func() error) error {
	prev := GlobalFormatter
	defer func() { GlobalFormatter = prev }()

	if err := SetGlobalFormatter(format); err != nil {
		return err
	}
	return fn()
}

// Render outputs data as JSON when the global formatter is JSON and calls
// pretty otherwise
func Render(data any, pretty func()) error {
	if GlobalFormatter.IsJSON() {
		return GlobalFormatter.Output(data)
	}
	pretty()
	return nil
}
