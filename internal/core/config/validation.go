package config

import (
	"fmt"
	"regexp"
	"text/template"
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateConfig validates the semantic rules the schema cannot express
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Inbox.MaxSize < 0 {
		return fmt.Errorf("inbox.maxSize must not be negative")
	}
	for name, d := range map[string]Duration{
		"inbox.defaultTTL":    cfg.Inbox.DefaultTTL,
		"inbox.sweepInterval": cfg.Inbox.SweepInterval,
		"inbox.escalateAfter": cfg.Inbox.EscalateAfter,
		"inbox.remindAfter":   cfg.Inbox.RemindAfter,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	switch cfg.Storage.Driver {
	case "", DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}

	if cfg.Notify.Format != "" {
		if _, err := template.New("notify").Parse(cfg.Notify.Format); err != nil {
			return fmt.Errorf("invalid notify.format: %w", err)
		}
	}

	if err := validateTransport(cfg.MCP.Transport); err != nil {
		return fmt.Errorf("invalid mcp transport: %w", err)
	}

	for id, agent := range cfg.Agents {
		if err := ValidateAgent(id, agent); err != nil {
			return fmt.Errorf("invalid agent '%s': %w", id, err)
		}
	}

	return nil
}

// ValidateAgent validates a single agent entry
func ValidateAgent(id string, _ Agent) error {
	if !agentIDPattern.MatchString(id) {
		return fmt.Errorf("id must start with a letter or digit and contain only letters, digits, '.', '_' or '-'")
	}
	return nil
}

func validateTransport(t TransportConfig) error {
	switch t.Type {
	case "", TransportStdio:
		return nil
	case TransportHTTP:
	default:
		return fmt.Errorf("unsupported type: %s", t.Type)
	}

	switch t.HTTP.Auth.Type {
	case "", AuthNone:
	case AuthBearer:
		if t.HTTP.Auth.Bearer == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
	case AuthBasic:
		if t.HTTP.Auth.Basic.Username == "" || t.HTTP.Auth.Basic.Password == "" {
			return fmt.Errorf("basic auth requires username and password")
		}
	default:
		return fmt.Errorf("unsupported auth type: %s", t.HTTP.Auth.Type)
	}
	return nil
}
