package config

import (
	"fmt"
	"time"
)

// Config is the agentpost project configuration
type Config struct {
	Version string           `yaml:"version" toml:"version"`
	Inbox   InboxConfig      `yaml:"inbox" toml:"inbox"`
	Storage StorageConfig    `yaml:"storage" toml:"storage"`
	Notify  NotifyConfig     `yaml:"notify" toml:"notify"`
	MCP     MCPConfig        `yaml:"mcp" toml:"mcp"`
	Agents  map[string]Agent `yaml:"agents,omitempty" toml:"agents,omitempty"`
}

// InboxConfig tunes every agent inbox and the sweeper
type InboxConfig struct {
	MaxSize       int      `yaml:"maxSize" toml:"maxSize"`
	DefaultTTL    Duration `yaml:"defaultTTL" toml:"defaultTTL"`
	SweepInterval Duration `yaml:"sweepInterval" toml:"sweepInterval"`
	EscalateAfter Duration `yaml:"escalateAfter" toml:"escalateAfter"`
	RemindAfter   Duration `yaml:"remindAfter" toml:"remindAfter"`
	// Keywords adds classifier keywords per category name
	Keywords map[string][]string `yaml:"keywords,omitempty" toml:"keywords,omitempty"`
}

// StorageConfig selects the message store
type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	// Path is relative to the .agentpost directory unless absolute
	Path string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// NotifyConfig controls terminal notifications
type NotifyConfig struct {
	Enabled *bool `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	// Format is a text/template rendered against the delivered message
	Format string `yaml:"format,omitempty" toml:"format,omitempty"`
}

// IsEnabled reports whether notifications are on; unset means on
func (n NotifyConfig) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	Transport TransportConfig `yaml:"transport" toml:"transport"`
}

// TransportConfig represents MCP transport configuration
type TransportConfig struct {
	Type string     `yaml:"type" toml:"type"`
	HTTP HTTPConfig `yaml:"http,omitempty" toml:"http,omitempty"`
}

// HTTPConfig represents HTTP transport configuration
type HTTPConfig struct {
	Port int        `yaml:"port,omitempty" toml:"port,omitempty"`
	Auth AuthConfig `yaml:"auth,omitempty" toml:"auth,omitempty"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Type   string    `yaml:"type,omitempty" toml:"type,omitempty"`
	Bearer string    `yaml:"bearer,omitempty" toml:"bearer,omitempty"`
	Basic  BasicAuth `yaml:"basic,omitempty" toml:"basic,omitempty"`
}

// BasicAuth holds HTTP basic credentials
type BasicAuth struct {
	Username string `yaml:"username,omitempty" toml:"username,omitempty"`
	Password string `yaml:"password,omitempty" toml:"password,omitempty"`
}

// Agent is a pre-declared agent
type Agent struct {
	Name string `yaml:"name,omitempty" toml:"name,omitempty"`
	// Session is the tmux session notifications go to; defaults to the agent ID
	Session string `yaml:"session,omitempty" toml:"session,omitempty"`
	Role    string `yaml:"role,omitempty" toml:"role,omitempty"`
}

// Duration is a time.Duration written as "30m" in config files
type Duration time.Duration

// Std returns the standard library duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"

	TransportStdio = "stdio"
	TransportHTTP  = "http"

	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthBasic  = "basic"

	DefaultMaxSize       = 100
	DefaultTTL           = 72 * time.Hour
	DefaultSweepInterval = time.Minute
	DefaultEscalateAfter = 30 * time.Minute
	DefaultRemindAfter   = 2 * time.Hour
	DefaultDBFile        = "agentpost.db"
	DefaultHTTPPort      = 8080
)

// DefaultConfig returns the configuration written by agentpost init
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Inbox: InboxConfig{
			MaxSize:       DefaultMaxSize,
			DefaultTTL:    Duration(DefaultTTL),
			SweepInterval: Duration(DefaultSweepInterval),
			EscalateAfter: Duration(DefaultEscalateAfter),
			RemindAfter:   Duration(DefaultRemindAfter),
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   DefaultDBFile,
		},
		MCP: MCPConfig{
			Transport: TransportConfig{
				Type: TransportStdio,
			},
		},
		Agents: map[string]Agent{},
	}
}
