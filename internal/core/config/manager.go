// Package config provides configuration management for agentpost projects.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aki/agentpost/internal/filemanager"
)

const (
	// AgentpostDir is the directory name for agentpost metadata
	AgentpostDir = ".agentpost"
	// ConfigFile is the YAML configuration filename
	ConfigFile = "config.yaml"
	// ConfigFileTOML is the TOML alternative, used when no YAML file exists
	ConfigFileTOML = "config.toml"
)

// ErrNotInitialized is returned when no configuration file exists
var ErrNotInitialized = errors.New("agentpost not initialized. Run 'agentpost init' first")

// Manager handles agentpost configuration
type Manager struct {
	projectRoot string
	configPath  string
	files       *filemanager.Manager[Config]
}

// NewManager creates a configuration manager for projectRoot. It reads
// config.yaml, falling back to config.toml when only that file exists.
func NewManager(projectRoot string) *Manager {
	dir := filepath.Join(projectRoot, AgentpostDir)
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := os.Stat(filepath.Join(dir, ConfigFileTOML)); err == nil {
			path = filepath.Join(dir, ConfigFileTOML)
		}
	}

	codec, err := filemanager.CodecFor(path)
	if err != nil {
		codec = filemanager.YAML
	}

	return &Manager{
		projectRoot: projectRoot,
		configPath:  path,
		files:       filemanager.NewManager[Config](codec).WithInitial(DefaultConfig),
	}
}

// Load reads, validates and defaults the configuration
func (m *Manager) Load() (*Config, error) {
	cfg, err := LoadWithValidation(m.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Save validates cfg and writes it
func (m *Manager) Save(cfg *Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	if err := m.files.Write(context.Background(), m.configPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Update applies fn to the stored configuration under the file lock,
// retrying if another process changes the file concurrently.
func (m *Manager) Update(ctx context.Context, fn func(*Config) error) error {
	if !m.IsInitialized() {
		return ErrNotInitialized
	}
	err := m.files.Update(ctx, m.configPath, func(cfg *Config) error {
		if err := fn(cfg); err != nil {
			return err
		}
		return ValidateConfig(cfg)
	})
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	return nil
}

// IsInitialized checks if agentpost has been initialized in the project
func (m *Manager) IsInitialized() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}

// GetProjectRoot returns the project root directory
func (m *Manager) GetProjectRoot() string {
	return m.projectRoot
}

// GetAgentpostDir returns the .agentpost directory path
func (m *Manager) GetAgentpostDir() string {
	return filepath.Join(m.projectRoot, AgentpostDir)
}

// GetConfigPath returns the configuration file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// ResolvePath resolves a path from the config relative to .agentpost
func (m *Manager) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.GetAgentpostDir(), p)
}

// FindProjectRoot walks up from the working directory looking for .agentpost
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		for _, name := range []string{ConfigFile, ConfigFileTOML} {
			if _, err := os.Stat(filepath.Join(dir, AgentpostDir, name)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("not in an agentpost project (no %s directory found)", AgentpostDir)
}

// LoadWithValidation reads path, validates it against the schema and decodes
// it on top of DefaultConfig.
func LoadWithValidation(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	codec, err := filemanager.CodecFor(path)
	if err != nil {
		return nil, err
	}

	if err := validateBytes(codec, data); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := DefaultConfig()
	if err := codec.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ValidateFile validates a configuration file without loading it
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("configuration file not found: %s", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	codec, err := filemanager.CodecFor(path)
	if err != nil {
		return err
	}
	return validateBytes(codec, data)
}

func validateBytes(codec filemanager.Codec, data []byte) error {
	if codec == filemanager.TOML {
		return ValidateTOML(data)
	}
	return ValidateYAML(data)
}

// applyDefaults fills values that must never be empty at runtime
func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1.0"
	}
	if cfg.Inbox.MaxSize <= 0 {
		cfg.Inbox.MaxSize = DefaultMaxSize
	}
	if cfg.Inbox.SweepInterval <= 0 {
		cfg.Inbox.SweepInterval = Duration(DefaultSweepInterval)
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultDBFile
	}
	if cfg.MCP.Transport.Type == "" {
		cfg.MCP.Transport.Type = TransportStdio
	}
	if cfg.MCP.Transport.Type == TransportHTTP && cfg.MCP.Transport.HTTP.Port == 0 {
		cfg.MCP.Transport.HTTP.Port = DefaultHTTPPort
	}
	if cfg.Agents == nil {
		cfg.Agents = make(map[string]Agent)
	}
}
