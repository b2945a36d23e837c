package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/aki/agentpost/internal/core/config"
)

// Manager manages the agents declared in the configuration file
type Manager struct {
	configManager *config.Manager
}

// NewManager creates a new agent manager
func NewManager(configManager *config.Manager) *Manager {
	return &Manager{
		configManager: configManager,
	}
}

// Get returns a declared agent by ID
func (m *Manager) Get(id string) (Agent, error) {
	cfg, err := m.configManager.Load()
	if err != nil {
		return Agent{}, fmt.Errorf("failed to load config: %w", err)
	}

	declared, ok := cfg.Agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("agent '%s': %w", id, ErrAgentNotFound)
	}
	return fromConfig(id, declared), nil
}

// List returns all declared agents sorted by ID
func (m *Manager) List() ([]Agent, error) {
	cfg, err := m.configManager.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	agents := make([]Agent, 0, len(cfg.Agents))
	for id, declared := range cfg.Agents {
		agents = append(agents, fromConfig(id, declared))
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

// Add declares an agent, replacing an existing entry with the same ID
func (m *Manager) Add(ctx context.Context, a Agent) error {
	if err := config.ValidateAgent(a.ID, config.Agent{}); err != nil {
		return fmt.Errorf("invalid agent '%s': %w", a.ID, err)
	}
	return m.configManager.Update(ctx, func(cfg *config.Config) error {
		if cfg.Agents == nil {
			cfg.Agents = make(map[string]config.Agent)
		}
		cfg.Agents[a.ID] = config.Agent{Name: a.Name, Session: a.Session, Role: a.Role}
		return nil
	})
}

// Remove deletes a declared agent
func (m *Manager) Remove(ctx context.Context, id string) error {
	return m.configManager.Update(ctx, func(cfg *config.Config) error {
		if _, ok := cfg.Agents[id]; !ok {
			return fmt.Errorf("agent '%s': %w", id, ErrAgentNotFound)
		}
		delete(cfg.Agents, id)
		return nil
	})
}

// FromConfig converts every declared agent in cfg
func FromConfig(cfg *config.Config) []Agent {
	agents := make([]Agent, 0, len(cfg.Agents))
	for id, declared := range cfg.Agents {
		agents = append(agents, fromConfig(id, declared))
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

func fromConfig(id string, declared config.Agent) Agent {
	return Agent{
		ID:      id,
		Name:    declared.Name,
		Session: declared.Session,
		Role:    declared.Role,
	}
}
