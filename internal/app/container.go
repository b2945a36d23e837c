// Package app provides dependency injection container for the application
package app

import (
	"context"
	"fmt"

	"github.com/aki/agentpost/internal/adapters/tmux"
	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/logger"
	"github.com/aki/agentpost/internal/core/mailbox"
	"github.com/aki/agentpost/internal/notify"
	"github.com/aki/agentpost/internal/store"
)

// Container holds all manager instances and their dependencies
type Container struct {
	// ProjectRoot is the root directory of the agentpost project
	ProjectRoot string

	// Core managers
	ConfigManager *config.Manager
	AgentManager  *agent.Manager
	Mailbox       *mailbox.Manager

	// Shared dependencies
	Config   *config.Config
	Store    store.Store
	Tmux     tmux.Adapter
	Notifier notify.Notifier
	Logger   logger.Logger
}

// Option overrides a container dependency
type Option func(*Container)

// WithTmux uses adapter instead of looking up the tmux binary
func WithTmux(adapter tmux.Adapter) Option {
	return func(c *Container) {
		c.Tmux = adapter
	}
}

// NewContainer creates a new container with all managers initialized in
// dependency order. Agents declared in the configuration are registered and
// persisted messages are loaded.
func NewContainer(ctx context.Context, projectRoot string, log logger.Logger, opts ...Option) (*Container, error) {
	c := NewContainerWithoutInit(projectRoot, log)
	for _, opt := range opts {
		opt(c)
	}

	if !c.ConfigManager.IsInitialized() {
		return nil, fmt.Errorf("%s: %w", projectRoot, config.ErrNotInitialized)
	}

	cfg, err := c.ConfigManager.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg

	c.Store, err = store.Open(ctx, cfg.Storage.Driver, c.ConfigManager.ResolvePath(cfg.Storage.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if c.Tmux == nil {
		if adapter, err := tmux.NewAdapter(); err == nil {
			c.Tmux = adapter
		} else {
			c.Logger.Debug("tmux unavailable", "error", err)
		}
	}

	c.Notifier, err = c.newNotifier(cfg.Notify)
	if err != nil {
		_ = c.Store.Close()
		return nil, err
	}

	c.Mailbox = mailbox.NewManager(mailbox.Options{
		MaxSize:    cfg.Inbox.MaxSize,
		DefaultTTL: cfg.Inbox.DefaultTTL.Std(),
		Keywords:   keywords(cfg.Inbox.Keywords, c.Logger),
		Policy: inbox.SweepPolicy{
			EscalateAfter: cfg.Inbox.EscalateAfter.Std(),
			RemindAfter:   cfg.Inbox.RemindAfter.Std(),
		},
		Store:    c.Store,
		Notifier: c.Notifier,
		Logger:   c.Logger,
	})

	if err := c.Mailbox.Load(ctx); err != nil {
		_ = c.Store.Close()
		return nil, fmt.Errorf("failed to load mailbox: %w", err)
	}
	for _, a := range agent.FromConfig(cfg) {
		if _, err := c.Mailbox.RegisterAgent(ctx, a); err != nil {
			_ = c.Store.Close()
			return nil, fmt.Errorf("failed to register agent %s: %w", a.ID, err)
		}
	}

	return c, nil
}

// NewContainerWithoutInit creates a container without checking initialization status.
// This is useful for commands that don't require an initialized project (e.g., init, version).
func NewContainerWithoutInit(projectRoot string, log logger.Logger) *Container {
	if log == nil {
		log = logger.Nop()
	}
	c := &Container{
		ProjectRoot: projectRoot,
		Logger:      log,
	}

	// Config and declared agents only need the project root
	c.ConfigManager = config.NewManager(projectRoot)
	c.AgentManager = agent.NewManager(c.ConfigManager)

	return c
}

// Close releases the store
func (c *Container) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

func (c *Container) newNotifier(cfg config.NotifyConfig) (notify.Notifier, error) {
	if !cfg.IsEnabled() || c.Tmux == nil || !c.Tmux.IsAvailable() {
		return notify.Nop{}, nil
	}
	n, err := notify.NewTmuxNotifier(c.Tmux, cfg.Format, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	return n, nil
}

func keywords(raw map[string][]string, log logger.Logger) map[inbox.Category][]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[inbox.Category][]string, len(raw))
	for name, words := range raw {
		cat, err := inbox.ParseCategory(name)
		if err != nil {
			log.Warn("ignoring keywords for unknown category", "category", name)
			continue
		}
		out[cat] = append(out[cat], words...)
	}
	return out
}
