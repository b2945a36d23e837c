package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/cli/ui"
	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/filemanager"
)

var (
	showTOML        bool
	validateVerbose bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect agentpost configuration",
	Example: `  # View current configuration
  agentpost config show

  # Validate configuration
  agentpost config validate`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the current configuration",
	Long: `Display the effective configuration, defaults included. YAML is printed
unless --toml or the global --format json is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate configuration file",
	Long: `Validate the configuration file against the schema and check that
durations, storage, transport and agent IDs are usable. A file argument
validates that YAML or TOML file instead of the project configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigValidate,
}

func init() {
	configShowCmd.Flags().BoolVar(&showTOML, "toml", false, "Print as TOML")
	configValidateCmd.Flags().BoolVarP(&validateVerbose, "verbose", "v", false, "Show configuration details")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func loadProjectConfig() (*config.Manager, *config.Config, error) {
	projectRoot, err := config.FindProjectRoot()
	if err != nil {
		return nil, nil, err
	}
	mgr := config.NewManager(projectRoot)
	cfg, err := mgr.Load()
	if err != nil {
		return mgr, nil, err
	}
	return mgr, cfg, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadProjectConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if ui.GlobalFormatter.IsJSON() {
		return ui.GlobalFormatter.Output(cfg)
	}

	codec := filemanager.YAML
	if showTOML {
		codec = filemanager.TOML
	}
	data, err := codec.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return ui.GlobalFormatter.Output(string(data))
}

type validation struct {
	Valid bool   `json:"valid"`
	Path  string `json:"path"`
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if err := config.ValidateFile(args[0]); err != nil {
			ui.Error("Configuration validation failed: %v", err)
			return fmt.Errorf("invalid configuration")
		}
		return ui.Render(validation{Valid: true, Path: args[0]}, func() {
			ui.Success("%s is valid", args[0])
		})
	}

	mgr, cfg, err := loadProjectConfig()
	if err != nil {
		if mgr == nil {
			return err
		}
		ui.Error("Configuration validation failed: %v", err)
		return fmt.Errorf("invalid configuration")
	}

	return ui.Render(validation{Valid: true, Path: mgr.GetConfigPath()}, func() {
		ui.Success("Configuration is valid")
		if validateVerbose {
			printConfigDetails(cfg)
		}
	})
}

func printConfigDetails(cfg *config.Config) {
	ui.OutputLine("")
	ui.PrintKeyValue("Version", cfg.Version)
	ui.PrintKeyValue("Storage", fmt.Sprintf("%s (%s)", cfg.Storage.Driver, cfg.Storage.Path))
	ui.PrintKeyValue("Max size", cfg.Inbox.MaxSize)
	ui.PrintKeyValue("TTL", cfg.Inbox.DefaultTTL)
	ui.PrintKeyValue("Sweep", cfg.Inbox.SweepInterval)
	ui.PrintKeyValue("Escalate", cfg.Inbox.EscalateAfter)
	ui.PrintKeyValue("Remind", cfg.Inbox.RemindAfter)
	ui.PrintKeyValue("Notify", cfg.Notify.IsEnabled())
	ui.PrintKeyValue("Transport", cfg.MCP.Transport.Type)

	ids := make([]string, 0, len(cfg.Agents))
	for id := range cfg.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ui.OutputLine("\nAgents (%d configured):", len(ids))
	for _, id := range ids {
		a := cfg.Agents[id]
		ui.OutputLine("  %s", id)
		if a.Session != "" {
			ui.OutputLine("    Session: %s", a.Session)
		}
		if a.Role != "" {
			ui.OutputLine("    Role: %s", a.Role)
		}
	}
}
