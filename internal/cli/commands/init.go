// Package commands provides CLI command implementations for agentpost.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/cli/ui"
	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/core/terminal"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize agentpost in the current project",
	Long:  "Create the .agentpost directory and a default configuration in the current directory",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var (
	forceInit   bool
	initStorage string
)

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force initialization, overwriting existing configuration")
	initCmd.Flags().StringVar(&initStorage, "storage", config.DriverSQLite, "Storage driver (sqlite, memory)")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	configManager := config.NewManager(cwd)
	if configManager.IsInitialized() && !forceInit {
		return fmt.Errorf("agentpost already initialized. Use --force to reinitialize")
	}

	cfg := config.DefaultConfig()
	cfg.Storage.Driver = initStorage
	if err := configManager.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	// Only ask when someone can answer
	if terminal.IsInteractive() && shouldUpdateGitignore(cwd) {
		if ui.ConfirmWithDefault("Add .agentpost/ to .gitignore", false) {
			if err := addToGitignore(cwd); err != nil {
				ui.Warning("Failed to update .gitignore: %v", err)
			} else {
				ui.OutputLine("Added .agentpost/ to .gitignore")
			}
		}
	}

	return ui.Render(map[string]string{
		"root":   cwd,
		"config": filepath.Join(config.AgentpostDir, config.ConfigFile),
	}, func() {
		ui.Success("agentpost initialized in %s", cwd)
		ui.PrintKeyValue("Config", filepath.Join(config.AgentpostDir, config.ConfigFile))
		ui.OutputLine("\nRun 'agentpost agent add <id>' to declare agents, then 'agentpost mcp' to serve them")
	})
}

func shouldUpdateGitignore(projectRoot string) bool {
	content := ""
	if data, err := os.ReadFile(filepath.Join(projectRoot, ".gitignore")); err == nil {
		content = string(data)
	}
	return !strings.Contains(content, config.AgentpostDir)
}

func addToGitignore(projectRoot string) (err error) {
	if !shouldUpdateGitignore(projectRoot) {
		return nil
	}

	file, err := os.OpenFile(filepath.Join(projectRoot, ".gitignore"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	_, err = file.WriteString("\n# agentpost\n.agentpost/\n")
	return err
}
