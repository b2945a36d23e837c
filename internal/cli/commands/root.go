package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/cli/ui"
)

var flagFormat string

var rootCmd = &cobra.Command{
	Use:   "agentpost",
	Short: "Inboxes and messaging for AI agents running in tmux",
	Long: `Agentpost gives every agent in a fleet of terminal coding agents its own
inbox. Messages are classified, prioritized, persisted and announced in the
recipient's tmux session, and the same inboxes are exposed to agents over MCP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupGlobals,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "pretty", "Output format (pretty, json)")
	RegisterLoggerFlags(rootCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupGlobals(cmd *cobra.Command, args []string) error {
	format, err := ui.ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	if err := ui.SetGlobalFormatter(format); err != nil {
		return err
	}
	return validateLoggerFlags()
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_ = ui.GlobalFormatter.OutputError(err)
		return err
	}
	return nil
}
