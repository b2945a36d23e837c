package commands

import (
	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/cli/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics across every inbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := openContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = container.Close() }()

		stats, err := container.Mailbox.GlobalStatistics(cmd.Context())
		if err != nil {
			return err
		}
		return ui.Render(stats, func() { ui.PrintGlobalStats(stats) })
	},
}
