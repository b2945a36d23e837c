package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/cli/ui"
	"github.com/aki/agentpost/internal/semaphore"
)

// sweeperLease is the lock file, under .agentpost, held by whichever process
// runs the sweeper
const sweeperLease = "sweeper"

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire, escalate and remind once",
	Long: `Run one sweep over every inbox: expire messages past their TTL, escalate
stale unread high priority messages and re-notify recipients of messages left
unread. Refuses to run while an MCP server is sweeping the same project.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	container, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	lease := semaphore.New(filepath.Join(container.ConfigManager.GetAgentpostDir(), sweeperLease))
	if err := lease.TryAcquire("cli-sweep"); err != nil {
		var held *semaphore.ErrHeld
		if errors.As(err, &held) {
			return fmt.Errorf("sweeper is already running: %w", err)
		}
		return fmt.Errorf("failed to acquire sweeper lease: %w", err)
	}
	defer func() { _ = lease.Release() }()

	report, err := container.Mailbox.Sweep(cmd.Context(), time.Now())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	return ui.Render(report, func() {
		if report.Total() == 0 {
			ui.Info("Nothing to sweep")
			return
		}
		ui.Success("Swept inboxes")
		ui.PrintKeyValue("Expired", report.Expired)
		ui.PrintKeyValue("Escalated", report.Escalated)
		ui.PrintKeyValue("Reminded", report.Reminded)
	})
}
