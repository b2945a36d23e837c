package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/cli/tui"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/terminal"
	"github.com/aki/agentpost/internal/store"
)

var (
	watchAgent    string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an inbox live",
	Long: `Open a live view of an agent's open messages, most important first. The
view reloads from the message store, so deliveries made by other processes
such as the MCP server show up as they happen.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchAgent, "agent", "a", "", "Agent whose inbox to watch (default $AGENTPOST_AGENT)")
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 2*time.Second, "Refresh interval")
}

func runWatch(cmd *cobra.Command, args []string) error {
	agentID, err := currentAgent(watchAgent)
	if err != nil {
		return err
	}
	if !terminal.IsInteractive() {
		return errors.New("watch needs an interactive terminal; use 'agentpost inbox list' instead")
	}

	container, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	if _, ok := container.Mailbox.Agent(agentID); !ok {
		return fmt.Errorf("unknown agent: %s", agentID)
	}

	source := storeSource(container.Store, agentID, inbox.Options{MaxSize: container.Config.Inbox.MaxSize})
	return tui.Run(cmd.Context(), agentID, source, watchInterval)
}

// storeSource reloads an agent's messages from the store on every call and
// orders them the way the priority inbox does
func storeSource(s store.Store, agentID string, opts inbox.Options) tui.Source {
	return func(ctx context.Context) ([]inbox.ManagedMessage, error) {
		msgs, err := s.LoadMessages(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load messages: %w", err)
		}
		ib := inbox.New(agentID, opts)
		ib.Restore(msgs)
		return ib.PriorityInbox(0), nil
	}
}
