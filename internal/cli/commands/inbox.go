package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/app"
	"github.com/aki/agentpost/internal/cli/ui"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/terminal"
)

var (
	inboxAgent string

	listView       string
	listState      string
	listCategory   string
	listUnreadOnly bool
	listAll        bool
	listLimit      int

	deleteForce bool
)

var inboxCmd = &cobra.Command{
	Use:     "inbox",
	Aliases: []string{"ib"},
	Short:   "Read and manage an agent's inbox",
	Long: `Read and manage an agent's inbox.

The agent is taken from --agent or $AGENTPOST_AGENT. Message IDs may be
shortened to any unique prefix, as printed by 'inbox list'.`,
}

var inboxListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List messages",
	Example: `  # Newest open messages
  agentpost inbox list -a reviewer

  # Most important first
  agentpost inbox list -a reviewer --view priority --limit 5

  # Unread task messages
  agentpost inbox list -a reviewer --category tasks --unread`,
	Args: cobra.NoArgs,
	RunE: runInboxList,
}

var inboxShowCmd = &cobra.Command{
	Use:   "show <message-id>",
	Short: "Show a message without marking it read",
	Args:  cobra.ExactArgs(1),
	RunE:  runInboxShow,
}

var inboxReadCmd = &cobra.Command{
	Use:   "read <message-id>",
	Short: "Show a message and mark it read",
	Args:  cobra.ExactArgs(1),
	RunE:  runInboxRead,
}

var inboxAckCmd = &cobra.Command{
	Use:   "ack <message-id>",
	Short: "Acknowledge a message",
	Args:  cobra.ExactArgs(1),
	RunE:  runInboxAck,
}

var inboxArchiveCmd = &cobra.Command{
	Use:   "archive <message-id>",
	Short: "Archive a message",
	Args:  cobra.ExactArgs(1),
	RunE:  runInboxArchive,
}

var inboxEscalateCmd = &cobra.Command{
	Use:   "escalate <message-id>",
	Short: "Escalate a message and notify the agent again",
	Args:  cobra.ExactArgs(1),
	RunE:  runInboxEscalate,
}

var inboxDeleteCmd = &cobra.Command{
	Use:     "delete <message-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a message permanently",
	Args:    cobra.ExactArgs(1),
	RunE:    runInboxDelete,
}

var inboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show inbox statistics",
	Args:  cobra.NoArgs,
	RunE:  runInboxStats,
}

func init() {
	inboxCmd.PersistentFlags().StringVarP(&inboxAgent, "agent", "a", "", "Agent whose inbox to use (default $AGENTPOST_AGENT)")

	inboxListCmd.Flags().StringVar(&listView, "view", "recent", "Ordering (recent, priority)")
	inboxListCmd.Flags().StringVar(&listState, "state", "", "Only messages in this state")
	inboxListCmd.Flags().StringVar(&listCategory, "category", "", "Only messages in this category")
	inboxListCmd.Flags().BoolVarP(&listUnreadOnly, "unread", "u", false, "Only unread messages")
	inboxListCmd.Flags().BoolVar(&listAll, "all", false, "Include archived and expired messages")
	inboxListCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum number of messages (0 = all)")

	inboxDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Do not ask for confirmation")

	inboxCmd.AddCommand(inboxListCmd)
	inboxCmd.AddCommand(inboxShowCmd)
	inboxCmd.AddCommand(inboxReadCmd)
	inboxCmd.AddCommand(inboxAckCmd)
	inboxCmd.AddCommand(inboxArchiveCmd)
	inboxCmd.AddCommand(inboxEscalateCmd)
	inboxCmd.AddCommand(inboxDeleteCmd)
	inboxCmd.AddCommand(inboxStatsCmd)
}

// withInbox opens the container and resolves the agent for an inbox command
func withInbox(ctx context.Context, fn func(c *app.Container, agentID string) error) error {
	agentID, err := currentAgent(inboxAgent)
	if err != nil {
		return err
	}
	container, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	return fn(container, agentID)
}

// withMessage additionally resolves a full or short message ID
func withMessage(ctx context.Context, ref string, fn func(c *app.Container, agentID, messageID string) error) error {
	return withInbox(ctx, func(c *app.Container, agentID string) error {
		messageID, err := c.Mailbox.Resolve(ctx, agentID, ref)
		if err != nil {
			return fmt.Errorf("message %s in %s's inbox: %w", ref, agentID, err)
		}
		return fn(c, agentID, messageID)
	})
}

func runInboxList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withInbox(ctx, func(c *app.Container, agentID string) error {
		var (
			msgs []inbox.ManagedMessage
			err  error
		)
		switch listView {
		case "priority":
			msgs, err = c.Mailbox.PriorityInbox(ctx, agentID, listLimit)
		case "recent":
			filter := inbox.Filter{
				UnreadOnly:    listUnreadOnly,
				IncludeClosed: listAll,
				Limit:         listLimit,
			}
			if listState != "" {
				if filter.State, err = inbox.ParseState(listState); err != nil {
					return err
				}
			}
			if listCategory != "" {
				if filter.Category, err = inbox.ParseCategory(listCategory); err != nil {
					return err
				}
			}
			msgs, err = c.Mailbox.List(ctx, agentID, filter)
		default:
			return fmt.Errorf("unsupported view: %s (use recent or priority)", listView)
		}
		if err != nil {
			return fmt.Errorf("failed to list inbox: %w", err)
		}

		if msgs == nil {
			msgs = []inbox.ManagedMessage{}
		}
		return ui.Render(msgs, func() {
			ui.PrintMessageList(agentID, msgs)
		})
	})
}

func runInboxShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withMessage(ctx, args[0], func(c *app.Container, agentID, messageID string) error {
		managed, err := c.Mailbox.Get(ctx, agentID, messageID)
		if err != nil {
			return err
		}
		return ui.Render(managed, func() { ui.PrintMessage(managed) })
	})
}

func runInboxRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withMessage(ctx, args[0], func(c *app.Container, agentID, messageID string) error {
		managed, err := c.Mailbox.Get(ctx, agentID, messageID)
		if err != nil {
			return err
		}
		// Reading an acknowledged or closed message only shows it
		if managed.State == inbox.StateDelivered || managed.State == inbox.StateEscalated {
			if managed, err = c.Mailbox.MarkRead(ctx, agentID, messageID); err != nil {
				return fmt.Errorf("failed to mark message read: %w", err)
			}
		}
		return ui.Render(managed, func() { ui.PrintMessage(managed) })
	})
}

func runInboxAck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withMessage(ctx, args[0], func(c *app.Container, agentID, messageID string) error {
		managed, err := c.Mailbox.Acknowledge(ctx, agentID, messageID)
		if err != nil {
			return fmt.Errorf("failed to acknowledge message: %w", err)
		}
		return ui.Render(managed, func() {
			ui.Success("Acknowledged %s", ui.ShortID(managed.ID))
		})
	})
}

func runInboxArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withMessage(ctx, args[0], func(c *app.Container, agentID, messageID string) error {
		managed, err := c.Mailbox.Archive(ctx, agentID, messageID)
		if err != nil {
			return fmt.Errorf("failed to archive message: %w", err)
		}
		return ui.Render(managed, func() {
			ui.Success("Archived %s", ui.ShortID(managed.ID))
		})
	})
}

func runInboxEscalate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withMessage(ctx, args[0], func(c *app.Container, agentID, messageID string) error {
		managed, err := c.Mailbox.Escalate(ctx, agentID, messageID)
		if err != nil {
			return fmt.Errorf("failed to escalate message: %w", err)
		}
		return ui.Render(managed, func() {
			ui.Success("Escalated %s to %s", ui.ShortID(managed.ID), managed.EffectivePriority)
		})
	})
}

func runInboxDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withMessage(ctx, args[0], func(c *app.Container, agentID, messageID string) error {
		if !deleteForce && terminal.IsInteractive() {
			if !ui.ConfirmWithDefault(fmt.Sprintf("Delete %s permanently?", ui.ShortID(messageID)), false) {
				ui.Info("Cancelled")
				return nil
			}
		}
		if err := c.Mailbox.Delete(ctx, agentID, messageID); err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}
		return ui.Render(map[string]string{"deleted": messageID}, func() {
			ui.Success("Deleted %s", ui.ShortID(messageID))
		})
	})
}

func runInboxStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withInbox(ctx, func(c *app.Container, agentID string) error {
		stats, err := c.Mailbox.Statistics(ctx, agentID)
		if err != nil {
			return err
		}
		return ui.Render(stats, func() { ui.PrintStats(stats) })
	})
}
