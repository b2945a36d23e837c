package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/cli/ui"
	"github.com/aki/agentpost/internal/core/inbox"
)

var (
	sendFrom     string
	sendSubject  string
	sendPriority string
	sendType     string
	sendTTL      time.Duration
	sendFile     string
)

var sendCmd = &cobra.Command{
	Use:   "send <agent> [message...]",
	Short: "Send a message to an agent",
	Long: `Send a message to one agent's inbox. The recipient's inbox is created if
it does not exist yet, and a one-line notice is typed into its tmux session.

The message can be provided as:
- Command line arguments
- From a file with -f/--file
- From stdin (when no message argument is provided)`,
	Example: `  # Send a simple message
  agentpost send reviewer "Please review the auth module"

  # Urgent, with an explicit subject and sender
  agentpost send backend -p urgent -s "Build broken" --from ci "main fails to compile"

  # Send from a file or stdin
  agentpost send backend --file requirements.md
  git diff | agentpost send reviewer -s "Diff to review"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendFrom, "from", "", "Sender agent ID (default $AGENTPOST_AGENT or \"user\")")
	sendCmd.Flags().StringVarP(&sendSubject, "subject", "s", "", "Subject (default first line of the message)")
	sendCmd.Flags().StringVarP(&sendPriority, "priority", "p", "normal", "Priority (low, normal, high, urgent)")
	sendCmd.Flags().StringVarP(&sendType, "type", "t", string(inbox.TypeDirect), "Message type (direct, system, task_update)")
	sendCmd.Flags().DurationVar(&sendTTL, "ttl", 0, "Expire the message after this long (default from config)")
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "Read message from file")
}

func runSend(cmd *cobra.Command, args []string) error {
	priority, err := inbox.ParsePriority(sendPriority)
	if err != nil {
		return err
	}
	msgType, err := inbox.ParseMessageType(sendType)
	if err != nil {
		return err
	}
	if msgType == inbox.TypeBroadcast {
		return fmt.Errorf("use 'agentpost broadcast' to message every agent")
	}

	content, err := readContent(args[1:], sendFile)
	if err != nil {
		return err
	}
	subject := sendSubject
	if subject == "" {
		subject = defaultSubject(content)
	}

	container, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	managed, err := container.Mailbox.Deliver(cmd.Context(), inbox.Message{
		Sender:    senderName(sendFrom),
		Recipient: args[0],
		Type:      msgType,
		Priority:  priority,
		Subject:   subject,
		Content:   content,
	}, expiryOption(sendTTL)...)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return ui.Render(managed, func() {
		ui.Success("Sent %s to %s", ui.ShortID(managed.ID), managed.Recipient)
		ui.PrintKeyValue("Priority", managed.EffectivePriority)
		ui.PrintKeyValue("Category", managed.Category)
	})
}
