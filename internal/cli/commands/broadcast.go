package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/cli/ui"
	"github.com/aki/agentpost/internal/core/inbox"
)

var (
	broadcastFrom     string
	broadcastSubject  string
	broadcastPriority string
	broadcastAgents   []string
	broadcastTTL      time.Duration
	broadcastFile     string
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast [message...]",
	Short: "Send a message to every agent",
	Long: `Deliver an independent copy of a message to every known agent except the
sender, or to the agents listed with --agents.`,
	Example: `  # Tell everyone
  agentpost broadcast "Freeze merges until the release is cut"

  # Only some agents
  agentpost broadcast --agents backend,frontend -p high "API v2 is live"`,
	RunE: runBroadcast,
}

func init() {
	broadcastCmd.Flags().StringVar(&broadcastFrom, "from", "", "Sender agent ID (default $AGENTPOST_AGENT or \"user\")")
	broadcastCmd.Flags().StringVarP(&broadcastSubject, "subject", "s", "", "Subject (default first line of the message)")
	broadcastCmd.Flags().StringVarP(&broadcastPriority, "priority", "p", "normal", "Priority (low, normal, high, urgent)")
	broadcastCmd.Flags().StringSliceVar(&broadcastAgents, "agents", nil, "Recipients (default every known agent)")
	broadcastCmd.Flags().DurationVar(&broadcastTTL, "ttl", 0, "Expire the copies after this long (default from config)")
	broadcastCmd.Flags().StringVarP(&broadcastFile, "file", "f", "", "Read message from file")
}

type broadcastResult struct {
	Delivered int      `json:"delivered"`
	Errors    []string `json:"errors,omitempty"`
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	priority, err := inbox.ParsePriority(broadcastPriority)
	if err != nil {
		return err
	}
	content, err := readContent(args, broadcastFile)
	if err != nil {
		return err
	}
	subject := broadcastSubject
	if subject == "" {
		subject = defaultSubject(content)
	}

	container, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	var recipients []string
	if len(broadcastAgents) > 0 {
		recipients = broadcastAgents
	}

	count, err := container.Mailbox.Broadcast(cmd.Context(), inbox.Message{
		Sender:   senderName(broadcastFrom),
		Type:     inbox.TypeBroadcast,
		Priority: priority,
		Subject:  subject,
		Content:  content,
	}, recipients, expiryOption(broadcastTTL)...)

	result := broadcastResult{Delivered: count}
	if err != nil {
		result.Errors = strings.Split(err.Error(), "\n")
	}
	if renderErr := ui.Render(result, func() {
		if count == 0 && err == nil {
			ui.Warning("No agents to broadcast to")
			return
		}
		ui.Success("Broadcast delivered to %d agent(s)", count)
	}); renderErr != nil {
		return renderErr
	}

	if err != nil {
		return fmt.Errorf("broadcast partially failed: %w", err)
	}
	return nil
}
