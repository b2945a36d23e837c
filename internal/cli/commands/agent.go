package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/app"
	"github.com/aki/agentpost/internal/cli/ui"
	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/mailbox"
	"github.com/aki/agentpost/internal/core/tail"
)

var (
	addName          string
	addSession       string
	addRole          string
	addCreateSession bool

	peekFollow bool
	peekLines  int
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage the agents that own inboxes",
	Long: `Manage the agents that own inboxes.

Agents added here are declared in the project configuration. Agents that
only ever received mail are listed too; their inbox was created on first
delivery.`,
}

var agentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List agents and their unread counts",
	Args:    cobra.NoArgs,
	RunE:    runAgentList,
}

var agentAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Declare an agent",
	Example: `  # Declare an agent whose tmux session has the same name
  agentpost agent add reviewer --role "code review"

  # Agent running in an existing session
  agentpost agent add backend --session work:backend

  # Also start a tmux session for it
  agentpost agent add frontend --create-session`,
	Args: cobra.ExactArgs(1),
	RunE: runAgentAdd,
}

var agentRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove an agent and its inbox",
	Args:    cobra.ExactArgs(1),
	RunE:    runAgentRemove,
}

var agentPeekCmd = &cobra.Command{
	Use:   "peek <id>",
	Short: "Show the agent's tmux pane",
	Long: `Show what the agent's tmux session currently displays, for example to
check that a notification arrived. With --follow the pane is redrawn until
interrupted or the session ends.`,
	Args: cobra.ExactArgs(1),
	RunE: runAgentPeek,
}

func init() {
	agentAddCmd.Flags().StringVar(&addName, "name", "", "Display name")
	agentAddCmd.Flags().StringVar(&addSession, "session", "", "tmux session (default the agent ID)")
	agentAddCmd.Flags().StringVar(&addRole, "role", "", "Role description")
	agentAddCmd.Flags().BoolVar(&addCreateSession, "create-session", false, "Create the tmux session if it does not exist")

	agentPeekCmd.Flags().BoolVarP(&peekFollow, "follow", "F", false, "Keep redrawing the pane")
	agentPeekCmd.Flags().IntVarP(&peekLines, "lines", "n", 0, "Number of lines to show (default fits the terminal)")

	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentAddCmd)
	agentCmd.AddCommand(agentRemoveCmd)
	agentCmd.AddCommand(agentPeekCmd)
}

type agentEntry struct {
	agent.Agent
	Messages int `json:"messages"`
	Unread   int `json:"unread"`
}

func runAgentList(cmd *cobra.Command, args []string) error {
	container, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	global, err := container.Mailbox.GlobalStatistics(cmd.Context())
	if err != nil {
		return err
	}
	agents := container.Mailbox.AgentList()
	stats := global.PerAgent

	entries := make([]agentEntry, 0, len(agents))
	for _, a := range agents {
		entries = append(entries, agentEntry{Agent: a, Messages: stats[a.ID].Total, Unread: stats[a.ID].Unread})
	}
	return ui.Render(entries, func() { ui.PrintAgentList(agents, stats) })
}

func runAgentAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	container, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	a := agent.Agent{ID: args[0], Name: addName, Session: addSession, Role: addRole}
	if err := container.AgentManager.Add(ctx, a); err != nil {
		return fmt.Errorf("failed to add agent: %w", err)
	}
	registered, err := container.Mailbox.RegisterAgent(ctx, a)
	if err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}

	if addCreateSession {
		if err := ensureSession(cmd, container, registered); err != nil {
			return err
		}
	}

	return ui.Render(registered, func() {
		ui.Success("Added agent %s", registered.ID)
		ui.PrintKeyValue("Session", registered.SessionName())
	})
}

func ensureSession(cmd *cobra.Command, c *app.Container, a agent.Agent) error {
	if c.Tmux == nil || !c.Tmux.IsAvailable() {
		return errors.New("tmux is not available")
	}
	if c.Tmux.SessionExists(cmd.Context(), a.SessionName()) {
		return nil
	}
	if err := c.Tmux.CreateSession(cmd.Context(), a.SessionName(), c.ProjectRoot); err != nil {
		return fmt.Errorf("failed to create tmux session: %w", err)
	}
	return nil
}

func runAgentRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	container, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	agentID := args[0]
	declaredErr := container.AgentManager.Remove(ctx, agentID)
	if declaredErr != nil && !errors.Is(declaredErr, agent.ErrAgentNotFound) {
		return fmt.Errorf("failed to remove agent: %w", declaredErr)
	}

	if err := container.Mailbox.RemoveAgent(ctx, agentID); err != nil {
		// Declared but never loaded is still a successful removal
		if !errors.Is(err, mailbox.ErrInboxNotFound) || declaredErr != nil {
			return fmt.Errorf("failed to remove agent: %w", err)
		}
	}

	return ui.Render(map[string]string{"removed": agentID}, func() {
		ui.Success("Removed agent %s", agentID)
	})
}

func runAgentPeek(cmd *cobra.Command, args []string) error {
	container, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	if container.Tmux == nil {
		return errors.New("tmux is not available")
	}

	sessionName := args[0]
	if a, ok := container.Mailbox.Agent(args[0]); ok {
		sessionName = a.SessionName()
	}

	opts := tail.DefaultOptions()
	opts.Writer = ui.Writer()
	opts.MaxLines = peekLines
	tailer := tail.New(container.Tmux, sessionName, opts)

	if !peekFollow {
		if err := tailer.Snapshot(cmd.Context()); err != nil {
			return fmt.Errorf("failed to capture session %s: %w", sessionName, err)
		}
		fmt.Fprintln(ui.Writer())
		return nil
	}

	if err := tailer.Follow(cmd.Context()); err != nil && cmd.Context().Err() == nil {
		return fmt.Errorf("failed to follow session %s: %w", sessionName, err)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}
