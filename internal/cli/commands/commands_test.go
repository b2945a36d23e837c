package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/agentpost/internal/adapters/tmux"
	"github.com/aki/agentpost/internal/app"
	"github.com/aki/agentpost/internal/cli/ui"
	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/mailbox"
	"github.com/aki/agentpost/internal/semaphore"
	"github.com/aki/agentpost/internal/tests/helpers"
)

// resetFlags restores every package-level flag variable, since cobra keeps
// values between Execute calls
func resetFlags() {
	flagFormat = "pretty"
	flagLogLevel = "warn"
	flagLogFormat = "text"

	forceInit = false
	initStorage = config.DriverSQLite

	sendFrom, sendSubject, sendPriority, sendType, sendFile = "", "", "normal", string(inbox.TypeDirect), ""
	sendTTL = 0
	broadcastFrom, broadcastSubject, broadcastPriority, broadcastFile = "", "", "normal", ""
	broadcastAgents = nil
	broadcastTTL = 0

	inboxAgent = ""
	listView, listState, listCategory = "recent", "", ""
	listUnreadOnly, listAll, listLimit = false, false, 0
	deleteForce = false

	addName, addSession, addRole, addCreateSession = "", "", "", false
	peekFollow, peekLines = false, 0

	showTOML, validateVerbose = false, false
	watchAgent, watchInterval = "", 2*time.Second

	serveTransport, servePort, serveAuthType = "", 0, ""
	serveAuthToken, serveAuthUser, serveAuthPass = "", "", ""
	serveNoSweep, rootDir = false, ""

	_ = ui.SetGlobalFormatter(ui.FormatPretty)
}

// setupProject creates an initialized project, moves into it and routes
// tmux through a mock adapter
func setupProject(t *testing.T, mutate func(*config.Config)) (string, *tmux.MockAdapter) {
	t.Helper()

	root := helpers.CreateTestProject(t, mutate)
	helpers.Chdir(t, root)
	t.Setenv(envAgent, "")

	adapter := tmux.NewMockAdapter()
	containerOptions = []app.Option{app.WithTmux(adapter)}
	t.Cleanup(func() { containerOptions = nil })

	return root, adapter
}

// execute runs the root command and returns what it printed
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags()
	t.Cleanup(resetFlags)

	var out, errOut bytes.Buffer
	restore := ui.SetOutput(&out, &errOut)
	defer restore()

	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func executeJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := execute(t, append(args, "--format", "json")...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	helpers.Chdir(t, dir)

	out, err := execute(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "agentpost initialized")
	assert.FileExists(t, filepath.Join(dir, config.AgentpostDir, config.ConfigFile))

	_, err = execute(t, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")

	_, err = execute(t, "init", "--force", "--storage", "memory")
	require.NoError(t, err)

	cfg, err := config.NewManager(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, config.DriverMemory, cfg.Storage.Driver)
}

func TestAddToGitignore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("bin/\n"), 0o644))

	assert.True(t, shouldUpdateGitignore(dir))
	require.NoError(t, addToGitignore(dir))
	assert.False(t, shouldUpdateGitignore(dir))

	// A second call does not duplicate the entry
	require.NoError(t, addToGitignore(dir))
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), ".agentpost/"))
}

func TestSendAndInboxLifecycle(t *testing.T) {
	setupProject(t, nil)

	var sent inbox.ManagedMessage
	executeJSON(t, &sent, "send", "bob", "--from", "alice", "-p", "high", "please review the parser")
	assert.Equal(t, "alice", sent.Sender)
	assert.Equal(t, "bob", sent.Recipient)
	assert.Equal(t, "please review the parser", sent.Subject)
	assert.Equal(t, inbox.PriorityHigh, sent.Priority)
	assert.Equal(t, inbox.StateDelivered, sent.State)

	var listed []inbox.ManagedMessage
	executeJSON(t, &listed, "inbox", "list", "-a", "bob")
	require.Len(t, listed, 1)
	assert.Equal(t, sent.ID, listed[0].ID)

	short := ui.ShortID(sent.ID)

	var read inbox.ManagedMessage
	executeJSON(t, &read, "inbox", "read", "-a", "bob", short)
	assert.Equal(t, inbox.StateRead, read.State)
	assert.NotNil(t, read.ReadAt)

	var acked inbox.ManagedMessage
	executeJSON(t, &acked, "inbox", "ack", "-a", "bob", short)
	assert.Equal(t, inbox.StateAcknowledged, acked.State)

	// Reading an acknowledged message leaves it acknowledged
	executeJSON(t, &read, "inbox", "read", "-a", "bob", short)
	assert.Equal(t, inbox.StateAcknowledged, read.State)

	out, err := execute(t, "inbox", "archive", "-a", "bob", short)
	require.NoError(t, err)
	assert.Contains(t, out, "Archived")

	executeJSON(t, &listed, "inbox", "list", "-a", "bob")
	assert.Empty(t, listed)
	executeJSON(t, &listed, "inbox", "list", "-a", "bob", "--all")
	require.Len(t, listed, 1)
	assert.Equal(t, inbox.StateArchived, listed[0].State)

	_, err = execute(t, "inbox", "delete", "-a", "bob", "--force", short)
	require.NoError(t, err)
	executeJSON(t, &listed, "inbox", "list", "-a", "bob", "--all")
	assert.Empty(t, listed)
}

func TestInboxEscalate(t *testing.T) {
	setupProject(t, nil)

	var sent inbox.ManagedMessage
	executeJSON(t, &sent, "send", "bob", "--from", "alice", "the nightly job is red")

	var escalated inbox.ManagedMessage
	executeJSON(t, &escalated, "inbox", "escalate", "-a", "bob", ui.ShortID(sent.ID))
	assert.Equal(t, inbox.StateEscalated, escalated.State)
	assert.Equal(t, inbox.CategoryUrgent, escalated.Category)
	assert.Equal(t, 1, escalated.Metrics.EscalationCount)
	assert.Greater(t, escalated.EffectivePriority, sent.EffectivePriority)

	var listed []inbox.ManagedMessage
	executeJSON(t, &listed, "inbox", "list", "-a", "bob", "--state", "escalated")
	require.Len(t, listed, 1)

	// Acknowledged messages cannot be escalated
	executeJSON(t, &escalated, "inbox", "ack", "-a", "bob", ui.ShortID(sent.ID))
	_, err := execute(t, "inbox", "escalate", "-a", "bob", ui.ShortID(sent.ID))
	assert.Error(t, err)
}

func TestSendFromStdin(t *testing.T) {
	setupProject(t, nil)

	orig := stdinReader
	stdinReader = strings.NewReader("Deploy failed\nstack trace follows\n")
	t.Cleanup(func() { stdinReader = orig })

	var sent inbox.ManagedMessage
	executeJSON(t, &sent, "send", "bob")
	assert.Equal(t, "Deploy failed", sent.Subject)
	assert.Equal(t, "user", sent.Sender)
	assert.Contains(t, sent.Content, "stack trace follows")
}

func TestSendUsesAgentEnv(t *testing.T) {
	setupProject(t, nil)
	t.Setenv(envAgent, "carol")

	var sent inbox.ManagedMessage
	executeJSON(t, &sent, "send", "bob", "-s", "hi", "hello")
	assert.Equal(t, "carol", sent.Sender)
	assert.Equal(t, "hi", sent.Subject)

	// The env var also selects the inbox to read
	t.Setenv(envAgent, "bob")
	var listed []inbox.ManagedMessage
	executeJSON(t, &listed, "inbox", "list")
	require.Len(t, listed, 1)
	assert.Equal(t, sent.ID, listed[0].ID)
}

func TestSendValidation(t *testing.T) {
	setupProject(t, nil)

	_, err := execute(t, "send", "bob", "-p", "critical", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown priority")

	_, err = execute(t, "send", "bob", "-t", "broadcast", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agentpost broadcast")

	_, err = execute(t, "send", "not valid!", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, mailbox.ErrInvalidAgentID)
}

func TestInboxListViews(t *testing.T) {
	setupProject(t, nil)

	_, err := execute(t, "send", "bob", "-p", "low", "-s", "later", "whenever")
	require.NoError(t, err)
	_, err = execute(t, "send", "bob", "-p", "urgent", "-s", "now", "production is down")
	require.NoError(t, err)
	_, err = execute(t, "send", "bob", "-s", "middle", "fyi")
	require.NoError(t, err)

	var listed []inbox.ManagedMessage
	executeJSON(t, &listed, "inbox", "list", "-a", "bob")
	require.Len(t, listed, 3)
	assert.Equal(t, "middle", listed[0].Subject)

	executeJSON(t, &listed, "inbox", "list", "-a", "bob", "--view", "priority", "--limit", "2")
	require.Len(t, listed, 2)
	assert.Equal(t, "now", listed[0].Subject)

	executeJSON(t, &listed, "inbox", "list", "-a", "bob", "--category", "urgent")
	require.Len(t, listed, 1)
	assert.Equal(t, "now", listed[0].Subject)

	out, err := execute(t, "inbox", "list", "-a", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Inbox bob (3)")

	_, err = execute(t, "inbox", "list", "-a", "bob", "--view", "oldest")
	assert.Error(t, err)
	_, err = execute(t, "inbox", "list", "-a", "bob", "--state", "lost")
	assert.Error(t, err)
}

func TestInboxErrors(t *testing.T) {
	setupProject(t, func(cfg *config.Config) {
		cfg.Agents = map[string]config.Agent{"bob": {}}
	})

	_, err := execute(t, "inbox", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no agent given")

	_, err = execute(t, "inbox", "list", "-a", "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, mailbox.ErrInboxNotFound)

	_, err = execute(t, "inbox", "read", "-a", "bob", "msg-nothing")
	require.Error(t, err)
	assert.ErrorIs(t, err, inbox.ErrMessageNotFound)
}

func TestInboxShowDoesNotMarkRead(t *testing.T) {
	setupProject(t, nil)

	var sent inbox.ManagedMessage
	executeJSON(t, &sent, "send", "bob", "-s", "look", "at this")

	out, err := execute(t, "inbox", "show", "-a", "bob", sent.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "look")
	assert.Contains(t, out, "at this")

	var stats inbox.Stats
	executeJSON(t, &stats, "inbox", "stats", "-a", "bob")
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Unread)
}

func TestBroadcastCommand(t *testing.T) {
	setupProject(t, func(cfg *config.Config) {
		cfg.Agents = map[string]config.Agent{"alice": {}, "bob": {}, "carol": {}}
	})

	var result broadcastResult
	executeJSON(t, &result, "broadcast", "--from", "alice", "standup in five")
	assert.Equal(t, 2, result.Delivered)
	assert.Empty(t, result.Errors)

	executeJSON(t, &result, "broadcast", "--from", "alice", "--agents", "bob", "just bob")
	assert.Equal(t, 1, result.Delivered)

	var stats mailbox.GlobalStats
	executeJSON(t, &stats, "stats")
	assert.Equal(t, 3, stats.Agents)
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, 0, stats.PerAgent["alice"].Total)
	assert.Equal(t, 2, stats.PerAgent["bob"].Total)
}

func TestBroadcastWithoutAgents(t *testing.T) {
	setupProject(t, nil)

	out, err := execute(t, "broadcast", "anyone there?")
	require.NoError(t, err)
	assert.NotContains(t, out, "delivered to")
}

func TestAgentCommands(t *testing.T) {
	root, adapter := setupProject(t, nil)

	_, err := execute(t, "agent", "add", "dave", "--role", "tests", "--session", "work", "--create-session")
	require.NoError(t, err)
	assert.True(t, adapter.SessionExists(context.Background(), "work"))

	cfg, err := config.NewManager(root).Load()
	require.NoError(t, err)
	assert.Equal(t, "tests", cfg.Agents["dave"].Role)

	_, err = execute(t, "send", "dave", "hello")
	require.NoError(t, err)

	var entries []agentEntry
	executeJSON(t, &entries, "agent", "list")
	require.Len(t, entries, 1)
	assert.Equal(t, "dave", entries[0].ID)
	assert.Equal(t, "work", entries[0].Session)
	assert.Equal(t, 1, entries[0].Unread)

	_, err = execute(t, "agent", "remove", "dave")
	require.NoError(t, err)
	executeJSON(t, &entries, "agent", "list")
	assert.Empty(t, entries)

	_, err = execute(t, "agent", "remove", "dave")
	assert.Error(t, err)
}

func TestAgentRemoveAutoCreated(t *testing.T) {
	setupProject(t, nil)

	// bob only exists because mail was delivered to him
	_, err := execute(t, "send", "bob", "hello")
	require.NoError(t, err)
	_, err = execute(t, "agent", "remove", "bob")
	require.NoError(t, err)

	var entries []agentEntry
	executeJSON(t, &entries, "agent", "list")
	assert.Empty(t, entries)
}

func TestAgentPeek(t *testing.T) {
	_, adapter := setupProject(t, func(cfg *config.Config) {
		cfg.Agents = map[string]config.Agent{"bob": {Session: "bob-pane"}}
	})
	adapter.AddSession("bob-pane")
	require.NoError(t, adapter.SendKeys(context.Background(), "bob-pane", "running tests..."))

	out, err := execute(t, "agent", "peek", "bob", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "running tests...")

	_, err = execute(t, "agent", "peek", "nobody")
	assert.ErrorIs(t, err, tmux.ErrSessionNotFound)
}

func TestSweepCommand(t *testing.T) {
	root, _ := setupProject(t, nil)

	_, err := execute(t, "send", "bob", "--ttl", "1ms", "short lived")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	var report mailbox.SweepReport
	executeJSON(t, &report, "sweep")
	assert.Equal(t, 1, report.Expired)

	out, err := execute(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to sweep")

	var listed []inbox.ManagedMessage
	executeJSON(t, &listed, "inbox", "list", "-a", "bob", "--state", "expired")
	require.Len(t, listed, 1)

	// Hold the lease as a running server would
	lease := semaphore.New(filepath.Join(root, config.AgentpostDir, sweeperLease))
	require.NoError(t, lease.TryAcquire("mcp-stdio"))
	t.Cleanup(func() { _ = lease.Release() })

	_, err = execute(t, "sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
	assert.Contains(t, err.Error(), "mcp-stdio")
}

func TestConfigCommands(t *testing.T) {
	setupProject(t, func(cfg *config.Config) {
		cfg.Agents = map[string]config.Agent{"bob": {Role: "reviewer"}}
	})

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "maxSize: 100")

	out, err = execute(t, "config", "show", "--toml")
	require.NoError(t, err)
	assert.Contains(t, out, "maxSize = 100")

	var cfg config.Config
	executeJSON(t, &cfg, "config", "show")
	assert.Equal(t, 100, cfg.Inbox.MaxSize)
	assert.Equal(t, config.DefaultTTL, cfg.Inbox.DefaultTTL.Std())

	out, err = execute(t, "config", "validate", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "Role: reviewer")
}

func TestConfigValidateFile(t *testing.T) {
	setupProject(t, nil)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte("[inbox]\nmaxSize = 10\n"), 0o644))
	out, err := execute(t, "config", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("storage:\n  driver: postgres\n"), 0o644))
	_, err = execute(t, "config", "validate", bad)
	assert.Error(t, err)

	_, err = execute(t, "config", "validate", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestCommandsOutsideProject(t *testing.T) {
	helpers.Chdir(t, t.TempDir())

	for _, args := range [][]string{
		{"config", "show"},
		{"config", "validate"},
		{"stats"},
		{"send", "bob", "hi"},
	} {
		_, err := execute(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "not in an agentpost project", args)
	}
}

func TestVersionCommand(t *testing.T) {
	var info map[string]string
	executeJSON(t, &info, "version")
	assert.Equal(t, Version, info["version"])

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentpost version")
}

func TestGlobalFlagValidation(t *testing.T) {
	_, err := execute(t, "version", "--format", "xml")
	assert.Error(t, err)

	_, err = execute(t, "version", "--log-level", "loud")
	assert.Error(t, err)
}

func TestMCPCommandUnsupportedTransport(t *testing.T) {
	setupProject(t, nil)

	_, err := execute(t, "mcp", "--transport", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport")
}
