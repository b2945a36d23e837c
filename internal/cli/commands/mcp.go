package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aki/agentpost/internal/app"
	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/core/mailbox"
	"github.com/aki/agentpost/internal/mcp"
	"github.com/aki/agentpost/internal/semaphore"
)

var mcpCmd = &cobra.Command{
	Use:     "mcp",
	Aliases: []string{"serve"},
	Short:   "Start the MCP server",
	Long: `Start the Model Context Protocol server so agents can send, read and
acknowledge messages as tools. The inbox sweeper runs alongside the server
unless another process already holds the project's sweeper lease.`,
	Example: `  # Serve over stdio (for an agent's MCP client configuration)
  agentpost mcp

  # Serve over HTTP with bearer authentication
  agentpost mcp --transport http --port 8080 --auth bearer --auth-token s3cret`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

var (
	serveTransport string
	servePort      int
	serveAuthType  string
	serveAuthToken string
	serveAuthUser  string
	serveAuthPass  string
	serveNoSweep   bool
	rootDir        string
)

func init() {
	mcpCmd.Flags().StringVar(&rootDir, "root-dir", "", "Project root directory (default: discovered from the working directory)")
	mcpCmd.Flags().StringVarP(&serveTransport, "transport", "t", "", "Transport type (stdio, http)")
	mcpCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port for HTTP transport")
	mcpCmd.Flags().StringVar(&serveAuthType, "auth", "", "Authentication type (none, bearer, basic)")
	mcpCmd.Flags().StringVar(&serveAuthToken, "auth-token", "", "Bearer token for authentication")
	mcpCmd.Flags().StringVar(&serveAuthUser, "auth-user", "", "Username for basic authentication")
	mcpCmd.Flags().StringVar(&serveAuthPass, "auth-pass", "", "Password for basic authentication")
	mcpCmd.Flags().BoolVar(&serveNoSweep, "no-sweep", false, "Do not run the inbox sweeper")
}

func resolveProjectRoot() (string, error) {
	if rootDir == "" {
		projectRoot, err := config.FindProjectRoot()
		if err != nil {
			return "", fmt.Errorf("not in an agentpost project and --root-dir not specified")
		}
		return projectRoot, nil
	}
	absPath, err := filepath.Abs(rootDir)
	if err != nil {
		return "", fmt.Errorf("invalid root directory: %w", err)
	}
	return absPath, nil
}

// transportSettings merges command line flags over the configured transport
func transportSettings(cfg *config.Config) (string, config.HTTPConfig, error) {
	transport := serveTransport
	if transport == "" {
		transport = cfg.MCP.Transport.Type
	}
	httpConfig := cfg.MCP.Transport.HTTP
	if servePort != 0 {
		httpConfig.Port = servePort
	}

	switch serveAuthType {
	case "":
	case config.AuthNone:
		httpConfig.Auth = config.AuthConfig{Type: config.AuthNone}
	case config.AuthBearer:
		if serveAuthToken == "" {
			return "", httpConfig, errors.New("bearer token required for bearer authentication")
		}
		httpConfig.Auth = config.AuthConfig{Type: config.AuthBearer, Bearer: serveAuthToken}
	case config.AuthBasic:
		if serveAuthUser == "" || serveAuthPass == "" {
			return "", httpConfig, errors.New("username and password required for basic authentication")
		}
		httpConfig.Auth = config.AuthConfig{
			Type:  config.AuthBasic,
			Basic: config.BasicAuth{Username: serveAuthUser, Password: serveAuthPass},
		}
	default:
		return "", httpConfig, fmt.Errorf("unsupported auth type: %s", serveAuthType)
	}

	return transport, httpConfig, nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	projectRoot, err := resolveProjectRoot()
	if err != nil {
		return err
	}

	log := CreateLogger()
	container, err := app.NewContainer(cmd.Context(), projectRoot, log, containerOptions...)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	transport, httpConfig, err := transportSettings(container.Config)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(container.Mailbox, mcp.Options{
		Transport: transport,
		HTTP:      httpConfig,
		Version:   Version,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	interval := container.Config.Inbox.SweepInterval.Std()
	if serveNoSweep {
		interval = 0
	}
	sweeper := mailbox.NewSweeper(container.Mailbox, mailbox.SweeperOptions{
		Interval:  interval,
		LeasePath: filepath.Join(container.ConfigManager.GetAgentpostDir(), sweeperLease),
		HolderID:  fmt.Sprintf("mcp-%s", transport),
		Logger:    log,
	})

	// stdout carries the protocol on stdio, so status goes to stderr
	fmt.Fprintf(os.Stderr, "Starting MCP server with %s transport for %s\n", transport, projectRoot)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The sweeper stops with the server, e.g. when stdin closes
		defer cancel()
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := sweeper.Run(gctx)
		var held *semaphore.ErrHeld
		if errors.As(err, &held) {
			log.Warn("not sweeping: another process holds the sweeper lease", "holder", held.Holder.ID)
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "MCP server stopped\n")
	return nil
}
