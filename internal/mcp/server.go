package mcp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/core/logger"
	"github.com/aki/agentpost/internal/core/mailbox"
)

// Options configures a Server
type Options struct {
	// Transport is stdio or http
	Transport string
	HTTP      config.HTTPConfig
	Version   string
	Logger    logger.Logger

	// Stdin and Stdout override the stdio streams
	Stdin  io.Reader
	Stdout io.Writer
}

// Server serves the mailbox over MCP
type Server struct {
	mcpServer *server.MCPServer
	mailbox   *mailbox.Manager
	opts      Options
	log       logger.Logger
}

// NewServer creates an MCP server with every tool and resource registered
func NewServer(mgr *mailbox.Manager, opts Options) (*Server, error) {
	if opts.Transport == "" {
		opts.Transport = config.TransportStdio
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	mcpServer := server.NewMCPServer(
		"agentpost",
		opts.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		mailbox:   mgr,
		opts:      opts,
		log:       logger.Component(opts.Logger, "mcp"),
	}

	if err := s.registerMessageTools(); err != nil {
		return nil, fmt.Errorf("failed to register message tools: %w", err)
	}
	if err := s.registerInboxTools(); err != nil {
		return nil, fmt.Errorf("failed to register inbox tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// MCPServer returns the underlying mcp-go server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) addTool(name string, params any, handler server.ToolHandlerFunc) error {
	opts, err := WithStructOptions(GetEnhancedDescription(name), params)
	if err != nil {
		return fmt.Errorf("failed to create %s options: %w", name, err)
	}
	s.mcpServer.AddTool(mcp.NewTool(name, opts...), handler)
	return nil
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	switch s.opts.Transport {
	case config.TransportStdio:
		s.log.Info("serving MCP over stdio")
		stdio := server.NewStdioServer(s.mcpServer)
		err := stdio.Listen(ctx, s.opts.Stdin, s.opts.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case config.TransportHTTP:
		return s.startHTTPServer(ctx)
	default:
		return fmt.Errorf("unsupported transport: %s", s.opts.Transport)
	}
}

// Handler returns the HTTP handler serving the SSE and message endpoints
func (s *Server) Handler() http.Handler {
	sseServer := server.NewSSEServer(s.mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return s.corsMiddleware(s.authMiddleware(mux))
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	port := s.opts.HTTP.Port
	if port == 0 {
		port = config.DefaultHTTPPort
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("failed to shutdown server", "error", err)
		}
	}()

	s.log.Info("serving MCP over HTTP",
		"sse", fmt.Sprintf("http://localhost:%d/sse", port),
		"message", fmt.Sprintf("http://localhost:%d/message", port))

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	auth := s.opts.HTTP.Auth
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch auth.Type {
		case "", config.AuthNone:
		case config.AuthBearer:
			if !secureEqual(r.Header.Get("Authorization"), "Bearer "+auth.Bearer) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		case config.AuthBasic:
			username, password, ok := r.BasicAuth()
			if !ok || !secureEqual(username, auth.Basic.Username) || !secureEqual(password, auth.Basic.Password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="agentpost"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		default:
			http.Error(w, "Invalid auth type", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
