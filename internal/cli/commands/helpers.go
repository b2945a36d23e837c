package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aki/agentpost/internal/app"
	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/core/inbox"
)

// envAgent names the agent a CLI invocation acts as when --agent/--from is
// not given
const envAgent = "AGENTPOST_AGENT"

// containerOptions lets tests swap dependencies such as the tmux adapter
var containerOptions []app.Option

// openContainer finds the project root and builds the full container. The
// caller must Close it.
func openContainer(ctx context.Context) (*app.Container, error) {
	projectRoot, err := config.FindProjectRoot()
	if err != nil {
		return nil, err
	}
	return app.NewContainer(ctx, projectRoot, CreateLogger(), containerOptions...)
}

// currentAgent returns flag, falling back to $AGENTPOST_AGENT
func currentAgent(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(envAgent); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("no agent given: pass --agent or set %s", envAgent)
}

// senderName is the --from flag, $AGENTPOST_AGENT or "user"
func senderName(flag string) string {
	if name, err := currentAgent(flag); err == nil {
		return name
	}
	return "user"
}

var stdinReader io.Reader = os.Stdin

// readContent takes the message body from file, the remaining arguments or
// piped stdin, in that order
func readContent(args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if f, ok := stdinReader.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("failed to stat stdin: %w", err)
		}
		if stat.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("no message provided: pass it as arguments, --file or stdin")
		}
	}
	data, err := io.ReadAll(stdinReader)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("message is empty")
	}
	return string(data), nil
}

// defaultSubject derives a subject from the first line of content
func defaultSubject(content string) string {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	const max = 60
	if r := []rune(line); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return line
}

// expiryOption turns a --ttl value into an add option. Zero keeps the
// configured default.
func expiryOption(ttl time.Duration) []inbox.AddOption {
	if ttl <= 0 {
		return nil
	}
	return []inbox.AddOption{inbox.WithExpiry(time.Now().Add(ttl))}
}
