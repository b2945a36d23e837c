// Package tmux bridges agentpost to agents running in tmux sessions.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrSessionNotFound is returned when the target session does not exist
var ErrSessionNotFound = errors.New("tmux session not found")

// RealAdapter shells out to the tmux binary
type RealAdapter struct {
	tmuxPath string
}

// NewAdapter creates a new tmux adapter
func NewAdapter() (*RealAdapter, error) {
	tmuxPath, err := exec.LookPath("tmux")
	if err != nil {
		return nil, fmt.Errorf("tmux not found: %w", err)
	}

	return &RealAdapter{
		tmuxPath: tmuxPath,
	}, nil
}

// IsAvailable checks if tmux is available on the system
func (a *RealAdapter) IsAvailable() bool {
	return exec.Command(a.tmuxPath, "-V").Run() == nil
}

// SessionExists checks if a tmux session exists
func (a *RealAdapter) SessionExists(ctx context.Context, sessionName string) bool {
	return exec.CommandContext(ctx, a.tmuxPath, "has-session", "-t", exactTarget(sessionName)).Run() == nil
}

// CreateSession starts a detached session in workDir
func (a *RealAdapter) CreateSession(ctx context.Context, sessionName, workDir string) error {
	args := []string{"new-session", "-d", "-s", sessionName}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}

	cmd := exec.CommandContext(ctx, a.tmuxPath, args...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to create tmux session: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// KillSession kills a tmux session; a missing session is not an error
func (a *RealAdapter) KillSession(ctx context.Context, sessionName string) error {
	if !a.SessionExists(ctx, sessionName) {
		return nil
	}
	if err := exec.CommandContext(ctx, a.tmuxPath, "kill-session", "-t", exactTarget(sessionName)).Run(); err != nil {
		return fmt.Errorf("failed to kill tmux session: %w", err)
	}
	return nil
}

// SendKeys types text into the session and presses Enter
func (a *RealAdapter) SendKeys(ctx context.Context, sessionName, text string) error {
	if !a.SessionExists(ctx, sessionName) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionName)
	}

	// -l sends the text literally so key names inside it are not expanded
	cmd := exec.CommandContext(ctx, a.tmuxPath, "send-keys", "-t", paneTarget(sessionName), "-l", text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to send keys to tmux session: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	if err := exec.CommandContext(ctx, a.tmuxPath, "send-keys", "-t", paneTarget(sessionName), "Enter").Run(); err != nil {
		return fmt.Errorf("failed to send Enter key: %w", err)
	}
	return nil
}

// CapturePane captures the pane content, joining wrapped lines
func (a *RealAdapter) CapturePane(ctx context.Context, sessionName string, lines int) (string, error) {
	args := []string{"capture-pane", "-t", paneTarget(sessionName), "-p", "-J"}
	if lines > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", lines))
	}

	output, err := exec.CommandContext(ctx, a.tmuxPath, args...).Output()
	if err != nil {
		return "", fmt.Errorf("failed to capture pane: %w", err)
	}
	return string(output), nil
}

// ListSessions returns the names of running sessions
func (a *RealAdapter) ListSessions(ctx context.Context) ([]string, error) {
	output, err := exec.CommandContext(ctx, a.tmuxPath, "list-sessions", "-F", "#{session_name}").Output()
	if err != nil {
		// No server running exits with 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list tmux sessions: %w", err)
	}
	return parseLines(string(output)), nil
}

// exactTarget prevents tmux from prefix-matching another session name
func exactTarget(sessionName string) string {
	return "=" + sessionName
}

// paneTarget addresses the active pane of the named session
func paneTarget(sessionName string) string {
	return exactTarget(sessionName) + ":"
}

func parseLines(output string) []string {
	lines := []string{}
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
