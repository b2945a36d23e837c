// Package tail follows the terminal pane of an agent session.
package tail

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"time"

	"github.com/aki/agentpost/internal/adapters/tmux"
	"github.com/aki/agentpost/internal/core/terminal"
)

// Options configures the tail behavior
type Options struct {
	// PollInterval is how often to check for new output
	PollInterval time.Duration
	// Writer is where to write the output
	Writer io.Writer
	// MaxLines limits the number of lines to display
	MaxLines int
	// CaptureLines is how much scrollback to capture from the pane
	CaptureLines int
}

// DefaultOptions returns default tail options
func DefaultOptions() Options {
	return Options{
		PollInterval: 1 * time.Second,
		MaxLines:     0, // auto-detect based on terminal size
		CaptureLines: 100,
	}
}

// Tailer streams the pane of one tmux session
type Tailer struct {
	adapter tmux.Adapter
	session string
	opts    Options
}

// New creates a new Tailer for a session
func New(adapter tmux.Adapter, sessionName string, opts Options) *Tailer {
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.CaptureLines == 0 {
		opts.CaptureLines = DefaultOptions().CaptureLines
	}
	return &Tailer{
		adapter: adapter,
		session: sessionName,
		opts:    opts,
	}
}

// Snapshot writes the current pane contents once
func (t *Tailer) Snapshot(ctx context.Context) error {
	output, err := t.capture(ctx)
	if err != nil {
		return err
	}
	if t.opts.Writer == nil {
		return nil
	}
	_, err = t.opts.Writer.Write(t.processOutput(output))
	return err
}

// Follow continuously redraws the pane until the context is cancelled or
// the session goes away
func (t *Tailer) Follow(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	output, err := t.capture(ctx)
	if err != nil {
		return fmt.Errorf("failed to get initial output: %w", err)
	}
	if err := t.redraw(output); err != nil {
		return fmt.Errorf("failed to write initial output: %w", err)
	}
	lastHash := hash(output)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !t.adapter.SessionExists(ctx, t.session) {
				return nil
			}

			output, err := t.capture(ctx)
			if err != nil {
				if !t.adapter.SessionExists(ctx, t.session) {
					return nil
				}
				return fmt.Errorf("failed to get output: %w", err)
			}

			// Skip the redraw when nothing changed
			currentHash := hash(output)
			if currentHash == lastHash {
				continue
			}
			if err := t.redraw(output); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			lastHash = currentHash
		}
	}
}

func (t *Tailer) capture(ctx context.Context) ([]byte, error) {
	out, err := t.adapter.CapturePane(ctx, t.session, t.opts.CaptureLines)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (t *Tailer) redraw(output []byte) error {
	if t.opts.Writer == nil || len(output) == 0 {
		return nil
	}
	t.clearScreen()
	_, err := t.opts.Writer.Write(t.processOutput(output))
	return err
}

// processOutput processes the output to limit to terminal height
func (t *Tailer) processOutput(output []byte) []byte {
	maxLines := t.opts.MaxLines
	if maxLines == 0 {
		_, height := terminal.GetSize()
		if height < 10 {
			maxLines = 30
		} else {
			// Reserve 2 lines for status info
			maxLines = height - 2
		}
	}

	lines := bytes.Split(output, []byte("\n"))
	if len(lines) <= maxLines {
		return output
	}

	limited := bytes.Join(lines[len(lines)-maxLines:], []byte("\n"))
	header := fmt.Sprintf("... (showing last %d lines) ...\n", maxLines)
	return append([]byte(header), limited...)
}

// clearScreen clears the terminal screen using ANSI escape codes
func (t *Tailer) clearScreen() {
	if t.opts.Writer != nil {
		_, _ = t.opts.Writer.Write([]byte("\033[2J\033[H"))
	}
}

func hash(b []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(b)
	return h.Sum32()
}

