package tmux

import "context"

// Adapter is the terminal bridge: the tmux operations agentpost needs to
// reach an agent's session.
type Adapter interface {
	IsAvailable() bool
	SessionExists(ctx context.Context, sessionName string) bool
	CreateSession(ctx context.Context, sessionName, workDir string) error
	KillSession(ctx context.Context, sessionName string) error
	// SendKeys types text literally into the session, followed by Enter
	SendKeys(ctx context.Context, sessionName, text string) error
	// CapturePane returns the last lines of the pane (0 = visible screen)
	CapturePane(ctx context.Context, sessionName string, lines int) (string, error)
	ListSessions(ctx context.Context) ([]string, error)
}
