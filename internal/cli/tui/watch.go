// Package tui implements the interactive inbox watch view.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aki/agentpost/internal/cli/ui"
	"github.com/aki/agentpost/internal/core/inbox"
)

// Source loads the messages to display, most important first
type Source func(ctx context.Context) ([]inbox.ManagedMessage, error)

const (
	defaultWidth  = 100
	defaultHeight = 24
	// header, blank line and help line
	chromeLines = 3
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	helpStyle  = ui.DimStyle
	errStyle   = ui.ErrorStyle
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type refreshMsg struct {
	messages []inbox.ManagedMessage
	err      error
	at       time.Time
}

type tickMsg time.Time

// Model is the bubbletea model of the watch view
type Model struct {
	ctx      context.Context
	agentID  string
	source   Source
	interval time.Duration

	table  table.Model
	detail viewport.Model

	messages    []inbox.ManagedMessage
	err         error
	lastRefresh time.Time
	showDetail  bool
	width       int
	height      int
}

// New creates the watch view for agentID, reloading from source every
// interval
func New(ctx context.Context, agentID string, source Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	t := table.New(
		table.WithColumns(columns(defaultWidth)),
		table.WithFocused(true),
		table.WithHeight(defaultHeight-chromeLines),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	t.SetStyles(styles)

	return Model{
		ctx:      ctx,
		agentID:  agentID,
		source:   source,
		interval: interval,
		table:    t,
		detail:   viewport.New(defaultWidth, defaultHeight/2),
		width:    defaultWidth,
		height:   defaultHeight,
	}
}

func columns(width int) []table.Column {
	fixed := []table.Column{
		{Title: "ID", Width: 14},
		{Title: "PRIORITY", Width: 8},
		{Title: "STATE", Width: 12},
		{Title: "FROM", Width: 12},
		{Title: "SUBJECT", Width: 0},
		{Title: "RECEIVED", Width: 16},
	}
	used := 0
	for _, c := range fixed {
		used += c.Width + 2
	}
	subject := width - used - 2
	if subject < 20 {
		subject = 20
	}
	fixed[4].Width = subject
	return fixed
}

// Init starts the first load and the refresh ticker
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick())
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		msgs, err := m.source(m.ctx)
		return refreshMsg{messages: msgs, err: err, at: time.Now()}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles keys, resizes and refreshes
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		case "esc":
			m.showDetail = false
			m.resize()
			return m, nil
		case "enter":
			if selected, ok := m.Selected(); ok {
				m.showDetail = !m.showDetail
				m.detail.SetContent(renderDetail(selected))
				m.detail.GotoTop()
				m.resize()
			}
			return m, nil
		}
		if m.showDetail && (msg.String() == "pgup" || msg.String() == "pgdown") {
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case refreshMsg:
		m.err = msg.err
		if msg.err == nil {
			m.setMessages(msg.messages)
			m.lastRefresh = msg.at
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) resize() {
	m.table.SetColumns(columns(m.width))
	m.table.SetWidth(m.width)

	available := m.height - chromeLines
	if m.showDetail {
		detailHeight := available / 2
		m.detail.Width = m.width - 4
		m.detail.Height = detailHeight
		available -= detailHeight + 2
	}
	if available < 3 {
		available = 3
	}
	m.table.SetHeight(available)
}

func (m *Model) setMessages(msgs []inbox.ManagedMessage) {
	// Keep the cursor on the same message across refreshes
	var selectedID string
	if selected, ok := m.Selected(); ok {
		selectedID = selected.ID
	}

	m.messages = msgs
	rows := make([]table.Row, 0, len(msgs))
	cursor := 0
	for i, msg := range msgs {
		if msg.ID == selectedID {
			cursor = i
		}
		subject := msg.Subject
		if msg.IsUnread() {
			subject = "● " + subject
		}
		rows = append(rows, table.Row{
			ui.ShortID(msg.ID),
			msg.EffectivePriority.String(),
			string(msg.State),
			msg.Sender,
			subject,
			ui.FormatTime(msg.ReceivedAt),
		})
	}
	m.table.SetRows(rows)
	m.table.SetCursor(cursor)
}

// Selected returns the message under the cursor
func (m Model) Selected() (inbox.ManagedMessage, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.messages) {
		return inbox.ManagedMessage{}, false
	}
	return m.messages[i], true
}

// View renders the watch view
func (m Model) View() string {
	var b strings.Builder

	unread := 0
	for _, msg := range m.messages {
		if msg.IsUnread() {
			unread++
		}
	}
	header := fmt.Sprintf("%s %s  %d open, %d unread", ui.InboxIcon, m.agentID, len(m.messages), unread)
	if !m.lastRefresh.IsZero() {
		header += "  " + helpStyle.Render("updated "+m.lastRefresh.Format("15:04:05"))
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("refresh failed: " + m.err.Error()))
	}
	b.WriteString("\n")

	if len(m.messages) == 0 {
		b.WriteString(helpStyle.Render("No open messages"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}

	if m.showDetail {
		b.WriteString(boxStyle.Render(m.detail.View()))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("↑/↓ move • enter details • esc close • r refresh • q quit"))
	return b.String()
}

func renderDetail(msg inbox.ManagedMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", ui.BoldStyle.Render(msg.Subject))
	fmt.Fprintf(&b, "from %s • %s • %s/%s\n\n", msg.Sender, msg.EffectivePriority, msg.Category, msg.Kind)
	b.WriteString(msg.Content)
	return b.String()
}

// Run starts the watch view on the terminal and blocks until the user quits
// or ctx is cancelled
func Run(ctx context.Context, agentID string, source Source, interval time.Duration) error {
	p := tea.NewProgram(New(ctx, agentID, source, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
