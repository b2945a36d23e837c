package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/id"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/mailbox"
	"github.com/aki/agentpost/internal/core/terminal"
)

// ShortID abbreviates a message ID for listings. Any unique prefix is
// accepted back by the inbox commands.
func ShortID(full string) string {
	return id.Short(full)
}

// PrintMessageList prints an agent's messages as a table
func PrintMessageList(agentID string, msgs []inbox.ManagedMessage) {
	if len(msgs) == 0 {
		Info("No messages for %s", agentID)
		return
	}

	PrintSectionHeader(InboxIcon, "Inbox "+agentID, len(msgs))
	OutputLine("")

	subjectWidth := 40
	if width, _ := terminal.GetSize(); width > 100 {
		subjectWidth = width - 70
	}

	tbl := NewTable("ID", "PRIORITY", "STATE", "FROM", "SUBJECT", "RECEIVED")
	for _, m := range msgs {
		subject := terminal.Truncate(m.Subject, subjectWidth)
		if m.IsUnread() {
			subject = UnreadStyle.Render("● " + subject)
		}
		priority := m.EffectivePriority.String()
		tbl.AddRow(
			ShortID(m.ID),
			PriorityStyle(priority).Render(priority),
			string(m.State),
			m.Sender,
			subject,
			FormatTime(m.ReceivedAt),
		)
	}
	tbl.Print()
}

// PrintMessage prints a single message in full
func PrintMessage(m inbox.ManagedMessage) {
	OutputLine("%s %s", InboxIcon, BoldStyle.Render(m.Subject))
	OutputLine("")
	PrintKeyValue("ID", m.ID)
	PrintKeyValue("From", m.Sender)
	PrintKeyValue("To", m.Recipient)
	PrintKeyValue("Type", m.Type)
	priority := m.EffectivePriority.String()
	if m.EffectivePriority != m.Priority {
		priority = fmt.Sprintf("%s (sent as %s)", priority, m.Priority)
	}
	PrintKeyValue("Priority", PriorityStyle(m.EffectivePriority.String()).Render(priority))
	PrintKeyValue("State", m.State)
	PrintKeyValue("Category", fmt.Sprintf("%s / %s", m.Category, m.Kind))
	PrintKeyValue("Received", FormatTime(m.ReceivedAt))
	if m.ReadAt != nil {
		PrintKeyValue("Read", FormatTime(*m.ReadAt))
	}
	if !m.ExpiresAt.IsZero() {
		PrintKeyValue("Expires", m.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	if m.Metrics.EscalationCount > 0 {
		PrintKeyValue("Escalations", m.Metrics.EscalationCount)
	}
	if m.Metrics.ReminderCount > 0 {
		PrintKeyValue("Reminders", m.Metrics.ReminderCount)
	}
	OutputLine("")
	for _, line := range strings.Split(strings.TrimRight(m.Content, "\n"), "\n") {
		OutputLine("  %s", line)
	}
}

// PrintAgentList prints agents with their unread counts
func PrintAgentList(agents []agent.Agent, stats map[string]inbox.Stats) {
	if len(agents) == 0 {
		Info("No agents registered")
		return
	}

	PrintSectionHeader(AgentIcon, "Agents", len(agents))
	OutputLine("")

	tbl := NewTable("ID", "NAME", "SESSION", "ROLE", "MESSAGES", "UNREAD")
	for _, a := range agents {
		s := stats[a.ID]
		role := a.Role
		if role == "" {
			role = "-"
		}
		tbl.AddRow(a.ID, a.DisplayName(), a.SessionName(), role, s.Total, s.Unread)
	}
	tbl.Print()
}

// PrintStats prints the statistics of one inbox
func PrintStats(s inbox.Stats) {
	OutputLine("%s Inbox statistics for %s", StatsIcon, BoldStyle.Render(s.AgentID))
	OutputLine("")
	PrintKeyValue("Total", s.Total)
	PrintKeyValue("Unread", s.Unread)
	PrintKeyValue("Last check", FormatTime(s.LastChecked))
	printCounts("By state", s.ByState)
	printCounts("By category", s.ByCategory)
	printCounts("By priority", s.ByPriority)
}

// PrintGlobalStats prints statistics across all inboxes
func PrintGlobalStats(g mailbox.GlobalStats) {
	OutputLine("%s Mailbox statistics", StatsIcon)
	OutputLine("")
	PrintKeyValue("Agents", g.Agents)
	PrintKeyValue("Messages", g.TotalMessages)
	PrintKeyValue("Unread", g.TotalUnread)
	if g.NotifyFailures > 0 {
		PrintKeyValue("Notify fail", WarningStyle.Render(fmt.Sprint(g.NotifyFailures)))
	}
	if len(g.PerAgent) == 0 {
		return
	}

	ids := make([]string, 0, len(g.PerAgent))
	for id := range g.PerAgent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	OutputLine("")
	tbl := NewTable("AGENT", "MESSAGES", "UNREAD", "LAST CHECK")
	for _, id := range ids {
		s := g.PerAgent[id]
		tbl.AddRow(id, s.Total, s.Unread, FormatTime(s.LastChecked))
	}
	tbl.Print()
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	PrintKeyValue(title, strings.Join(parts, " "))
}
