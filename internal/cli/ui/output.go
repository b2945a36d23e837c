package ui

import (
	"fmt"
	"io"
	"os"
	"time"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects regular and error output and returns a function that
// restores the previous writers
func SetOutput(out, errOut io.Writer) (restore func()) {
	prevOut, prevErr := stdout, stderr
	stdout, stderr = out, errOut
	return func() {
		stdout, stderr = prevOut, prevErr
	}
}

// Writer returns the writer regular output goes to
func Writer() io.Writer {
	return stdout
}

func Error(format string, args ...any) {
	fmt.Fprintf(stderr, "%s %s\n", ErrorIcon, ErrorStyle.Render(fmt.Sprintf(format, args...)))
}

func Success(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", SuccessIcon, SuccessStyle.Render(fmt.Sprintf(format, args...)))
}

func Info(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", InfoIcon, InfoStyle.Render(fmt.Sprintf(format, args...)))
}

func Warning(format string, args ...any) {
	fmt.Fprintf(stderr, "%s %s\n", WarningIcon, WarningStyle.Render(fmt.Sprintf(format, args...)))
}

// OutputLine prints one line of plain output
func OutputLine(format string, args ...any) {
	fmt.Fprintf(stdout, format+"\n", args...)
}

// PrintKeyValue prints an aligned, dimmed key followed by its value
func PrintKeyValue(key string, value any) {
	fmt.Fprintf(stdout, "  %s %v\n", DimStyle.Render(fmt.Sprintf("%-12s", key+":")), value)
}

// FormatDuration formats a duration into a compact human-readable string
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "< 1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// FormatTime formats a time relative to now
func FormatTime(t time.Time) string {
	return formatTimeAt(t, time.Now())
}

func formatTimeAt(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		if minutes := int(diff.Minutes()); minutes != 1 {
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		return "1 minute ago"
	case diff < 24*time.Hour:
		if hours := int(diff.Hours()); hours != 1 {
			return fmt.Sprintf("%d hours ago", hours)
		}
		return "1 hour ago"
	case diff < 7*24*time.Hour:
		if days := int(diff.Hours() / 24); days != 1 {
			return fmt.Sprintf("%d days ago", days)
		}
		return "1 day ago"
	default:
		return t.Format("2006-01-02 15:04")
	}
}
