// Package output provides styled terminal output helpers (success, error,
// warning, sync status formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Styles
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	conflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// Title renders bold text.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Subtle renders dimmed text.
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeConflict      = "conflict"
	ErrCodeSyncError     = "sync_error"
	ErrCodeDatabaseError = "database_error"
	ErrCodeUnauthorized  = "unauthorized"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	fmt.Printf(`{"error":{"code":"%s","message":"%s"}}`, code, message)
	fmt.Println()
}

// ConflictBadge renders the marker shown next to a conflicted mutation.
func ConflictBadge() string {
	return conflictStyle.Render("[conflict]")
}

// FormatConflictLine renders one parked conflict for the list view.
// e.g., "op-abc  plans/p-1  version_mismatch (server v3)"
func FormatConflictLine(opID, kind, entityID, reason string, serverVersion *int64) string {
	line := fmt.Sprintf("%s  %s/%s  %s", titleStyle.Render(shortOpID(opID)), kind, entityID, reason)
	if serverVersion != nil {
		line += subtleStyle.Render(fmt.Sprintf(" (server v%d)", *serverVersion))
	} else {
		line += subtleStyle.Render(" (no server record)")
	}
	return line
}

// FormatSyncLogLine renders one telemetry entry for the log tail view.
func FormatSyncLogLine(timestamp time.Time, direction, outcome, kind, entityID string) string {
	badge := outcome
	switch outcome {
	case "acked", "applied":
		badge = successStyle.Render(outcome)
	case "conflict":
		badge = conflictStyle.Render(outcome)
	case "failed", "error":
		badge = errorStyle.Render(outcome)
	}
	target := kind
	if entityID != "" {
		target = kind + "/" + entityID
	}
	return fmt.Sprintf("  [%s] %-4s %s  %s", timestamp.Format("15:04:05"), direction, badge, target)
}

// shortOpID shortens a UUID opId for display.
func shortOpID(opID string) string {
	if len(opID) > 8 {
		return opID[:8]
	}
	return opID
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nCONFLICTS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
