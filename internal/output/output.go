// Package output provides styled terminal output helpers (success, error,
// warning, status formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lanehq/possync/internal/entity"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tierStyles   = map[entity.Tier]lipgloss.Style{
		entity.TierHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		entity.TierMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		entity.TierLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
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
	ErrCodeOffline       = "offline"
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeDatabaseError = "database_error"
	ErrCodeSyncFailed    = "sync_failed"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	fmt.Printf(`{"error":{"code":"%s","message":"%s"}}`, code, message)
	fmt.Println()
}

// FormatTier formats a priority tier with color
func FormatTier(t entity.Tier) string {
	style, ok := tierStyles[t]
	if !ok {
		return t.String()
	}
	return style.Render(fmt.Sprintf("[%s]", t))
}

// ConnectivityBadge returns a styled online/offline indicator
func ConnectivityBadge(online bool) string {
	if online {
		return successStyle.Render("● online")
	}
	return errorStyle.Render("○ offline")
}

// FormatWatermark renders a watermark time, or "never" for the zero value
func FormatWatermark(t time.Time) string {
	if t.IsZero() {
		return subtleStyle.Render("never")
	}
	return FormatTimeAgo(t)
}

// EntityStatusLine formats one row of the status table:
// entity name, tier, last-synced watermark, dirty count.
func EntityStatusLine(id entity.ID, tier entity.Tier, watermark time.Time, dirty int64) string {
	parts := []string{
		titleStyle.Render(fmt.Sprintf("%-18s", string(id))),
		FormatTier(tier),
		fmt.Sprintf("synced %s", FormatWatermark(watermark)),
	}
	if dirty > 0 {
		parts = append(parts, warningStyle.Render(fmt.Sprintf("%d pending", dirty)))
	}
	return strings.Join(parts, "  ")
}

// QueueLine formats the pending queue for the status display
func QueueLine(pending []entity.ID) string {
	if len(pending) == 0 {
		return subtleStyle.Render("queue empty")
	}
	names := make([]string, len(pending))
	for i, id := range pending {
		names[i] = string(id)
	}
	return fmt.Sprintf("queued: %s", strings.Join(names, ", "))
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
// e.g., "\nENTITIES:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentLines indents each line by the specified number of spaces
func IndentLines(lines []string, spaces int) []string {
	indent := strings.Repeat(" ", spaces)
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = indent + line
	}
	return result
}
