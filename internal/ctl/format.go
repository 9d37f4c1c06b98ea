// Package ctl implements the client-side commands for lensctl.
// It talks to a running lensd over HTTP and WebSocket and renders the results to the terminal.
package ctl

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

// colorEnabled reports whether stdout is a terminal. When output is piped
// or redirected, ANSI escape codes are suppressed.
func colorEnabled() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// statusColor picks a color for a status line by its leading words.
func statusColor(status string) string {
	if !colorEnabled() {
		return ""
	}
	switch {
	case strings.HasPrefix(status, "Camera Error"),
		strings.HasPrefix(status, "Capture failed"),
		strings.HasPrefix(status, "Analysis failed"),
		strings.HasSuffix(status, "not available.") || strings.HasSuffix(status, "not available for LLM."):
		return red
	case strings.HasPrefix(status, "Launch camera"), strings.HasPrefix(status, "Analysis timed out"):
		return yellow
	case strings.HasPrefix(status, "Captured"), strings.HasPrefix(status, "Reviewing"):
		return blue
	case strings.HasPrefix(status, "Facing:"):
		return cyan
	case strings.HasPrefix(status, "Analysis"), strings.HasPrefix(status, "LLM Text"):
		return green
	case status == "Not Active", status == "Camera stopped.":
		return dim
	default:
		return white
	}
}

// colorize wraps text with an ANSI color sequence.
// Returns the text unchanged when color output is disabled.
func colorize(color, text string) string {
	if !colorEnabled() || color == "" {
		return text
	}
	return color + text + reset
}

// header returns a bold section header, or plain text when color is off.
func header(title string) string {
	if colorEnabled() {
		return bold + title + reset
	}
	return title
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration renders a time.Duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatBytes renders a byte count as a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// onOff renders a boolean as a colored yes/no.
func onOff(v bool) string {
	if v {
		return colorize(green, "yes")
	}
	return colorize(dim, "no")
}
