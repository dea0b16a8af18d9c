package tui

import (
	"strings"
	"unicode/utf8"
)

// Box drawing characters (Unicode)
const (
	BoxTopLeft     = "┌"
	BoxBottomLeft  = "└"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
	BoxDouble      = "═"
	ToolMarker     = "⏺"
	ResultMarker   = "⎿"
	BulletMarker   = "•"
	CheckMarker    = "✓"
	CrossMarker    = "✗"
	WarningMarker  = "⚠"
	PendingMarker  = "○"
	ProgressMarker = "●"
)

// Rule returns a horizontal line of width repetitions of ch.
func Rule(ch string, width int) string {
	if width <= 0 {
		return ""
	}
	return strings.Repeat(ch, width)
}

// Header renders a title between two double rules of the given width.
func Header(title string, width int) []string {
	rule := Rule(BoxDouble, width)
	return []string{rule, title, rule}
}

// PadOrTruncate pads or truncates a string to exactly width characters.
// Uses visual width (rune count) for proper Unicode handling.
func PadOrTruncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	runeLen := utf8.RuneCountInString(s)
	if runeLen == width {
		return s
	}
	if runeLen < width {
		return s + strings.Repeat(" ", width-runeLen)
	}
	return Truncate(s, width)
}

// Truncate truncates a string to max width, adding ellipsis if needed.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= width {
		return s
	}

	if width >= 3 {
		return string(runes[:width-3]) + "..."
	}
	return string(runes[:width])
}

// StatusIcon returns a marker for a run or task status string.
func StatusIcon(status string) string {
	switch status {
	case "completed", "done":
		return CheckMarker
	case "error", "cancelled":
		return CrossMarker
	case "stuck", "max_iterations_reached":
		return WarningMarker
	case "running":
		return ProgressMarker
	default:
		return PendingMarker
	}
}

// StatusColor returns the ANSI code used for a status string.
func StatusColor(status string) string {
	switch status {
	case "completed", "done":
		return FgGreen
	case "error", "cancelled":
		return FgRed
	case "stuck", "max_iterations_reached":
		return FgYellow
	case "running":
		return FgCyan
	default:
		return FgBrightBlack
	}
}
