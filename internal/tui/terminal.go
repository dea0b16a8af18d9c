// Package tui holds the small amount of terminal presentation ralph needs:
// ANSI styling that can be switched off for pipes and logs, TTY detection,
// and a few fixed-width rendering helpers for status output.
package tui

import (
	"os"

	"golang.org/x/term"
)

// ANSI escape sequences
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	FgRed     = "\033[31m"
	FgGreen   = "\033[32m"
	FgYellow  = "\033[33m"
	FgBlue    = "\033[34m"
	FgMagenta = "\033[35m"
	FgCyan    = "\033[36m"

	FgBrightBlack = "\033[90m"

	Bell = "\a"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// ColorEnabled reports whether output written to f should carry ANSI colour.
// NO_COLOR disables colour regardless of the terminal.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsTerminal(f)
}

// Width returns the column count of the terminal behind f, or fallback when
// f is not a terminal.
func Width(f *os.File, fallback int) int {
	if !IsTerminal(f) {
		return fallback
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// Style applies ANSI codes when enabled and passes text through unchanged
// otherwise.
type Style struct {
	enabled bool
}

// NewStyle returns a Style that emits escape codes only when enabled is true.
func NewStyle(enabled bool) Style {
	return Style{enabled: enabled}
}

// Enabled reports whether the style emits escape codes.
func (s Style) Enabled() bool {
	return s.enabled
}

// Wrap surrounds text with the given codes and a reset.
func (s Style) Wrap(text string, codes ...string) string {
	if !s.enabled || len(codes) == 0 {
		return text
	}
	prefix := ""
	for _, c := range codes {
		prefix += c
	}
	return prefix + text + Reset
}

func (s Style) Bold(text string) string   { return s.Wrap(text, Bold) }
func (s Style) Dim(text string) string    { return s.Wrap(text, Dim) }
func (s Style) Red(text string) string    { return s.Wrap(text, FgRed) }
func (s Style) Green(text string) string  { return s.Wrap(text, FgGreen) }
func (s Style) Yellow(text string) string { return s.Wrap(text, FgYellow) }
func (s Style) Cyan(text string) string   { return s.Wrap(text, FgCyan) }
