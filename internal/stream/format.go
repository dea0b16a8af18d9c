package stream

import (
	"regexp"
	"strings"

	"github.com/thruflo/ralph/internal/tui"
)

var (
	numberedPattern   = regexp.MustCompile(`^(\d+)\. (.*)$`)
	inlineCodePattern = regexp.MustCompile("`([^`]+)`")
)

const separatorWidth = 40

// markdown renders assistant text one display line at a time. It carries the
// fenced-code state between lines.
type markdown struct {
	style  tui.Style
	inCode bool
}

// line formats one display line without its trailing newline.
func (m *markdown) line(s string) string {
	st := m.style

	if strings.HasPrefix(s, "```") {
		m.inCode = !m.inCode
		if m.inCode {
			open := tui.BoxTopLeft + tui.Rule(tui.BoxHorizontal, 2)
			if lang := strings.TrimSpace(s[3:]); lang != "" {
				open += " " + lang
			}
			return st.Dim(open)
		}
		return st.Dim(tui.BoxBottomLeft + tui.Rule(tui.BoxHorizontal, 2))
	}

	if m.inCode {
		return st.Dim(tui.BoxVertical) + " " + st.Cyan(s)
	}

	switch {
	case strings.HasPrefix(s, "### "):
		return st.Wrap(s[4:], tui.Bold, tui.FgBlue)
	case strings.HasPrefix(s, "## "):
		return st.Wrap(s[3:], tui.Bold, tui.FgMagenta)
	case strings.HasPrefix(s, "# "):
		return st.Wrap(s[2:], tui.Bold, tui.FgGreen)
	case strings.HasPrefix(s, "- "), strings.HasPrefix(s, "* "):
		return st.Yellow(tui.BulletMarker) + " " + m.inline(s[2:])
	}

	if sub := numberedPattern.FindStringSubmatch(s); sub != nil {
		return st.Yellow(sub[1]+".") + " " + m.inline(sub[2])
	}

	return m.inline(s)
}

func (m *markdown) inline(s string) string {
	if !m.style.Enabled() {
		return s
	}
	return inlineCodePattern.ReplaceAllString(s, tui.FgCyan+"$1"+tui.Reset)
}

func toolBanner(st tui.Style, name, summary string) string {
	head := st.Yellow(tui.ToolMarker) + " " + st.Bold(name)
	if summary != "" {
		head += st.Dim("(" + summary + ")")
	}
	return head
}

func resultLine(st tui.Style, summary string, isError bool) string {
	if isError {
		return "  " + st.Dim(tui.ResultMarker) + " " + st.Red(summary)
	}
	return "  " + st.Dim(tui.ResultMarker+" "+summary)
}

func separator(st tui.Style, subtype string) string {
	if subtype == "success" {
		return st.Dim(tui.Rule(tui.BoxHorizontal, separatorWidth))
	}
	return st.Dim("─── " + subtype + " ───")
}
