package stream

import (
	"strings"

	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/tui"
)

// DefaultMaxLines is how many non-blank assistant lines are echoed after each
// tool invocation before the rest is elided.
const DefaultMaxLines = 10

// ContinuingMarker replaces elided assistant lines.
const ContinuingMarker = "  ...continuing..."

// Parser incrementally consumes stream-json output. Feed it chunks with Parse
// in the order they were read and call Flush once at end of stream. A Parser
// is not safe for concurrent use; create one per iteration.
type Parser struct {
	style    tui.Style
	maxLines int
	onEvent  func(Event)

	pending  string // incomplete stream-json line
	textLine string // incomplete display line of assistant text
	text     strings.Builder

	toolNames map[string]string
	md        markdown
	lines     int
	truncated bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithColor enables ANSI styling in the rendered output.
func WithColor(enabled bool) Option {
	return func(p *Parser) { p.style = tui.NewStyle(enabled) }
}

// WithMaxLines sets the truncation threshold. Values below one are ignored.
func WithMaxLines(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxLines = n
		}
	}
}

// WithEventHandler registers fn to receive every event as it is parsed.
func WithEventHandler(fn func(Event)) Option {
	return func(p *Parser) { p.onEvent = fn }
}

// NewParser creates a Parser. Output is uncoloured unless WithColor is given.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		style:     tui.NewStyle(false),
		maxLines:  DefaultMaxLines,
		toolNames: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.md.style = p.style
	return p
}

// Parse consumes a chunk of raw output and returns the text to display for
// every line the chunk completed. Chunks may split lines, fields or runes.
func (p *Parser) Parse(chunk string) string {
	p.pending += chunk

	var out strings.Builder
	for {
		idx := strings.IndexByte(p.pending, '\n')
		if idx < 0 {
			break
		}
		line := p.pending[:idx]
		p.pending = p.pending[idx+1:]
		p.processLine(line, &out)
	}
	return out.String()
}

// Flush processes whatever is still buffered at end of stream.
func (p *Parser) Flush() string {
	var out strings.Builder
	if p.pending != "" {
		line := p.pending
		p.pending = ""
		p.processLine(line, &out)
	}
	p.flushText(&out)
	return out.String()
}

// AssistantText returns all assistant text seen so far, unabridged.
func (p *Parser) AssistantText() string {
	return p.text.String()
}

func (p *Parser) processLine(line string, out *strings.Builder) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	rec, err := DecodeRecord([]byte(line))
	if err != nil {
		logging.Debug("skipping undecodable stream line", "error", err)
		return
	}

	switch r := rec.(type) {
	case AssistantRecord:
		for _, b := range r.Blocks {
			switch blk := b.(type) {
			case TextBlock:
				p.handleText(blk.Text, out)
			case ToolUseBlock:
				p.handleToolUse(blk, out)
			}
		}
	case UserRecord:
		for _, res := range r.Results {
			p.handleToolResult(res, out)
		}
	case ResultRecord:
		p.flushText(out)
		out.WriteString(separator(p.style, r.Subtype))
		out.WriteString("\n\n")
		p.emit(SessionResult{Subtype: r.Subtype})
	case UnknownRecord:
		logging.Debug("ignoring stream record", "type", r.Type)
	}
}

func (p *Parser) handleText(text string, out *strings.Builder) {
	if text == "" {
		return
	}
	p.text.WriteString(text)
	p.emit(AssistantText{Text: text})

	combined := p.textLine + text
	parts := strings.Split(combined, "\n")
	p.textLine = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		p.writeDisplayLine(line, out)
	}
}

func (p *Parser) handleToolUse(blk ToolUseBlock, out *strings.Builder) {
	p.flushText(out)
	p.lines = 0
	p.truncated = false

	if blk.ID != "" {
		p.toolNames[blk.ID] = blk.Name
	}
	summary := InputSummary(blk.Name, blk.Input)

	out.WriteString("\n")
	out.WriteString(toolBanner(p.style, blk.Name, summary))
	out.WriteString("\n")
	p.emit(ToolInvocation{ID: blk.ID, Name: blk.Name, InputSummary: summary})
}

func (p *Parser) handleToolResult(res ToolResultBlock, out *strings.Builder) {
	p.flushText(out)

	name, ok := p.toolNames[res.ToolUseID]
	if !ok {
		name = unknownTool
	}
	summary := ResultSummary(name, res.Content, res.IsError)

	out.WriteString(resultLine(p.style, summary, res.IsError))
	out.WriteString("\n")
	p.emit(ToolResult{ToolUseID: res.ToolUseID, ToolName: name, Summary: summary, IsError: res.IsError})
}

// writeDisplayLine applies truncation and markdown formatting to one line.
// Formatting runs even for elided lines so code-fence state stays correct.
func (p *Parser) writeDisplayLine(line string, out *strings.Builder) {
	formatted := p.md.line(line)
	if p.truncated {
		return
	}
	if strings.TrimSpace(line) != "" {
		if p.lines >= p.maxLines {
			p.truncated = true
			out.WriteString(p.style.Dim(ContinuingMarker))
			out.WriteString("\n")
			return
		}
		p.lines++
	}
	out.WriteString(formatted)
	out.WriteString("\n")
}

func (p *Parser) flushText(out *strings.Builder) {
	if p.textLine == "" {
		return
	}
	line := p.textLine
	p.textLine = ""
	p.writeDisplayLine(line, out)
}

func (p *Parser) emit(ev Event) {
	if p.onEvent != nil {
		p.onEvent(ev)
	}
}
