package stream

// Event is a semantic step in an agent session, produced by a Parser in the
// order the agent wrote it. Implementations: AssistantText, ToolInvocation,
// ToolResult and SessionResult.
type Event interface {
	event()
}

// AssistantText is a chunk of assistant prose.
type AssistantText struct {
	Text string
}

// ToolInvocation is the agent calling a tool.
type ToolInvocation struct {
	ID           string
	Name         string
	InputSummary string
}

// ToolResult is a tool's output, associated back to its invocation.
type ToolResult struct {
	ToolUseID string
	ToolName  string
	Summary   string
	IsError   bool
}

// SessionResult is the terminal record of a session.
type SessionResult struct {
	Subtype string
}

func (AssistantText) event()  {}
func (ToolInvocation) event() {}
func (ToolResult) event()     {}
func (SessionResult) event()  {}
