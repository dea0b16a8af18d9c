// Package stream parses the agent's newline-delimited stream-json output.
//
// Each line is decoded into one Record variant. A Parser turns records into
// Events for callers and into styled display text for the console, while
// accumulating the assistant's plain text so the runner can scan it for
// completion and stuck markers.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RecordType identifies the type of a stream-json record.
type RecordType string

const (
	RecordTypeSystem    RecordType = "system"
	RecordTypeAssistant RecordType = "assistant"
	RecordTypeUser      RecordType = "user"
	RecordTypeResult    RecordType = "result"
)

// ContentType identifies the type of a content block.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Record is one decoded stream-json line. The set of implementations is
// closed: AssistantRecord, UserRecord, ResultRecord and UnknownRecord.
type Record interface {
	record()
}

// AssistantRecord carries assistant text and tool invocations.
type AssistantRecord struct {
	Blocks []Block
}

// UserRecord carries tool results fed back to the assistant.
type UserRecord struct {
	Results []ToolResultBlock
}

// ResultRecord marks the end of an agent session.
type ResultRecord struct {
	Subtype string
	IsError bool
}

// UnknownRecord is any record whose type ralph does not interpret.
type UnknownRecord struct {
	Type string
}

func (AssistantRecord) record() {}
func (UserRecord) record()      {}
func (ResultRecord) record()    {}
func (UnknownRecord) record()   {}

// Block is one assistant content block: TextBlock, ToolUseBlock or UnknownBlock.
type Block interface {
	block()
}

// TextBlock is assistant prose.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a tool invocation by the assistant.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// UnknownBlock is a content block of an uninterpreted type, such as thinking.
type UnknownBlock struct {
	Type string
}

func (TextBlock) block()    {}
func (ToolUseBlock) block() {}
func (UnknownBlock) block() {}

// ToolResultBlock is the output of one tool invocation.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

type wireRecord struct {
	Type    RecordType   `json:"type"`
	Subtype string       `json:"subtype,omitempty"`
	IsError bool         `json:"is_error,omitempty"`
	Message *wireMessage `json:"message,omitempty"`
}

type wireMessage struct {
	Content json.RawMessage `json:"content"`
}

type wireBlock struct {
	Type      ContentType     `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// DecodeRecord decodes one stream-json line. It returns an error only when the
// line is not a JSON object; well-formed records of unknown shape decode to
// UnknownRecord.
func DecodeRecord(line []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("failed to decode stream record: %w", err)
	}

	switch w.Type {
	case RecordTypeAssistant:
		blocks := decodeBlocks(w.Message)
		rec := AssistantRecord{Blocks: make([]Block, 0, len(blocks))}
		for _, b := range blocks {
			switch b.Type {
			case ContentTypeText:
				rec.Blocks = append(rec.Blocks, TextBlock{Text: b.Text})
			case ContentTypeToolUse:
				var input map[string]interface{}
				if len(b.Input) > 0 {
					_ = json.Unmarshal(b.Input, &input)
				}
				rec.Blocks = append(rec.Blocks, ToolUseBlock{ID: b.ID, Name: b.Name, Input: input})
			default:
				rec.Blocks = append(rec.Blocks, UnknownBlock{Type: string(b.Type)})
			}
		}
		return rec, nil

	case RecordTypeUser:
		var rec UserRecord
		for _, b := range decodeBlocks(w.Message) {
			if b.Type != ContentTypeToolResult {
				continue
			}
			rec.Results = append(rec.Results, ToolResultBlock{
				ToolUseID: b.ToolUseID,
				Content:   resultText(b.Content),
				IsError:   b.IsError,
			})
		}
		return rec, nil

	case RecordTypeResult:
		return ResultRecord{Subtype: w.Subtype, IsError: w.IsError}, nil
	}

	return UnknownRecord{Type: string(w.Type)}, nil
}

// decodeBlocks reads a message content array. String content, as in echoed
// user prompts, has no blocks.
func decodeBlocks(msg *wireMessage) []wireBlock {
	if msg == nil || len(msg.Content) == 0 {
		return nil
	}
	var blocks []wireBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil
	}
	return blocks
}

// resultText flattens tool_result content, which is either a string or an
// array of text blocks.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []wireBlock
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == ContentTypeText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
