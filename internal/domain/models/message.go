package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Part type tags. The set is closed: size estimation and truncation handle
// every tag exhaustively and fail hard on anything else.
const (
	PartTypeText      = "text"
	PartTypeTool      = "tool-invocation"
	PartTypeFile      = "file"
	PartTypeReasoning = "reasoning"
	PartTypeSource    = "source"
	PartTypeStepStart = "step-start"
)

// Tool invocation states. A part still in flight (partial-call or call,
// i.e. no result yet) is skipped by the truncation budget scan.
const (
	ToolStatePartialCall = "partial-call"
	ToolStateCall        = "call"
	ToolStateResult      = "result"
)

// Message is the caller-defined message-list element fed to the context
// compactor and serialized into history blobs. Content holds the top-level
// free text; Parts the ordered sub-parts of the turn.
type Message struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Parts     []Part     `json:"parts"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Part is a closed tagged variant. Exactly the fields matching Type are
// populated; the rest stay zero.
type Part struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// file
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	// reasoning
	Reasoning string `json:"reasoning,omitempty"`

	// source
	Source *SourceRef `json:"source,omitempty"`

	// tool-invocation
	ToolInvocation *ToolInvocation `json:"tool_invocation,omitempty"`
}

// SourceRef is a cited source attached to an assistant message.
type SourceRef struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ToolInvocation is a tool call and, once State is "result", its result.
// Args and Result are kept raw: the compactor only needs their byte size
// and a handful of tools' path argument.
type ToolInvocation struct {
	ToolName string          `json:"tool_name"`
	State    string          `json:"state"`
	Args     json.RawMessage `json:"args,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// PartID returns a stable identity for the index-th part of a message,
// used as a memoization key (parts themselves carry no id).
func PartID(messageID string, index int) string {
	return messageID + ":" + strconv.Itoa(index)
}
