// Package content defines the content parts that make up a message.
package content

import "encoding/json"

// Part is a piece of content within a message.
type Part interface {
	PartKind() string
}

// Text is a plain text content part.
type Text struct {
	Text string
}

func (t Text) PartKind() string { return "text" }

// Image is an image content part, referenced by URL (including data URLs) or
// embedded as raw bytes.
type Image struct {
	URL       string
	Data      []byte
	MediaType string
}

func (i Image) PartKind() string { return "image" }

// ToolCall represents an assistant's request to invoke a tool.
// Arguments holds the raw JSON object exactly as the model produced it.
// Metadata carries provider-specific opaque data that must survive
// round-trips through the conversation history.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Metadata  map[string]string
}

func (tc ToolCall) PartKind() string { return "tool_call" }

// InvocationState is the lifecycle state of a tool invocation.
type InvocationState string

const (
	StatePending   InvocationState = "pending"
	StateCompleted InvocationState = "completed"
	StateErrored   InvocationState = "errored"
)

// ToolResult holds the output of a tool invocation.
//
// Content is what the model sees. Payload, when set, is the full structured
// result delivered to the caller; it may carry data (such as an inline image)
// that would be wasteful to feed back to the model.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	Payload    json.RawMessage
	IsError    bool
}

func (tr ToolResult) PartKind() string { return "tool_result" }

// State reports completed or errored.
func (tr ToolResult) State() InvocationState {
	if tr.IsError {
		return StateErrored
	}
	return StateCompleted
}

// Full returns Payload when present, otherwise Content as raw JSON if it is
// valid JSON, otherwise Content encoded as a JSON string.
func (tr ToolResult) Full() json.RawMessage {
	if len(tr.Payload) > 0 {
		return tr.Payload
	}
	if json.Valid([]byte(tr.Content)) {
		return json.RawMessage(tr.Content)
	}
	b, _ := json.Marshal(tr.Content)
	return b
}
