package agent

import (
	"context"
	"encoding/json"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter/usage"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventTextDelta      EventKind = "text-delta"
	EventToolCallStart  EventKind = "tool-call-start"
	EventToolCallResult EventKind = "tool-call-result"
	EventStepFinish     EventKind = "step-finish"
	EventFinish         EventKind = "finish"
	EventError          EventKind = "error"
)

// FinishReason explains why a step or run ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool-calls"
	FinishBudget    FinishReason = "step-budget"
)

// Error codes carried by EventError.
const (
	CodeTimeout    = "timeout"
	CodeModelError = "model_error"
	CodeInternal   = "internal"
)

// Event is one notification of run progress. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind EventKind `json:"type"`
	Step int       `json:"step,omitempty"`

	// text-delta
	Text string `json:"text,omitempty"`

	// tool-call-start, tool-call-result
	ToolCallID string                  `json:"toolCallId,omitempty"`
	ToolName   string                  `json:"toolName,omitempty"`
	Args       json.RawMessage         `json:"args,omitempty"`
	Result     json.RawMessage         `json:"result,omitempty"`
	State      content.InvocationState `json:"state,omitempty"`

	// step-finish, finish
	FinishReason FinishReason      `json:"finishReason,omitempty"`
	Usage        *usage.TokenCount `json:"usage,omitempty"`

	// error
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Incomplete bool   `json:"incomplete,omitempty"`
}

// ErrorEvent builds an EventError.
func ErrorEvent(code, msg string, incomplete bool) Event {
	return Event{Kind: EventError, Code: code, Message: msg, Incomplete: incomplete}
}

// Emitter receives events as the run produces them. Emit is called from the
// run goroutine, in order.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(ctx context.Context, e Event)

// Emit calls f(ctx, e).
func (f EmitterFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// rawArgs returns tool call arguments as raw JSON, quoting them as a string
// when the model produced something that is not JSON.
func rawArgs(args string) json.RawMessage {
	if args == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	b, _ := json.Marshal(args)
	return b
}
