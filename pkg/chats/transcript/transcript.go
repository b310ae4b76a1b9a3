// Package transcript converts the caller-facing conversation transcript to and
// from the chat model used by the agent.
//
// A transcript is the JSON body clients post to the chat endpoints:
//
//	{"messages":[{"role":"user","content":"How green is Iowa?"}]}
//
// Assistant messages may carry tool invocations recorded by earlier turns.
// Completed and errored invocations are replayed to the model as a tool call
// followed by its result. Pending invocations never finished and are dropped.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
)

var (
	// ErrEmpty is returned when a transcript has no messages.
	ErrEmpty = errors.New("transcript: no messages")
	// ErrLastNotUser is returned when the final message is not from the user.
	ErrLastNotUser = errors.New("transcript: last message must be from the user")
)

// Transcript is the wire form of a conversation.
type Transcript struct {
	Messages []Message `json:"messages"`
}

// Message is one wire message.
type Message struct {
	Role            string       `json:"role"`
	Content         string       `json:"content"`
	ToolInvocations []Invocation `json:"toolInvocations,omitempty"`
}

// Invocation records one tool call made by the assistant and its outcome.
type Invocation struct {
	ToolCallID   string                  `json:"toolCallId"`
	ToolName     string                  `json:"toolName"`
	Args         json.RawMessage         `json:"args,omitempty"`
	State        content.InvocationState `json:"state"`
	Result       json.RawMessage         `json:"result,omitempty"`
	ErrorMessage string                  `json:"errorMessage,omitempty"`
}

// Decode parses and validates a transcript body.
func Decode(data []byte) (Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return Transcript{}, fmt.Errorf("transcript: decode: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Transcript{}, err
	}
	return t, nil
}

// Validate checks roles, invocation states and that the conversation ends
// with a user message.
func (t Transcript) Validate() error {
	if len(t.Messages) == 0 {
		return ErrEmpty
	}

	for i, m := range t.Messages {
		r, err := role.Parse(m.Role)
		if err != nil {
			return fmt.Errorf("transcript: message %d: %w", i, err)
		}
		if r == role.User && len(m.ToolInvocations) > 0 {
			return fmt.Errorf("transcript: message %d: user messages cannot carry tool invocations", i)
		}
		for j, inv := range m.ToolInvocations {
			if inv.ToolName == "" {
				return fmt.Errorf("transcript: message %d invocation %d: missing toolName", i, j)
			}
			switch inv.State {
			case content.StatePending, content.StateCompleted, content.StateErrored:
			default:
				return fmt.Errorf("transcript: message %d invocation %d: unknown state %q", i, j, inv.State)
			}
		}
	}

	if t.Messages[len(t.Messages)-1].Role != string(role.User) {
		return ErrLastNotUser
	}

	return nil
}

// ResultView rewrites a recorded tool result into the text the model sees.
// It lets callers strip bulky fields (inline images) before replay.
type ResultView func(toolName string, result json.RawMessage) string

// ToMessages converts the transcript into chat messages. The transcript is
// assumed valid. A nil view replays results verbatim.
func (t Transcript) ToMessages(view ResultView) []message.Message {
	out := make([]message.Message, 0, len(t.Messages))

	for _, m := range t.Messages {
		r := role.Role(m.Role)
		if r == role.User {
			out = append(out, message.NewText("user", role.User, m.Content))
			continue
		}

		var calls []content.Part
		var results []content.Part
		for _, inv := range m.ToolInvocations {
			if inv.State == content.StatePending {
				continue
			}
			calls = append(calls, content.ToolCall{
				ID:        inv.ToolCallID,
				Name:      inv.ToolName,
				Arguments: argsString(inv.Args),
			})
			results = append(results, invocationResult(inv, view))
		}

		parts := make([]content.Part, 0, len(calls)+1)
		if m.Content != "" {
			parts = append(parts, content.Text{Text: m.Content})
		}
		parts = append(parts, calls...)
		if len(parts) > 0 {
			out = append(out, message.New("assistant", role.Assistant, parts...))
		}
		if len(results) > 0 {
			out = append(out, message.New("assistant", role.Tool, results...))
		}
	}

	return out
}

// FromMessages folds chat messages back into wire messages. Tool results are
// attached to the invocation on the preceding assistant message with the same
// call id. System messages are skipped.
func FromMessages(msgs []message.Message) []Message {
	var out []Message
	index := map[string][2]int{}

	for _, m := range msgs {
		switch m.Role {
		case role.User:
			out = append(out, Message{Role: string(role.User), Content: m.TextContent()})

		case role.Assistant:
			wm := Message{Role: string(role.Assistant), Content: m.TextContent()}
			for _, tc := range m.ToolCalls() {
				index[tc.ID] = [2]int{len(out), len(wm.ToolInvocations)}
				wm.ToolInvocations = append(wm.ToolInvocations, Invocation{
					ToolCallID: tc.ID,
					ToolName:   tc.Name,
					Args:       rawArgs(tc.Arguments),
					State:      content.StatePending,
				})
			}
			out = append(out, wm)

		case role.Tool:
			for _, tr := range m.ToolResults() {
				pos, ok := index[tr.ToolCallID]
				if !ok {
					continue
				}
				inv := &out[pos[0]].ToolInvocations[pos[1]]
				inv.State = tr.State()
				if tr.IsError {
					inv.ErrorMessage = tr.Content
				} else {
					inv.Result = tr.Full()
				}
			}
		}
	}

	return out
}

func invocationResult(inv Invocation, view ResultView) content.ToolResult {
	tr := content.ToolResult{
		ToolCallID: inv.ToolCallID,
		Name:       inv.ToolName,
	}

	if inv.State == content.StateErrored {
		tr.IsError = true
		tr.Content = inv.ErrorMessage
		if tr.Content == "" {
			tr.Content = "tool failed"
		}
		return tr
	}

	tr.Content = strings.TrimSpace(string(inv.Result))
	if view != nil && tr.Content != "" {
		tr.Content = view(inv.ToolName, inv.Result)
	}
	if tr.Content == "" {
		tr.Content = "{}"
	}
	return tr
}

func argsString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "{}"
	}
	return s
}

func rawArgs(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}
