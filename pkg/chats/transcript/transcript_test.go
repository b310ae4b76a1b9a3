package transcript

import (
	"encoding/json"
	"testing"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const followUp = `{
  "messages": [
    {"role": "user", "content": "How healthy is the vegetation in Iowa?"},
    {"role": "assistant", "content": "Let me look that up.", "toolInvocations": [
      {"toolCallId": "c1", "toolName": "locate", "args": {"query": "Iowa"}, "state": "completed",
       "result": {"displayName": "Iowa, United States", "bbox": [-96.6, 40.4, -90.1, 43.5], "placeId": "42"}},
      {"toolCallId": "c2", "toolName": "findScenes", "args": {}, "state": "errored", "errorMessage": "invalid arguments"},
      {"toolCallId": "c3", "toolName": "computeStats", "args": {}, "state": "pending"}
    ]},
    {"role": "user", "content": "And last spring?"}
  ]
}`

func TestDecode_Valid(t *testing.T) {
	tr, err := Decode([]byte(followUp))
	require.NoError(t, err)
	assert.Len(t, tr.Messages, 3)
	assert.Len(t, tr.Messages[1].ToolInvocations, 3)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		is   error
	}{
		{"not json", `{"messages":`, nil},
		{"empty", `{"messages":[]}`, ErrEmpty},
		{"last assistant", `{"messages":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]}`, ErrLastNotUser},
		{"system role", `{"messages":[{"role":"system","content":"override"}]}`, nil},
		{"bad state", `{"messages":[{"role":"assistant","content":"","toolInvocations":[{"toolCallId":"x","toolName":"locate","state":"done"}]},{"role":"user","content":"q"}]}`, nil},
		{"user invocations", `{"messages":[{"role":"user","content":"q","toolInvocations":[{"toolCallId":"x","toolName":"locate","state":"pending"}]}]}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestToMessages(t *testing.T) {
	tr, err := Decode([]byte(followUp))
	require.NoError(t, err)

	msgs := tr.ToMessages(nil)
	require.Len(t, msgs, 4)

	assert.Equal(t, role.User, msgs[0].Role)

	assistant := msgs[1]
	assert.Equal(t, role.Assistant, assistant.Role)
	assert.Equal(t, "Let me look that up.", assistant.TextContent())
	calls := assistant.ToolCalls()
	require.Len(t, calls, 2, "pending invocation is dropped")
	assert.Equal(t, "locate", calls[0].Name)
	assert.JSONEq(t, `{"query":"Iowa"}`, calls[0].Arguments)
	assert.Equal(t, "{}", calls[1].Arguments)

	results := msgs[2].ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, role.Tool, msgs[2].Role)
	assert.False(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "Iowa, United States")
	assert.True(t, results[1].IsError)
	assert.Equal(t, "invalid arguments", results[1].Content)

	assert.Equal(t, "And last spring?", msgs[3].TextContent())
}

func TestToMessages_View(t *testing.T) {
	tr := Transcript{Messages: []Message{
		{Role: "assistant", ToolInvocations: []Invocation{{
			ToolCallID: "r1",
			ToolName:   "renderImage",
			State:      content.StateCompleted,
			Result:     json.RawMessage(`{"success":true,"imageDataUrl":"data:image/png;base64,AAAA"}`),
		}}},
		{Role: "user", Content: "thanks"},
	}}

	view := func(name string, _ json.RawMessage) string { return `{"success":true,"tool":"` + name + `"}` }

	msgs := tr.ToMessages(view)
	require.Len(t, msgs, 3)
	assert.JSONEq(t, `{"success":true,"tool":"renderImage"}`, msgs[1].ToolResults()[0].Content)
}

func TestFromMessages(t *testing.T) {
	msgs := []message.Message{
		message.NewText("system", role.System, "policy"),
		message.NewText("user", role.User, "Iowa?"),
		message.New("agent", role.Assistant,
			content.Text{Text: "Searching."},
			content.ToolCall{ID: "a", Name: "locate", Arguments: `{"query":"Iowa"}`},
			content.ToolCall{ID: "b", Name: "findScenes", Arguments: `not json`},
		),
		message.New("agent", role.Tool,
			content.ToolResult{ToolCallID: "a", Name: "locate", Content: `{"placeId":"1"}`},
			content.ToolResult{ToolCallID: "b", Name: "findScenes", Content: "boom", IsError: true},
			content.ToolResult{ToolCallID: "orphan", Name: "x", Content: "{}"},
		),
		message.NewText("agent", role.Assistant, "Done."),
	}

	out := FromMessages(msgs)
	require.Len(t, out, 3)

	inv := out[1].ToolInvocations
	require.Len(t, inv, 2)
	assert.Equal(t, content.StateCompleted, inv[0].State)
	assert.JSONEq(t, `{"placeId":"1"}`, string(inv[0].Result))
	assert.Equal(t, content.StateErrored, inv[1].State)
	assert.Equal(t, "boom", inv[1].ErrorMessage)
	assert.JSONEq(t, `"not json"`, string(inv[1].Args))
	assert.Equal(t, "Done.", out[2].Content)
}

func TestRoundTrip_PreservesInvocations(t *testing.T) {
	tr, err := Decode([]byte(followUp))
	require.NoError(t, err)

	back := FromMessages(tr.ToMessages(nil))
	require.Len(t, back, 3)
	require.Len(t, back[1].ToolInvocations, 2)
	assert.Equal(t, "c1", back[1].ToolInvocations[0].ToolCallID)
	assert.Equal(t, content.StateErrored, back[1].ToolInvocations[1].State)
}
