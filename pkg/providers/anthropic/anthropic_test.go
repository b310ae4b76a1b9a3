package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/chat"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter"
	"github.com/Berektassuly/terra-vision-ai/pkg/providers/anthropic"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *anthropic.Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return anthropic.New(modeladapter.Config{
		Name:    "claude-test",
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	return req
}

var locateTool = toolbox.Tool{
	Name:        "locate",
	Description: "Resolve a place name.",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
}

func conversation() *chat.Chat {
	return chat.New(
		message.NewText("system", role.System, "You analyse vegetation."),
		message.NewText("user", role.User, "How green is Iowa?"),
		message.New("claude-test", role.Assistant,
			content.Text{Text: "Locating."},
			content.ToolCall{ID: "toolu_1", Name: "locate", Arguments: `{"query":"Iowa"}`},
		),
		message.New("claude-test", role.Tool,
			content.ToolResult{ToolCallID: "toolu_1", Name: "locate", Content: `{"placeId":"1"}`},
		),
	)
}

func TestComplete(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		req := readBody(t, r)
		assert.Equal(t, "claude-test", req["model"])
		assert.EqualValues(t, 4096, req["max_tokens"])

		system, ok := req["system"].([]any)
		require.True(t, ok)
		assert.Equal(t, "You analyse vegetation.", system[0].(map[string]any)["text"])

		msgs, ok := req["messages"].([]any)
		require.True(t, ok)
		require.Len(t, msgs, 3)
		assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])

		toolResult := msgs[2].(map[string]any)
		assert.Equal(t, "user", toolResult["role"])
		block := toolResult["content"].([]any)[0].(map[string]any)
		assert.Equal(t, "tool_result", block["type"])
		assert.Equal(t, "toolu_1", block["tool_use_id"])

		tools := req["tools"].([]any)
		require.Len(t, tools, 1)
		assert.Equal(t, "locate", tools[0].(map[string]any)["name"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [
				{"type": "text", "text": "Now searching scenes."},
				{"type": "tool_use", "id": "toolu_2", "name": "findScenes", "input": {"bbox": [0, 0, 1, 1]}}
			],
			"stop_reason": "tool_use", "stop_sequence": null,
			"usage": {"input_tokens": 120, "output_tokens": 40}
		}`))
	})

	msg, err := a.Complete(context.Background(), conversation(), []toolbox.Tool{locateTool})
	require.NoError(t, err)

	assert.Equal(t, role.Assistant, msg.Role)
	assert.Equal(t, "Now searching scenes.", msg.TextContent())

	calls := msg.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_2", calls[0].ID)
	assert.Equal(t, "findScenes", calls[0].Name)
	assert.JSONEq(t, `{"bbox":[0,0,1,1]}`, calls[0].Arguments)

	tc, ok := modeladapter.UsageOf(msg)
	require.True(t, ok)
	assert.Equal(t, 160, tc.Total())
	assert.Equal(t, 1, a.UsageTracker().Count())
}

const sseBody = `event: message_start
data: {"type":"message_start","message":{"id":"msg_2","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":25,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Mean NDVI "}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"is 0.62."}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":9}}

event: message_stop
data: {"type":"message_stop"}

`

func TestStream(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sseBody))
	})

	var deltas []string
	msg, err := a.Stream(context.Background(), conversation(), nil, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Mean NDVI ", "is 0.62."}, deltas)
	assert.Equal(t, "Mean NDVI is 0.62.", msg.TextContent())
	assert.Empty(t, msg.ToolCalls())
}

func TestComplete_APIError(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := a.Complete(context.Background(), conversation(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic:")
}
