package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, input json.RawMessage) (Output, error) {
	return Output{Content: string(input)}, nil
}

func errorHandler(_ context.Context, _ json.RawMessage) (Output, error) {
	return Output{}, errors.New("tool failed")
}

func newEchoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "Echoes input",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     echoHandler,
	}
}

func TestNew(t *testing.T) {
	tb := New()
	assert.NotNil(t, tb)
	assert.Empty(t, tb.Tools())
}

func TestRegisterAndGet(t *testing.T) {
	tb := New()
	tb.Register(newEchoTool("echo"))

	got, ok := tb.Get("echo")
	assert.True(t, ok)
	assert.Equal(t, "echo", got.Name)

	_, ok = tb.Get("missing")
	assert.False(t, ok)
}

func TestRegisterReplace(t *testing.T) {
	tb := New()
	tb.Register(Tool{Name: "tool", Description: "original", Handler: echoHandler})
	tb.Register(Tool{Name: "tool", Description: "replaced", Handler: echoHandler})

	got, ok := tb.Get("tool")
	require.True(t, ok)
	assert.Equal(t, "replaced", got.Description)
	assert.Len(t, tb.Tools(), 1)
}

func TestToolsSorted(t *testing.T) {
	tb := New()
	tb.Register(newEchoTool("renderImage"), newEchoTool("computeStats"), newEchoTool("locate"))

	var names []string
	for _, tool := range tb.Tools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"computeStats", "locate", "renderImage"}, names)
}

func TestCallSuccess(t *testing.T) {
	tb := New()
	tb.Register(newEchoTool("echo"))

	result := tb.Call(context.Background(), content.ToolCall{
		ID:        "call-1",
		Name:      "echo",
		Arguments: `{"msg":"hi"}`,
	})
	assert.Equal(t, "call-1", result.ToolCallID)
	assert.Equal(t, "echo", result.Name)
	assert.JSONEq(t, `{"msg":"hi"}`, result.Content)
	assert.False(t, result.IsError)
}

func TestCallEmptyArgumentsBecomeObject(t *testing.T) {
	tb := New()
	tb.Register(newEchoTool("echo"))

	result := tb.Call(context.Background(), content.ToolCall{ID: "c", Name: "echo"})
	assert.Equal(t, "{}", result.Content)
}

func TestCallPayload(t *testing.T) {
	tb := New()
	tb.Register(Tool{
		Name: "render",
		Handler: func(context.Context, json.RawMessage) (Output, error) {
			return Output{
				Content: `{"success":true,"imageDataUrl":"[image]"}`,
				Payload: json.RawMessage(`{"success":true,"imageDataUrl":"data:image/png;base64,AA=="}`),
			}, nil
		},
	})

	result := tb.Call(context.Background(), content.ToolCall{ID: "r", Name: "render"})
	assert.Contains(t, result.Content, "[image]")
	assert.Contains(t, string(result.Full()), "base64")
}

func TestCallNotFound(t *testing.T) {
	tb := New()

	result := tb.Call(context.Background(), content.ToolCall{ID: "call-2", Name: "missing"})
	assert.Equal(t, "call-2", result.ToolCallID)
	assert.Contains(t, result.Content, "tool not found: missing")
	assert.True(t, result.IsError)
}

func TestCallHandlerError(t *testing.T) {
	tb := New()
	tb.Register(Tool{Name: "fail", Handler: errorHandler})

	result := tb.Call(context.Background(), content.ToolCall{ID: "call-3", Name: "fail"})
	assert.Equal(t, "call-3", result.ToolCallID)
	assert.Equal(t, "tool failed", result.Content)
	assert.True(t, result.IsError)
}

func TestCallValidationError(t *testing.T) {
	invoked := false
	tb := New()
	tb.Register(Tool{
		Name: "computeStats",
		Handler: func(context.Context, json.RawMessage) (Output, error) {
			verr := &ValidationError{Tool: "computeStats"}
			if err := verr.Add("bbox: expected 4 numbers, got 3").Err(); err != nil {
				return Output{}, fmt.Errorf("parse: %w", err)
			}
			invoked = true
			return Output{}, nil
		},
	})

	result := tb.Call(context.Background(), content.ToolCall{ID: "v", Name: "computeStats"})
	assert.True(t, result.IsError)
	assert.False(t, invoked)
	assert.JSONEq(t, `{"error":"invalid arguments","tool":"computeStats","problems":["bbox: expected 4 numbers, got 3"]}`, result.Content)
}

func TestCallRecoversPanic(t *testing.T) {
	tb := New()
	tb.Register(Tool{
		Name: "explode",
		Handler: func(context.Context, json.RawMessage) (Output, error) {
			panic("nil map")
		},
	})

	result := tb.Call(context.Background(), content.ToolCall{ID: "p", Name: "explode"})
	assert.True(t, result.IsError)
	assert.Equal(t, "p", result.ToolCallID)
	assert.Contains(t, result.Content, "tool explode panicked: nil map")
}
