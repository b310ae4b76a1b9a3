package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
)

// ToolBox orchestrates a collection of tools. It allows registering, retrieving,
// listing, and calling tools. Agents use ToolBox to execute tool calls.
//
// Registration happens once at startup; after that a ToolBox is read-only and
// safe to share between concurrent runs.
type ToolBox struct {
	tools map[string]Tool
}

// New creates a new ToolBox ready for use.
func New() *ToolBox {
	return &ToolBox{
		tools: make(map[string]Tool),
	}
}

// Register adds one or more tools to the ToolBox. If a tool with the same name
// already exists, it is replaced.
func (tb *ToolBox) Register(tools ...Tool) {
	for _, t := range tools {
		tb.tools[t.Name] = t
	}
}

// Get returns a tool by name and a boolean indicating whether it was found.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	t, ok := tb.tools[name]
	return t, ok
}

// Tools returns all registered tools sorted by name, so declarations sent to
// the model are stable between requests.
func (tb *ToolBox) Tools() []Tool {
	result := make([]Tool, 0, len(tb.tools))
	for _, t := range tb.tools {
		result = append(result, t)
	}
	slices.SortFunc(result, func(a, b Tool) int { return strings.Compare(a.Name, b.Name) })
	return result
}

// Call executes a tool call and returns a ToolResult. It never fails: unknown
// tools, invalid arguments, handler errors and handler panics all come back as
// a result with IsError set, so the model can reason about them.
func (tb *ToolBox) Call(ctx context.Context, tc content.ToolCall) (result content.ToolResult) {
	result = content.ToolResult{ToolCallID: tc.ID, Name: tc.Name}

	t, ok := tb.tools[tc.Name]
	if !ok {
		result.Content = fmt.Sprintf("tool not found: %s", tc.Name)
		result.IsError = true
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			result.Content = fmt.Sprintf("tool %s panicked: %v", tc.Name, r)
			result.Payload = nil
			result.IsError = true
		}
	}()

	args := strings.TrimSpace(tc.Arguments)
	if args == "" {
		args = "{}"
	}

	out, err := t.Handler(ctx, json.RawMessage(args))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			result.Content = verr.JSON()
		} else {
			result.Content = err.Error()
		}
		result.IsError = true
		return result
	}

	result.Content = out.Content
	result.Payload = out.Payload
	return result
}
