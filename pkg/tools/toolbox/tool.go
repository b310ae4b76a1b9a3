package toolbox

import (
	"context"
	"encoding/json"
	"strings"
)

// Output is what a handler produces on success.
//
// Content is the text fed back to the model. Payload, when set, is the full
// structured result delivered to the caller instead of Content.
type Output struct {
	Content string
	Payload json.RawMessage
}

// Handler executes a tool with the given JSON input.
type Handler func(ctx context.Context, input json.RawMessage) (Output, error)

// Tool represents an executable tool with a name, description, JSON Schema, and handler.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// ValidationError reports tool arguments that do not match the tool's
// parameters. Handlers return it before doing any work.
type ValidationError struct {
	Tool     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid arguments for " + e.Tool + ": " + strings.Join(e.Problems, "; ")
}

// Add records a problem. It returns the receiver for chaining.
func (e *ValidationError) Add(problem string) *ValidationError {
	e.Problems = append(e.Problems, problem)
	return e
}

// Err returns e when at least one problem was recorded, otherwise nil.
func (e *ValidationError) Err() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// JSON renders the error as the structured result the model receives.
func (e *ValidationError) JSON() string {
	b, _ := json.Marshal(struct {
		Error    string   `json:"error"`
		Tool     string   `json:"tool"`
		Problems []string `json:"problems"`
	}{"invalid arguments", e.Tool, e.Problems})
	return string(b)
}
