// Package anthropic provides a Completer implementation for the Anthropic
// Messages API, built on the official SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/chat"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter/usage"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var _ modeladapter.StreamCompleter = (*Adapter)(nil)

// Adapter implements modeladapter.StreamCompleter for the Anthropic Messages API.
type Adapter struct {
	modeladapter.ModelAdapter
	client sdk.Client
}

// New creates an Adapter. The SDK's own retries are disabled; a failed model
// call surfaces immediately as a model error.
func New(cfg modeladapter.Config) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	a := &Adapter{client: sdk.NewClient(opts...)}
	a.Configure(cfg, 4096)
	return a
}

// Complete sends a conversation and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	resp, err := a.client.Messages.New(ctx, a.buildParams(c, tools))
	if err != nil {
		return message.Message{}, fmt.Errorf("anthropic: %w", err)
	}

	return a.reply(resp), nil
}

// Stream is Complete with text deltas reported as they arrive.
func (a *Adapter) Stream(ctx context.Context, c *chat.Chat, tools []toolbox.Tool, onDelta func(string)) (message.Message, error) {
	stream := a.client.Messages.NewStreaming(ctx, a.buildParams(c, tools))
	defer func() { _ = stream.Close() }()

	var acc sdk.Message
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return message.Message{}, fmt.Errorf("anthropic: accumulate stream: %w", err)
		}

		if ev, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
			if d, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && d.Text != "" && onDelta != nil {
				onDelta(d.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return message.Message{}, fmt.Errorf("anthropic: %w", err)
	}

	return a.reply(&acc), nil
}

func (a *Adapter) buildParams(c *chat.Chat, tools []toolbox.Tool) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.Name),
		MaxTokens: int64(a.MaxTokens),
	}

	if sys := c.SystemPrompt(); sys != "" {
		params.System = []sdk.TextBlockParam{{Text: sys}}
	}
	if a.Temperature != 0 {
		params.Temperature = sdk.Float(a.Temperature)
	}

	for _, t := range tools {
		params.Tools = append(params.Tools, toolParam(t))
	}

	c.Each(func(_ int, m message.Message) bool {
		appendMessage(&params.Messages, m)
		return true
	})

	return params
}

func toolParam(t toolbox.Tool) sdk.ToolUnionParam {
	var schema struct {
		Properties any      `json:"properties"`
		Required   []string `json:"required"`
	}
	_ = json.Unmarshal(t.InputSchema, &schema)

	return sdk.ToolUnionParam{OfTool: &sdk.ToolParam{
		Name:        t.Name,
		Description: sdk.String(t.Description),
		InputSchema: sdk.ToolInputSchemaParam{
			Properties: schema.Properties,
			Required:   schema.Required,
		},
	}}
}

// appendMessage converts m and merges it into the previous message when the
// API role matches. Tool results travel in user messages.
func appendMessage(msgs *[]sdk.MessageParam, m message.Message) {
	if m.Role == role.System {
		return
	}

	var blocks []sdk.ContentBlockParamUnion
	for _, p := range m.Parts {
		switch v := p.(type) {
		case content.Text:
			if v.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			}
		case content.ToolCall:
			args := json.RawMessage(v.Arguments)
			if !json.Valid(args) {
				args = json.RawMessage(`{}`)
			}
			blocks = append(blocks, sdk.NewToolUseBlock(v.ID, args, v.Name))
		case content.ToolResult:
			blocks = append(blocks, sdk.NewToolResultBlock(v.ToolCallID, v.Content, v.IsError))
		}
	}
	if len(blocks) == 0 {
		return
	}

	apiRole := sdk.MessageParamRoleUser
	if m.Role == role.Assistant {
		apiRole = sdk.MessageParamRoleAssistant
	}

	if n := len(*msgs); n > 0 && (*msgs)[n-1].Role == apiRole {
		(*msgs)[n-1].Content = append((*msgs)[n-1].Content, blocks...)
		return
	}

	*msgs = append(*msgs, sdk.MessageParam{Role: apiRole, Content: blocks})
}

func (a *Adapter) reply(resp *sdk.Message) message.Message {
	var text string
	var calls []content.ToolCall

	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case sdk.TextBlock:
			text += v.Text
		case sdk.ToolUseBlock:
			args := string(v.Input)
			if args == "" {
				args = "{}"
			}
			calls = append(calls, content.ToolCall{ID: v.ID, Name: v.Name, Arguments: args})
		}
	}

	msg := modeladapter.Reply(a.Name, text, calls)
	a.Record(&msg, usage.TokenCount{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	})
	return msg
}
