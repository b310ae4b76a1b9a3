// Package openai provides a Completer implementation for the OpenAI Chat
// Completions API. Any compatible endpoint (xAI's Grok among them) works by
// pointing BaseURL at it.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/chat"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter/usage"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"

	sdk "github.com/sashabaranov/go-openai"
)

// XAIBaseURL is the OpenAI-compatible endpoint for Grok models.
const XAIBaseURL = "https://api.x.ai/v1"

var _ modeladapter.StreamCompleter = (*Adapter)(nil)

// Adapter implements modeladapter.StreamCompleter for Chat Completions.
type Adapter struct {
	modeladapter.ModelAdapter
	client *sdk.Client
}

// New creates an Adapter. cfg.BaseURL, when set, must include the API version
// prefix (for example "https://api.openai.com/v1").
func New(cfg modeladapter.Config) *Adapter {
	conf := sdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		conf.HTTPClient = cfg.HTTPClient
	}

	a := &Adapter{client: sdk.NewClientWithConfig(conf)}
	a.Configure(cfg, 4096)
	return a
}

// Complete sends a conversation and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(c, tools))
	if err != nil {
		return message.Message{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return message.Message{}, errors.New("openai: empty choices in response")
	}

	choice := resp.Choices[0].Message
	calls := make([]content.ToolCall, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		calls = append(calls, toolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}

	msg := modeladapter.Reply(a.Name, choice.Content, calls)
	a.Record(&msg, usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})
	return msg, nil
}

// Stream is Complete with text deltas reported as they arrive. Tool call
// fragments are stitched together by their index.
func (a *Adapter) Stream(ctx context.Context, c *chat.Chat, tools []toolbox.Tool, onDelta func(string)) (message.Message, error) {
	req := a.buildRequest(c, tools)
	req.Stream = true
	req.StreamOptions = &sdk.StreamOptions{IncludeUsage: true}

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return message.Message{}, fmt.Errorf("openai: %w", err)
	}
	defer func() { _ = stream.Close() }()

	var (
		text    string
		partial = map[int]*sdk.ToolCall{}
		tc      usage.TokenCount
	)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return message.Message{}, fmt.Errorf("openai: %w", err)
		}

		if chunk.Usage != nil {
			tc = usage.TokenCount{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			text += delta.Content
			if onDelta != nil {
				onDelta(delta.Content)
			}
		}

		for _, d := range delta.ToolCalls {
			idx := 0
			if d.Index != nil {
				idx = *d.Index
			}
			p, ok := partial[idx]
			if !ok {
				p = &sdk.ToolCall{}
				partial[idx] = p
			}
			if d.ID != "" {
				p.ID = d.ID
			}
			if d.Function.Name != "" {
				p.Function.Name = d.Function.Name
			}
			p.Function.Arguments += d.Function.Arguments
		}
	}

	indexes := make([]int, 0, len(partial))
	for i := range partial {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]content.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		p := partial[i]
		calls = append(calls, toolCall(p.ID, p.Function.Name, p.Function.Arguments))
	}

	msg := modeladapter.Reply(a.Name, text, calls)
	a.Record(&msg, tc)
	return msg, nil
}

func toolCall(id, name, args string) content.ToolCall {
	if args == "" {
		args = "{}"
	}
	return content.ToolCall{ID: id, Name: name, Arguments: args}
}

func (a *Adapter) buildRequest(c *chat.Chat, tools []toolbox.Tool) sdk.ChatCompletionRequest {
	req := sdk.ChatCompletionRequest{
		Model:       a.Name,
		MaxTokens:   a.MaxTokens,
		Temperature: float32(a.Temperature),
	}

	for _, t := range tools {
		var params any = t.InputSchema
		if len(t.InputSchema) == 0 {
			params = map[string]any{"type": "object"}
		}
		req.Tools = append(req.Tools, sdk.Tool{
			Type: sdk.ToolTypeFunction,
			Function: &sdk.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	c.Each(func(_ int, m message.Message) bool {
		req.Messages = append(req.Messages, convertMessage(m)...)
		return true
	})

	return req
}

// convertMessage maps one message to API messages. A tool message fans out
// into one API message per result.
func convertMessage(m message.Message) []sdk.ChatCompletionMessage {
	switch m.Role {
	case role.System:
		return []sdk.ChatCompletionMessage{{Role: sdk.ChatMessageRoleSystem, Content: m.TextContent()}}
	case role.Tool:
		results := m.ToolResults()
		out := make([]sdk.ChatCompletionMessage, 0, len(results))
		for _, r := range results {
			out = append(out, sdk.ChatCompletionMessage{
				Role:       sdk.ChatMessageRoleTool,
				Content:    r.Content,
				ToolCallID: r.ToolCallID,
			})
		}
		return out
	case role.Assistant:
		msg := sdk.ChatCompletionMessage{Role: sdk.ChatMessageRoleAssistant, Content: m.TextContent()}
		for _, tc := range m.ToolCalls() {
			msg.ToolCalls = append(msg.ToolCalls, sdk.ToolCall{
				ID:   tc.ID,
				Type: sdk.ToolTypeFunction,
				Function: sdk.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return []sdk.ChatCompletionMessage{msg}
	default:
		return []sdk.ChatCompletionMessage{{Role: sdk.ChatMessageRoleUser, Content: m.TextContent()}}
	}
}
