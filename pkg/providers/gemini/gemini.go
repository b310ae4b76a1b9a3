// Package gemini provides a Completer implementation for the Google Gemini
// API, built on the Google Gen AI SDK.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/chat"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter/usage"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

const signatureKey = "thoughtSignature"

var _ modeladapter.StreamCompleter = (*Adapter)(nil)

// Adapter implements modeladapter.StreamCompleter for Gemini models.
type Adapter struct {
	modeladapter.ModelAdapter
	client *genai.Client
}

// New creates an Adapter backed by the Gemini Developer API.
func New(ctx context.Context, cfg modeladapter.Config) (*Adapter, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	a := &Adapter{client: client}
	a.Configure(cfg, 8192)
	return a, nil
}

// Complete sends a conversation and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	resp, err := a.client.Models.GenerateContent(ctx, a.Name, buildContents(c), a.buildConfig(c, tools))
	if err != nil {
		return message.Message{}, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return message.Message{}, errors.New("gemini: empty candidates in response")
	}

	var r replyBuilder
	r.add(resp.Candidates[0].Content.Parts, nil)
	return a.finish(&r, resp.UsageMetadata), nil
}

// Stream is Complete with text deltas reported as they arrive.
func (a *Adapter) Stream(ctx context.Context, c *chat.Chat, tools []toolbox.Tool, onDelta func(string)) (message.Message, error) {
	var (
		r    replyBuilder
		meta *genai.GenerateContentResponseUsageMetadata
	)

	for resp, err := range a.client.Models.GenerateContentStream(ctx, a.Name, buildContents(c), a.buildConfig(c, tools)) {
		if err != nil {
			return message.Message{}, fmt.Errorf("gemini: %w", err)
		}
		if resp.UsageMetadata != nil {
			meta = resp.UsageMetadata
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		r.add(resp.Candidates[0].Content.Parts, onDelta)
	}

	return a.finish(&r, meta), nil
}

func (a *Adapter) finish(r *replyBuilder, meta *genai.GenerateContentResponseUsageMetadata) message.Message {
	msg := modeladapter.Reply(a.Name, r.text, r.calls)

	var tc usage.TokenCount
	if meta != nil {
		tc.InputTokens = int(meta.PromptTokenCount)
		tc.OutputTokens = int(meta.CandidatesTokenCount)
	}
	a.Record(&msg, tc)
	return msg
}

type replyBuilder struct {
	text  string
	calls []content.ToolCall
}

func (r *replyBuilder) add(parts []*genai.Part, onDelta func(string)) {
	for _, p := range parts {
		switch {
		case p == nil || p.Thought:
		case p.FunctionCall != nil:
			r.calls = append(r.calls, toolCall(p))
		case p.Text != "":
			r.text += p.Text
			if onDelta != nil {
				onDelta(p.Text)
			}
		}
	}
}

// toolCall converts a function call part. Gemini may omit call IDs, in which
// case one is synthesized.
func toolCall(p *genai.Part) content.ToolCall {
	fc := p.FunctionCall

	args := "{}"
	if len(fc.Args) > 0 {
		if b, err := json.Marshal(fc.Args); err == nil {
			args = string(b)
		}
	}

	tc := content.ToolCall{ID: fc.ID, Name: fc.Name, Arguments: args}
	if tc.ID == "" {
		tc.ID = "call_" + uuid.NewString()
	}
	if len(p.ThoughtSignature) > 0 {
		tc.Metadata = map[string]string{signatureKey: base64.StdEncoding.EncodeToString(p.ThoughtSignature)}
	}
	return tc
}

func (a *Adapter) buildConfig(c *chat.Chat, tools []toolbox.Tool) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(a.MaxTokens),
	}
	if a.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(a.Temperature))
	}
	if sp := c.SystemPrompt(); sp != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sp, genai.RoleUser)
	}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
			if len(t.InputSchema) > 0 {
				decl.ParametersJsonSchema = t.InputSchema
			}
			decls = append(decls, decl)
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return cfg
}

// buildContents converts the conversation. Consecutive messages with the same
// API role are merged since Gemini requires alternation.
func buildContents(c *chat.Chat) []*genai.Content {
	var contents []*genai.Content

	c.Each(func(_ int, m message.Message) bool {
		if m.Role == role.System {
			return true
		}

		apiRole := string(genai.RoleUser)
		if m.Role == role.Assistant {
			apiRole = string(genai.RoleModel)
		}

		var parts []*genai.Part
		for _, p := range m.Parts {
			if part := toPart(p); part != nil {
				parts = append(parts, part)
			}
		}
		if len(parts) == 0 {
			return true
		}

		if n := len(contents); n > 0 && contents[n-1].Role == apiRole {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return true
		}
		contents = append(contents, &genai.Content{Role: apiRole, Parts: parts})
		return true
	})

	return contents
}

func toPart(p content.Part) *genai.Part {
	switch v := p.(type) {
	case content.Text:
		if v.Text == "" {
			return nil
		}
		return genai.NewPartFromText(v.Text)
	case content.ToolCall:
		var args map[string]any
		_ = json.Unmarshal([]byte(v.Arguments), &args)

		part := &genai.Part{FunctionCall: &genai.FunctionCall{ID: v.ID, Name: v.Name, Args: args}}
		if sig := v.Metadata[signatureKey]; sig != "" {
			if b, err := base64.StdEncoding.DecodeString(sig); err == nil {
				part.ThoughtSignature = b
			}
		}
		return part
	case content.ToolResult:
		return &genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       v.ToolCallID,
			Name:     v.Name,
			Response: functionResponse(v),
		}}
	default:
		return nil
	}
}

// functionResponse wraps a tool result as the object Gemini expects. JSON
// objects pass through, anything else is nested under "result", and failures
// under "error".
func functionResponse(r content.ToolResult) map[string]any {
	if r.IsError {
		return map[string]any{"error": r.Content}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(r.Content), &obj); err == nil && obj != nil {
		return obj
	}

	var v any
	if err := json.Unmarshal([]byte(r.Content), &v); err == nil {
		return map[string]any{"result": v}
	}
	return map[string]any{"result": r.Content}
}
