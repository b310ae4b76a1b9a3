package modeladapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/chat"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter/usage"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"
)

// usageKey is the message metadata key carrying the call's token usage.
const usageKey = "usage"

// Completer sends a conversation to an LLM and returns the assistant's reply.
// The tools parameter declares which tools are available for this call.
type Completer interface {
	Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error)
}

// StreamCompleter is a Completer that can report text as it is generated.
// onDelta is called from the calling goroutine, in order, for every text
// fragment; the returned message holds the full reply.
type StreamCompleter interface {
	Completer
	Stream(ctx context.Context, c *chat.Chat, tools []toolbox.Tool, onDelta func(string)) (message.Message, error)
}

// UsageReporter provides token usage information from a completer.
// Completers that embed ModelAdapter implement this interface automatically.
type UsageReporter interface {
	UsageTracker() *usage.Tracker
	ModelMaxTokens() int
}

// Stream calls comp.Stream when comp supports streaming. Otherwise it calls
// Complete and reports the reply's text as a single delta.
func Stream(ctx context.Context, comp Completer, c *chat.Chat, tools []toolbox.Tool, onDelta func(string)) (message.Message, error) {
	if sc, ok := comp.(StreamCompleter); ok {
		return sc.Stream(ctx, c, tools, onDelta)
	}

	msg, err := comp.Complete(ctx, c, tools)
	if err != nil {
		return message.Message{}, err
	}
	if text := msg.TextContent(); text != "" && onDelta != nil {
		onDelta(text)
	}
	return msg, nil
}

// Config carries the settings every provider adapter accepts. Zero values
// select the provider default.
type Config struct {
	Name        string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

// ModelAdapter holds shared state for LLM provider implementations. Embed it
// in concrete provider structs to get model settings and usage tracking.
type ModelAdapter struct {
	Name        string        // Model identifier (e.g. "claude-sonnet-4-5").
	Temperature float64       // Sampling temperature.
	MaxTokens   int           // Maximum tokens in the response.
	Usage       usage.Tracker // Process-lifetime token usage.
}

// Configure copies the model settings from cfg.
func (a *ModelAdapter) Configure(cfg Config, defaultMaxTokens int) {
	a.Name = cfg.Name
	a.Temperature = cfg.Temperature
	a.MaxTokens = cfg.MaxTokens
	if a.MaxTokens <= 0 {
		a.MaxTokens = defaultMaxTokens
	}
}

// UsageTracker returns the adapter's token usage tracker.
func (a *ModelAdapter) UsageTracker() *usage.Tracker { return &a.Usage }

// ModelMaxTokens returns the maximum tokens the model will generate per response.
func (a *ModelAdapter) ModelMaxTokens() int { return a.MaxTokens }

// Complete is a stub that returns an error. Concrete providers that embed
// ModelAdapter should define their own Complete method to shadow this one.
func (a *ModelAdapter) Complete(_ context.Context, _ *chat.Chat, _ []toolbox.Tool) (message.Message, error) {
	return message.Message{}, errors.New("adapter: Complete not implemented")
}

// Record adds tc to the adapter's tracker and attaches it to msg, where the
// agent reads it back with UsageOf.
func (a *ModelAdapter) Record(msg *message.Message, tc usage.TokenCount) {
	a.Usage.Add(tc)
	msg.SetMeta(usageKey, tc)
}

// UsageOf returns the token usage attached to a reply by Record.
func UsageOf(msg message.Message) (usage.TokenCount, bool) {
	v, ok := msg.GetMeta(usageKey)
	if !ok {
		return usage.TokenCount{}, false
	}
	tc, ok := v.(usage.TokenCount)
	return tc, ok
}

// Reply assembles an assistant message from streamed text and tool calls,
// dropping empty text.
func Reply(name, text string, calls []content.ToolCall) message.Message {
	parts := make([]content.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, content.Text{Text: text})
	}
	for _, tc := range calls {
		parts = append(parts, tc)
	}
	return message.New(name, role.Assistant, parts...)
}
