// Package agent runs a bounded, tool-augmented conversation loop: the model
// reasons, requests tools, sees their results, and answers.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/agentctx"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/chat"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter/usage"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps is the step budget used when Options.MaxSteps is zero.
const DefaultMaxSteps = 5

// DefaultToolTimeout bounds a single tool execution when Options.ToolTimeout
// is zero.
const DefaultToolTimeout = 30 * time.Second

// ErrEmptyChat is returned when Run is called on a chat with nothing for the
// model to answer.
var ErrEmptyChat = errors.New("agent: chat has no user message")

var tracer = otel.Tracer("terravision/agent")

// Gate inspects a tool call before it runs. A non-nil error rejects the call;
// the error text becomes the errored tool result.
type Gate func(c *chat.Chat, tc content.ToolCall) error

// Options configures an Agent.
type Options struct {
	MaxSteps    int           // Step budget (0 = DefaultMaxSteps).
	ToolTimeout time.Duration // Per tool call limit (0 = DefaultToolTimeout).
	Middleware  []Middleware  // Applied around Run().
	Emitter     Emitter       // Receives run events; may be nil.
	Gate        Gate          // Optional call gate.

	// Images extracts an image URL from a tool result so it can be surfaced
	// in Result.Images.
	Images func(content.ToolResult) (string, bool)
}

// Result is the outcome of a run.
type Result struct {
	Text            string               // Text of the final assistant message.
	Messages        []message.Message    // Messages appended during the run.
	ToolResults     []content.ToolResult // Results of the last step that ran tools.
	Images          []string             // Image URLs produced by the last tool step.
	Steps           int                  // Model calls made.
	BudgetExhausted bool                 // The run stopped because the step budget ran out.
	Usage           usage.TokenCount     // Tokens used across all steps.
}

// Agent runs the loop over a single chat. It is not safe for concurrent use;
// create one per request.
type Agent struct {
	name      string
	completer modeladapter.Completer
	chat      *chat.Chat
	toolboxes []*toolbox.ToolBox
	options   Options
}

// New creates an Agent with an empty chat.
func New(name string, completer modeladapter.Completer, opts Options) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}

	return &Agent{
		name:      name,
		completer: completer,
		chat:      chat.New(),
		options:   opts,
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Chat returns the agent's chat.
func (a *Agent) Chat() *chat.Chat { return a.chat }

// AddToolBoxes adds toolboxes whose tools the model may call.
func (a *Agent) AddToolBoxes(tbs ...*toolbox.ToolBox) {
	a.toolboxes = append(a.toolboxes, tbs...)
}

// Run executes the loop with middleware applied.
func (a *Agent) Run(ctx context.Context) (Result, error) {
	var runner Runner = RunnerFunc(a.run)

	// Apply middleware in reverse order so the first middleware is outermost.
	for i := len(a.options.Middleware) - 1; i >= 0; i-- {
		runner = a.options.Middleware[i](runner)
	}

	return runner.Run(ctx)
}

func (a *Agent) run(ctx context.Context) (Result, error) {
	last, ok := a.chat.Last()
	if !ok || last.Role == role.System {
		return Result{}, ErrEmptyChat
	}

	ctx = agentctx.WithAgentName(ctx, a.name)
	ctx, span := tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.name", a.name),
		attribute.Int("agent.max_steps", a.options.MaxSteps),
	))
	defer span.End()

	var tools []toolbox.Tool
	for _, tb := range a.toolboxes {
		tools = append(tools, tb.Tools()...)
	}

	start := a.chat.Len()
	var res Result

	for step := 1; step <= a.options.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			res.Messages = a.chat.Since(start)
			return res, fmt.Errorf("agent: step %d: %w", step, err)
		}
		res.Steps = step

		reply, err := a.step(ctx, step, tools)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			res.Messages = a.chat.Since(start)
			return res, err
		}

		if tc, ok := modeladapter.UsageOf(reply); ok {
			res.Usage = res.Usage.Plus(tc)
		}
		res.Text = reply.TextContent()

		calls := reply.ToolCalls()
		if len(calls) == 0 {
			a.emit(ctx, Event{Kind: EventStepFinish, Step: step, FinishReason: FinishStop})
			return a.finish(ctx, span, res, start, FinishStop), nil
		}

		results := a.dispatch(ctx, step, calls)
		parts := make([]content.Part, len(results))
		for i, r := range results {
			parts[i] = r
		}
		a.chat.Append(message.New(a.name, role.Tool, parts...))

		res.ToolResults = results
		res.Images = a.images(results)

		a.emit(ctx, Event{Kind: EventStepFinish, Step: step, FinishReason: FinishToolCalls})
	}

	res.BudgetExhausted = true
	return a.finish(ctx, span, res, start, FinishBudget), nil
}

// step makes one model call and appends the reply to the chat.
func (a *Agent) step(ctx context.Context, step int, tools []toolbox.Tool) (message.Message, error) {
	ctx, span := tracer.Start(ctx, "agent.step", trace.WithAttributes(attribute.Int("agent.step", step)))
	defer span.End()

	reply, err := modeladapter.Stream(ctx, a.completer, a.chat, tools, func(delta string) {
		a.emit(ctx, Event{Kind: EventTextDelta, Step: step, Text: delta})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return message.Message{}, fmt.Errorf("agent: step %d: %w", step, err)
	}

	reply.Sender = a.name
	a.chat.Append(reply)

	span.SetAttributes(attribute.Int("agent.tool_calls", len(reply.ToolCalls())))
	return reply, nil
}

func (a *Agent) finish(ctx context.Context, span trace.Span, res Result, start int, reason FinishReason) Result {
	res.Messages = a.chat.Since(start)

	span.SetAttributes(
		attribute.Int("agent.steps", res.Steps),
		attribute.Bool("agent.budget_exhausted", res.BudgetExhausted),
		attribute.Int("agent.tokens", res.Usage.Total()),
	)

	u := res.Usage
	a.emit(ctx, Event{Kind: EventFinish, Step: res.Steps, FinishReason: reason, Usage: &u})
	return res
}

func (a *Agent) images(results []content.ToolResult) []string {
	if a.options.Images == nil {
		return nil
	}

	var urls []string
	for _, r := range results {
		if url, ok := a.options.Images(r); ok {
			urls = append(urls, url)
		}
	}
	return urls
}

// emit forwards e to the emitter unless ctx is done.
func (a *Agent) emit(ctx context.Context, e Event) {
	if a.options.Emitter == nil || ctx.Err() != nil {
		return
	}
	a.options.Emitter.Emit(ctx, e)
}
