package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/agentctx"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/chat"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter/usage"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test helpers ---

// sequenceCompleter returns a sequence of preconfigured replies.
type sequenceCompleter struct {
	replies []message.Message
	index   int
}

func (p *sequenceCompleter) Complete(_ context.Context, _ *chat.Chat, _ []toolbox.Tool) (message.Message, error) {
	if p.index >= len(p.replies) {
		return message.Message{}, errors.New("no more replies")
	}
	reply := p.replies[p.index]
	p.index++
	return reply, nil
}

// loopCompleter requests the echo tool forever.
type loopCompleter struct {
	calls int
}

func (p *loopCompleter) Complete(_ context.Context, _ *chat.Chat, _ []toolbox.Tool) (message.Message, error) {
	p.calls++
	return message.New("", role.Assistant,
		content.Text{Text: fmt.Sprintf("step %d", p.calls)},
		content.ToolCall{ID: fmt.Sprintf("c%d", p.calls), Name: "echo", Arguments: `{}`},
	), nil
}

// errorCompleter always returns an error.
type errorCompleter struct {
	err error
}

func (p *errorCompleter) Complete(_ context.Context, _ *chat.Chat, _ []toolbox.Tool) (message.Message, error) {
	return message.Message{}, p.err
}

// streamCompleter streams fixed fragments and records usage.
type streamCompleter struct {
	modeladapter.ModelAdapter
	fragments []string
}

func (p *streamCompleter) Stream(_ context.Context, _ *chat.Chat, _ []toolbox.Tool, onDelta func(string)) (message.Message, error) {
	text := ""
	for _, f := range p.fragments {
		onDelta(f)
		text += f
	}
	msg := modeladapter.Reply("stream", text, nil)
	p.Record(&msg, usage.TokenCount{InputTokens: 10, OutputTokens: 5})
	return msg, nil
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *recorder) ofKind(k EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func newEchoToolBox() *toolbox.ToolBox {
	tb := toolbox.New()
	tb.Register(toolbox.Tool{
		Name:        "echo",
		Description: "Echoes input",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ context.Context, input json.RawMessage) (toolbox.Output, error) {
			return toolbox.Output{Content: string(input)}, nil
		},
	})
	return tb
}

func newAgent(c modeladapter.Completer, opts Options) *Agent {
	a := New("bot", c, opts)
	a.Chat().Append(
		message.NewText("system", role.System, "You are a test agent."),
		message.NewText("user", role.User, "Hello"),
	)
	return a
}

// --- constructor tests ---

func TestNew(t *testing.T) {
	a := New("bot", &sequenceCompleter{}, Options{})

	assert.Equal(t, "bot", a.Name())
	assert.NotNil(t, a.Chat())
	assert.Equal(t, 0, a.Chat().Len())
	assert.Equal(t, DefaultMaxSteps, a.options.MaxSteps)
	assert.Equal(t, DefaultToolTimeout, a.options.ToolTimeout)
}

func TestRunEmptyChat(t *testing.T) {
	a := New("bot", &sequenceCompleter{}, Options{})
	_, err := a.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmptyChat)

	a.Chat().Append(message.NewText("system", role.System, "prompt only"))
	_, err = a.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmptyChat)
}

// --- loop tests ---

func TestRunNoToolCalls(t *testing.T) {
	p := &sequenceCompleter{replies: []message.Message{
		message.NewText("", role.Assistant, "Done."),
	}}
	a := newAgent(p, Options{})

	res, err := a.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Done.", res.Text)
	assert.Equal(t, 1, res.Steps)
	assert.False(t, res.BudgetExhausted)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "bot", res.Messages[0].Sender)
}

func TestRunSingleToolStep(t *testing.T) {
	p := &sequenceCompleter{replies: []message.Message{
		message.New("", role.Assistant,
			content.Text{Text: "Calling tool."},
			content.ToolCall{ID: "c1", Name: "echo", Arguments: `{"msg":"hi"}`},
		),
		message.NewText("", role.Assistant, "Got the result."),
	}}
	a := newAgent(p, Options{})
	a.AddToolBoxes(newEchoToolBox())

	res, err := a.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Got the result.", res.Text)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 2, p.index)

	// assistant, tool, assistant
	require.Len(t, res.Messages, 3)
	tr := res.Messages[1].ToolResults()
	require.Len(t, tr, 1)
	assert.Equal(t, "c1", tr[0].ToolCallID)
	assert.JSONEq(t, `{"msg":"hi"}`, tr[0].Content)
	assert.False(t, tr[0].IsError)
}

func TestRunBudgetExhausted(t *testing.T) {
	p := &loopCompleter{}
	rec := &recorder{}
	a := newAgent(p, Options{MaxSteps: 5, Emitter: rec})
	a.AddToolBoxes(newEchoToolBox())

	res, err := a.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, res.BudgetExhausted)
	assert.Equal(t, 5, res.Steps)
	assert.Equal(t, 5, p.calls)
	assert.Equal(t, "step 5", res.Text)
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, "c5", res.ToolResults[0].ToolCallID)

	// Each step appends an assistant message and a tool message.
	assert.Len(t, res.Messages, 10)

	finish := rec.ofKind(EventFinish)
	require.Len(t, finish, 1)
	assert.Equal(t, FinishBudget, finish[0].FinishReason)
	assert.Len(t, rec.ofKind(EventStepFinish), 5)
}

func TestRunToolFailuresDoNotAbort(t *testing.T) {
	tb := toolbox.New()
	tb.Register(
		toolbox.Tool{Name: "fails", Handler: func(context.Context, json.RawMessage) (toolbox.Output, error) {
			return toolbox.Output{}, errors.New("upstream down")
		}},
		toolbox.Tool{Name: "panics", Handler: func(context.Context, json.RawMessage) (toolbox.Output, error) {
			panic("kaboom")
		}},
		toolbox.Tool{Name: "strict", Handler: func(context.Context, json.RawMessage) (toolbox.Output, error) {
			return toolbox.Output{}, (&toolbox.ValidationError{Tool: "strict"}).Add("bbox: required").Err()
		}},
	)

	p := &sequenceCompleter{replies: []message.Message{
		message.New("", role.Assistant,
			content.ToolCall{ID: "a", Name: "fails", Arguments: `{}`},
			content.ToolCall{ID: "b", Name: "panics", Arguments: `{}`},
			content.ToolCall{ID: "c", Name: "strict", Arguments: `{}`},
			content.ToolCall{ID: "d", Name: "missing", Arguments: `{}`},
		),
		message.NewText("", role.Assistant, "Sorry, the tools failed."),
	}}
	a := newAgent(p, Options{})
	a.AddToolBoxes(tb)

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Sorry, the tools failed.", res.Text)

	results := res.Messages[1].ToolResults()
	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.IsError, r.Name)
		assert.Equal(t, content.StateErrored, r.State())
	}

	assert.Equal(t, "upstream down", results[0].Content)
	assert.Contains(t, results[1].Content, "kaboom")
	assert.JSONEq(t, `{"error":"invalid arguments","tool":"strict","problems":["bbox: required"]}`, results[2].Content)
	assert.Equal(t, "tool not found: missing", results[3].Content)
}

func TestRunConcurrentCallsJoinInRequestOrder(t *testing.T) {
	var mu sync.Mutex
	var finished []string

	slow := func(name string, d time.Duration) toolbox.Tool {
		return toolbox.Tool{Name: name, Handler: func(context.Context, json.RawMessage) (toolbox.Output, error) {
			time.Sleep(d)
			mu.Lock()
			finished = append(finished, name)
			mu.Unlock()
			return toolbox.Output{Content: `"` + name + `"`}, nil
		}}
	}

	tb := toolbox.New()
	tb.Register(slow("slow", 80*time.Millisecond), slow("fast", 0))

	p := &sequenceCompleter{replies: []message.Message{
		message.New("", role.Assistant,
			content.ToolCall{ID: "1", Name: "slow"},
			content.ToolCall{ID: "2", Name: "fast"},
		),
		message.NewText("", role.Assistant, "ok"),
	}}
	rec := &recorder{}
	a := newAgent(p, Options{Emitter: rec})
	a.AddToolBoxes(tb)

	start := time.Now()
	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assert.Equal(t, []string{"fast", "slow"}, finished)

	results := res.Messages[1].ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ToolCallID)
	assert.Equal(t, "2", results[1].ToolCallID)

	ev := rec.ofKind(EventToolCallResult)
	require.Len(t, ev, 2)
	assert.Equal(t, "1", ev[0].ToolCallID)
	assert.Equal(t, "2", ev[1].ToolCallID)
}

func TestRunEvents(t *testing.T) {
	p := &sequenceCompleter{replies: []message.Message{
		message.New("", role.Assistant,
			content.Text{Text: "Looking."},
			content.ToolCall{ID: "c1", Name: "echo", Arguments: `{"x":1}`},
		),
		message.NewText("", role.Assistant, "Finished."),
	}}
	rec := &recorder{}
	a := newAgent(p, Options{Emitter: rec})
	a.AddToolBoxes(newEchoToolBox())

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []EventKind{
		EventTextDelta,
		EventToolCallStart,
		EventToolCallResult,
		EventStepFinish,
		EventTextDelta,
		EventStepFinish,
		EventFinish,
	}, rec.kinds())

	start := rec.ofKind(EventToolCallStart)[0]
	assert.Equal(t, "echo", start.ToolName)
	assert.JSONEq(t, `{"x":1}`, string(start.Args))

	result := rec.ofKind(EventToolCallResult)[0]
	assert.Equal(t, content.StateCompleted, result.State)
	assert.JSONEq(t, `{"x":1}`, string(result.Result))

	steps := rec.ofKind(EventStepFinish)
	assert.Equal(t, FinishToolCalls, steps[0].FinishReason)
	assert.Equal(t, FinishStop, steps[1].FinishReason)
}

func TestRunStreamsDeltasAndUsage(t *testing.T) {
	p := &streamCompleter{fragments: []string{"Mean ", "NDVI ", "0.6"}}
	rec := &recorder{}
	a := newAgent(p, Options{Emitter: rec})

	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Mean NDVI 0.6", res.Text)
	assert.Equal(t, 15, res.Usage.Total())

	deltas := rec.ofKind(EventTextDelta)
	require.Len(t, deltas, 3)
	assert.Equal(t, "NDVI ", deltas[1].Text)

	finish := rec.ofKind(EventFinish)
	require.Len(t, finish, 1)
	require.NotNil(t, finish[0].Usage)
	assert.Equal(t, 15, finish[0].Usage.Total())
}

func TestRunModelError(t *testing.T) {
	a := newAgent(&errorCompleter{err: errors.New("connection reset")}, Options{})

	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRunGateRejectsCall(t *testing.T) {
	var executed bool
	tb := toolbox.New()
	tb.Register(toolbox.Tool{Name: "guarded", Handler: func(context.Context, json.RawMessage) (toolbox.Output, error) {
		executed = true
		return toolbox.Output{Content: "{}"}, nil
	}})

	p := &sequenceCompleter{replies: []message.Message{
		message.New("", role.Assistant, content.ToolCall{ID: "g", Name: "guarded", Arguments: `{}`}),
		message.NewText("", role.Assistant, "blocked"),
	}}
	gate := func(_ *chat.Chat, tc content.ToolCall) error {
		return fmt.Errorf("%s is not allowed yet", tc.Name)
	}
	a := newAgent(p, Options{Gate: gate})
	a.AddToolBoxes(tb)

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, executed)

	tr := res.Messages[1].ToolResults()
	require.Len(t, tr, 1)
	assert.True(t, tr[0].IsError)
	assert.Equal(t, "guarded is not allowed yet", tr[0].Content)
}

func TestRunImages(t *testing.T) {
	tb := toolbox.New()
	tb.Register(toolbox.Tool{Name: "draw", Handler: func(context.Context, json.RawMessage) (toolbox.Output, error) {
		return toolbox.Output{
			Content: `{"image":"[placeholder]"}`,
			Payload: json.RawMessage(`{"image":"data:image/png;base64,AAAA"}`),
		}, nil
	}})

	p := &sequenceCompleter{replies: []message.Message{
		message.New("", role.Assistant, content.ToolCall{ID: "d", Name: "draw"}),
		message.NewText("", role.Assistant, "Here it is."),
	}}
	images := func(tr content.ToolResult) (string, bool) {
		var v struct{ Image string }
		if json.Unmarshal(tr.Full(), &v) != nil {
			return "", false
		}
		return v.Image, v.Image != ""
	}
	a := newAgent(p, Options{Images: images})
	a.AddToolBoxes(tb)

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"data:image/png;base64,AAAA"}, res.Images)

	// The model only ever sees the placeholder.
	assert.Equal(t, `{"image":"[placeholder]"}`, res.Messages[1].ToolResults()[0].Content)
}

func TestRunCancellationStopsEmissionButFinishesTools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	tb := toolbox.New()
	tb.Register(toolbox.Tool{Name: "slow", Handler: func(toolCtx context.Context, _ json.RawMessage) (toolbox.Output, error) {
		cancel()
		time.Sleep(20 * time.Millisecond)
		if toolCtx.Err() == nil {
			close(done)
		}
		return toolbox.Output{Content: "{}"}, nil
	}})

	p := &sequenceCompleter{replies: []message.Message{
		message.New("", role.Assistant, content.ToolCall{ID: "s", Name: "slow"}),
	}}
	rec := &recorder{}
	a := newAgent(p, Options{Emitter: rec})
	a.AddToolBoxes(tb)

	_, err := a.Run(ctx)
	require.Error(t, err)

	select {
	case <-done:
	default:
		t.Fatal("tool context was cancelled with the run")
	}

	assert.Empty(t, rec.ofKind(EventToolCallResult))
	assert.Empty(t, rec.ofKind(EventFinish))
}

func TestRunToolsSeeRunIdentity(t *testing.T) {
	var agentName, requestID string
	tb := toolbox.New()
	tb.Register(toolbox.Tool{Name: "whoami", Handler: func(ctx context.Context, _ json.RawMessage) (toolbox.Output, error) {
		agentName = agentctx.AgentNameFromContext(ctx)
		requestID = agentctx.RequestIDFromContext(ctx)
		return toolbox.Output{Content: "ok"}, nil
	}})

	p := &sequenceCompleter{replies: []message.Message{
		message.New("", role.Assistant, content.ToolCall{ID: "c1", Name: "whoami"}),
		message.NewText("", role.Assistant, "done"),
	}}
	a := newAgent(p, Options{})
	a.AddToolBoxes(tb)

	_, err := a.Run(agentctx.WithRequestID(context.Background(), "req-7"))
	require.NoError(t, err)

	assert.Equal(t, "bot", agentName)
	assert.Equal(t, "req-7", requestID)
}
