package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/agentctx"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var toolMeter = otel.GetMeterProvider().Meter("terravision/agent")

// dispatch runs every call of one model turn concurrently and returns the
// results in request order. Tools run on a context detached from ctx's
// cancellation, bounded by the tool timeout, so a call already in flight is
// not abandoned halfway when the caller goes away.
func (a *Agent) dispatch(ctx context.Context, step int, calls []content.ToolCall) []content.ToolResult {
	results := make([]content.ToolResult, len(calls))
	toolCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, tc := range calls {
		a.emit(ctx, Event{
			Kind:       EventToolCallStart,
			Step:       step,
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Args:       rawArgs(tc.Arguments),
		})

		g.Go(func() error {
			results[i] = a.callTool(toolCtx, tc)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		a.emit(ctx, Event{
			Kind:       EventToolCallResult,
			Step:       step,
			ToolCallID: r.ToolCallID,
			ToolName:   r.Name,
			Result:     r.Full(),
			State:      r.State(),
		})
	}

	return results
}

// callTool gates, locates and executes one tool call.
func (a *Agent) callTool(ctx context.Context, tc content.ToolCall) content.ToolResult {
	ctx, cancel := context.WithTimeout(ctx, a.options.ToolTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "agent.tool "+tc.Name, trace.WithAttributes(
		attribute.String("tool.name", tc.Name),
		attribute.String("tool.call_id", tc.ID),
	))
	defer span.End()

	start := time.Now()
	result := a.execute(ctx, tc)

	outcome := string(result.State())
	span.SetAttributes(attribute.String("tool.outcome", outcome))
	if result.IsError {
		span.SetStatus(codes.Error, result.Content)
	}

	if counter, err := toolMeter.Int64Counter("terravision.tool.calls"); err == nil {
		counter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("tool.name", tc.Name),
			attribute.String("tool.outcome", outcome),
		))
	}

	slog.DebugContext(ctx, "tool call finished", append(agentctx.LogAttrs(ctx),
		"tool", tc.Name,
		"call_id", tc.ID,
		"outcome", outcome,
		"duration", time.Since(start),
	)...)

	return result
}

func (a *Agent) execute(ctx context.Context, tc content.ToolCall) content.ToolResult {
	if a.options.Gate != nil {
		if err := a.options.Gate(a.chat, tc); err != nil {
			return content.ToolResult{ToolCallID: tc.ID, Name: tc.Name, Content: err.Error(), IsError: true}
		}
	}

	for _, tb := range a.toolboxes {
		if _, ok := tb.Get(tc.Name); ok {
			return tb.Call(ctx, tc)
		}
	}

	return content.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Content:    fmt.Sprintf("tool not found: %s", tc.Name),
		IsError:    true,
	}
}
