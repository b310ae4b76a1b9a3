package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/agentctx"
)

// Runner executes agent logic and returns the run result.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context) (Result, error)

// Run calls the underlying function.
func (f RunnerFunc) Run(ctx context.Context) (Result, error) {
	return f(ctx)
}

// Middleware wraps a Runner, returning a new Runner with added behaviour.
type Middleware func(next Runner) Runner

// --- Timeout middleware ---

// Timeout returns a Middleware that wraps the runner's context with a deadline.
// An error returned after the deadline passed always matches
// context.DeadlineExceeded, even when the failing call reported it differently.
func Timeout(d time.Duration) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (Result, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			res, err := next.Run(ctx)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
			}
			return res, err
		})
	}
}

// --- Recovery middleware ---

// Recovery returns a Middleware that catches panics and converts them to errors.
func Recovery() Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (res Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("agent panicked: %v", r)
				}
			}()

			return next.Run(ctx)
		})
	}
}

// --- Logger middleware ---

// Logger returns a Middleware that logs run start and the outcome: duration,
// steps used, whether the step budget ran out, and tokens spent. Request
// identity carried by ctx is added to every record.
func Logger(log *slog.Logger, name string) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (Result, error) {
			base := append(agentctx.LogAttrs(ctx), "agent", name)
			log.InfoContext(ctx, "agent started", base...)

			start := time.Now()
			res, err := next.Run(ctx)

			attrs := append(base,
				"duration", time.Since(start),
				"steps", res.Steps,
				"tokens", res.Usage.Total(),
			)
			if err != nil {
				log.ErrorContext(ctx, "agent finished with error", append(attrs, "error", err)...)
				return res, err
			}

			log.InfoContext(ctx, "agent finished", append(attrs, "budget_exhausted", res.BudgetExhausted)...)
			return res, nil
		})
	}
}
