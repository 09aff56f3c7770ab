package agents

import (
	"context"
	"time"
)

// Invoker sends a prompt to an agent and returns its text response.
type Invoker interface {
	Invoke(ctx context.Context, agent Agent, prompt string) (string, error)
}

// Router dispatches invocations by agent kind.
type Router struct {
	cli       Invoker
	anthropic Invoker
	openai    Invoker
}

// NewRouter wires one invoker per kind. Nil entries reject their kind
// with a NotFoundError, which lets a deployment run without API keys.
func NewRouter(cli, anthropicInv, openaiInv Invoker) *Router {
	return &Router{cli: cli, anthropic: anthropicInv, openai: openaiInv}
}

func (r *Router) Invoke(ctx context.Context, agent Agent, prompt string) (string, error) {
	var inv Invoker
	switch agent.Kind {
	case KindCLI:
		inv = r.cli
	case KindAnthropic:
		inv = r.anthropic
	case KindOpenAI:
		inv = r.openai
	}
	if inv == nil {
		return "", &NotFoundError{Agent: agent.Name}
	}
	return inv.Invoke(ctx, agent, prompt)
}

// retryBackoff is the base delay between attempts, doubling each retry.
// Variable so tests can shrink it.
var retryBackoff = time.Second

// InvokeWithRetry invokes with a per-attempt timeout, retrying
// transient failures up to attempts total tries. NotFound errors return
// immediately. The parent context cancels everything, including the
// backoff sleeps.
func InvokeWithRetry(ctx context.Context, inv Invoker, agent Agent, prompt string, attempts int, timeout time.Duration) (string, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff << uint(attempt-1)
			select {
			case <-ctx.Done():
				return "", lastErr
			case <-time.After(backoff):
			}
		}

		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		out, err := inv.Invoke(callCtx, agent, prompt)
		cancel()

		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", lastErr
		}
	}
	return "", lastErr
}
