package toolflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/skosovsky/toolflow/schema"
)

// Middleware wraps a Tool with cross-cutting behavior (logging, recovery, timeout).
type Middleware func(Tool) Tool

// wrap applies middlewares in onion order: the first one is outermost.
func wrap(t Tool, middlewares []Middleware) Tool {
	for i := len(middlewares) - 1; i >= 0; i-- {
		t = middlewares[i](t)
	}
	return t
}

// WithLogging returns a middleware that logs start, end, duration, and errors.
// SystemError causes are logged here since the model never sees them.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Tool) Tool {
		return &loggingTool{ToolBase: ToolBase{Next: next}, logger: logger}
	}
}

// WithRecovery returns a middleware that recovers panics and returns SystemError.
func WithRecovery() Middleware {
	return func(next Tool) Tool {
		return &recoveryTool{ToolBase{Next: next}}
	}
}

// WithTimeoutMiddleware returns a middleware that enforces a per-tool timeout.
// Named with "Middleware" suffix to avoid collision with ToolOption
// WithTimeout. When the wrapped tool declares its own timeout, the shorter
// one wins.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Tool) Tool {
		return &timeoutTool{ToolBase: ToolBase{Next: next}, timeout: d}
	}
}

// ToolBase delegates Tool and ToolMetadata to the wrapped Tool. Embed it in
// middleware wrappers and override Execute.
type ToolBase struct{ Next Tool }

func (b *ToolBase) Name() string          { return b.Next.Name() }
func (b *ToolBase) Description() string   { return b.Next.Description() }
func (b *ToolBase) Schema() schema.Schema { return b.Next.Schema() }

func (b *ToolBase) Execute(ctx context.Context, rawArgs string) (string, error) {
	return b.Next.Execute(ctx, rawArgs)
}

func (b *ToolBase) Timeout() time.Duration {
	if tm, ok := b.Next.(ToolMetadata); ok {
		return tm.Timeout()
	}
	return 0
}

func (b *ToolBase) Tags() []string {
	if tm, ok := b.Next.(ToolMetadata); ok {
		return tm.Tags()
	}
	return nil
}

func (b *ToolBase) Version() string {
	if tm, ok := b.Next.(ToolMetadata); ok {
		return tm.Version()
	}
	return ""
}

func (b *ToolBase) IsDangerous() bool {
	if tm, ok := b.Next.(ToolMetadata); ok {
		return tm.IsDangerous()
	}
	return false
}

func (b *ToolBase) Strict() bool {
	if tm, ok := b.Next.(ToolMetadata); ok {
		return tm.Strict()
	}
	return false
}

type loggingTool struct {
	ToolBase
	logger *slog.Logger
}

func (m *loggingTool) Execute(ctx context.Context, rawArgs string) (string, error) {
	name := m.Next.Name()
	m.logger.InfoContext(ctx, "tool start", "tool", name, "args_len", len(rawArgs))
	start := time.Now()
	res, err := m.Next.Execute(ctx, rawArgs)
	dur := time.Since(start)
	if err != nil {
		attrs := []any{"tool", name, "duration", dur, "error", err}
		if IsSystemError(err) {
			attrs = append(attrs, "cause", unwrapCause(err))
		}
		m.logger.ErrorContext(ctx, "tool error", attrs...)
		return "", err
	}
	m.logger.InfoContext(ctx, "tool end", "tool", name, "duration", dur, "result_len", len(res))
	return res, nil
}

func unwrapCause(err error) string {
	var se *SystemError
	if errors.As(err, &se) && se.Err != nil {
		return se.Err.Error()
	}
	return err.Error()
}

type recoveryTool struct{ ToolBase }

func (r *recoveryTool) Execute(ctx context.Context, rawArgs string) (res string, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = ""
			err = &SystemError{Err: &panicError{p: p}}
		}
	}()
	return r.Next.Execute(ctx, rawArgs)
}

type timeoutTool struct {
	ToolBase
	timeout time.Duration
}

// Timeout reports the effective limit: the shorter of the middleware's and the
// wrapped tool's positive timeouts.
func (t *timeoutTool) Timeout() time.Duration {
	inner := t.ToolBase.Timeout()
	switch {
	case t.timeout <= 0:
		return inner
	case inner <= 0:
		return t.timeout
	}
	return min(t.timeout, inner)
}

func (t *timeoutTool) Execute(ctx context.Context, rawArgs string) (string, error) {
	if t.timeout <= 0 {
		return t.Next.Execute(ctx, rawArgs)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Next.Execute(ctx, rawArgs)
}

// Use stores the given middlewares and reapplies them from scratch to all
// registered tools (onion order: first middleware is outermost). Tools
// registered later get them too. Calling Use again replaces the chain.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
	for name, raw := range r.rawTools {
		r.tools[name] = wrap(raw, middlewares)
	}
}

var (
	_ ToolMetadata = (*ToolBase)(nil)
	_ Tool         = (*loggingTool)(nil)
)
