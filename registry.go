package toolflow

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/skosovsky/toolflow/chat"
)

// Registry holds tools and executes them with timeout, a concurrency limit
// and contained failures. It is safe for concurrent use.
type Registry struct {
	tools       map[string]Tool // wrapped with middlewares, used by Execute
	rawTools    map[string]Tool // unwrapped, used by Use() to re-apply middlewares from scratch
	sem         chan struct{}
	opts        registryOptions
	done        chan struct{}
	running     sync.WaitGroup
	mu          sync.Mutex
	middlewares []Middleware
}

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var sem chan struct{}
	if o.maxConcurrency > 0 {
		sem = make(chan struct{}, o.maxConcurrency)
	}
	return &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
		sem:      sem,
		opts:     o,
		done:     make(chan struct{}),
	}
}

// Register adds tools. Stored middlewares (see Use) are applied before
// registration. A tool with the same name replaces the previous one.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		name := t.Name()
		r.rawTools[name] = t
		r.tools[name] = wrap(t, r.middlewares)
	}
}

// Tools returns all registered tools sorted by name for deterministic order.
func (r *Registry) Tools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Declarations exports every registered tool for the model backend, sorted by
// name.
func (r *Registry) Declarations() []chat.ToolDeclaration {
	tools := r.Tools()
	out := make([]chat.ToolDeclaration, 0, len(tools))
	for _, t := range tools {
		out = append(out, Declare(t))
	}
	return out
}

// Lookup returns the tool with the given name (after middlewares are
// applied), or (nil, false) if not found.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs one tool call and returns the text to hand back to the model.
// Tool failures are contained: they come back as an error payload (see
// ErrorPayload) with a nil error. The returned error is non-nil only when the
// call could not be attempted: ErrToolNotFound, ErrShutdown or ctx
// cancellation while waiting for a concurrency slot.
func (r *Registry) Execute(ctx context.Context, call chat.ToolCall) (string, error) {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return "", ErrShutdown
	default:
	}
	t, ok := r.tools[call.Name]
	if !ok {
		r.mu.Unlock()
		return "", ErrToolNotFound
	}
	r.running.Add(1)
	r.mu.Unlock()
	defer r.running.Done()

	if err := r.acquireSemaphore(ctx); err != nil {
		return "", err
	}
	defer r.releaseSemaphore()

	timeout := r.opts.timeout
	if tm, ok := t.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return r.dispatch(ctx, t, call), nil
}

// dispatch runs the hooks and the tool under one recover, so a panicking hook
// is contained like a panicking tool.
func (r *Registry) dispatch(ctx context.Context, t Tool, call chat.ToolCall) (out string) {
	defer func() {
		if p := recover(); p != nil {
			out = errorPayload(&SystemError{Err: &panicError{p: p}})
		}
	}()
	if r.opts.onBefore != nil {
		r.opts.onBefore(ctx, call)
	}
	start := time.Now()
	out, err := invoke(ctx, t, call.Arguments)
	if err != nil {
		out = errorPayload(err)
	}
	if r.opts.onAfter != nil {
		r.opts.onAfter(ctx, call, ExecutionSummary{
			CallID:   call.ID,
			ToolName: call.Name,
			Error:    err,
			Bytes:    len(out),
			Duration: time.Since(start),
		})
	}
	return out
}

func (r *Registry) acquireSemaphore(ctx context.Context) error {
	if r.sem == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) releaseSemaphore() {
	if r.sem != nil {
		<-r.sem
	}
}

// Shutdown closes the registry for new calls and waits for in-flight
// executions or ctx to cancel.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil
	default:
		close(r.done)
	}
	r.mu.Unlock()
	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
