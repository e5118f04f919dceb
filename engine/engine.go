// Package engine drives a multi-turn conversation between a model backend and
// a tool registry.
//
// A Run streams each model turn through a stream.Aggregator, re-emits the
// text as it arrives, then dispatches the reassembled tool calls one by one
// in index order and feeds their results back as tool messages. The loop ends
// when a turn dispatches no tool. Everything is pull-based: nothing happens
// until the consumer asks for the next event, and stopping the iteration
// releases the backend stream and prevents any further dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/skosovsky/toolflow"
	"github.com/skosovsky/toolflow/chat"
	"github.com/skosovsky/toolflow/stream"
)

var (
	// ErrMaxTurns is returned when a run needs more turns than allowed.
	ErrMaxTurns = errors.New("engine: max turns exceeded")
	// ErrRunStarted is returned when Events is iterated a second time.
	ErrRunStarted = errors.New("engine: run already started")
)

// Engine binds a backend to a registry. It is safe for concurrent use; each
// Run owns its own conversation.
type Engine struct {
	backend  chat.Backend
	registry *toolflow.Registry
	opts     options
}

// New creates an Engine.
func New(backend chat.Backend, registry *toolflow.Registry, opts ...Option) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("engine: backend is required")
	}
	if registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	o := options{maxTurns: DefaultMaxTurns}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Engine{backend: backend, registry: registry, opts: o}, nil
}

// Start seeds a conversation with a system directive and the user's message.
// An empty system directive is omitted. The run does nothing until Events is
// iterated.
func (e *Engine) Start(system, user string) *Run {
	var msgs []chat.Message
	if system != "" {
		msgs = append(msgs, chat.System(system))
	}
	msgs = append(msgs, chat.User(user))
	id := uuid.NewString()
	return &Run{
		id:       id,
		engine:   e,
		logger:   e.opts.logger.With("run_id", id),
		messages: msgs,
		state:    StateAwaitingResponse,
	}
}

// Run is one conversation. Its event sequence can be consumed once.
type Run struct {
	id      string
	engine  *Engine
	logger  *slog.Logger
	started atomic.Bool

	mu       sync.Mutex
	messages []chat.Message
	state    State
}

// ID returns the run correlation id.
func (r *Run) ID() string { return r.id }

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Messages returns a copy of the conversation so far.
func (r *Run) Messages() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return chat.CloneMessages(r.messages)
}

// Events returns the run's lazy event sequence. A failure is yielded once as
// the error element and ends the sequence. Iterating a second time yields
// ErrRunStarted.
func (r *Run) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if !r.started.CompareAndSwap(false, true) {
			yield(Event{}, ErrRunStarted)
			return
		}
		r.loop(ctx, yield)
	}
}

func (r *Run) loop(ctx context.Context, yield func(Event, error) bool) {
	maxTurns := r.engine.opts.maxTurns
	for turn := 1; ; turn++ {
		if turn > maxTurns {
			r.fail(yield, fmt.Errorf("%w: limit %d", ErrMaxTurns, maxTurns))
			return
		}
		if err := ctx.Err(); err != nil {
			r.fail(yield, fmt.Errorf("turn %d: %w", turn, err))
			return
		}
		r.setState(StateAwaitingResponse)
		if !yield(Event{Type: EventTurnStart, Turn: turn}, nil) {
			r.abandon()
			return
		}
		dispatched, ok := r.turn(ctx, turn, yield)
		if !ok {
			return
		}
		if dispatched == 0 {
			r.setState(StateDone)
			r.logger.Debug("run done", "turns", turn)
			return
		}
	}
}

// turn runs one model turn. ok is false when the sequence must end.
func (r *Run) turn(ctx context.Context, turn int, yield func(Event, error) bool) (dispatched int, ok bool) {
	req := chat.Request{
		Model:      r.engine.opts.model,
		Messages:   r.Messages(),
		Tools:      r.engine.registry.Declarations(),
		ToolChoice: r.engine.opts.toolChoice,
	}
	agg := stream.New(r.logger)
	r.setState(StateStreaming)

	var text strings.Builder
	for frag, err := range agg.Run(r.engine.backend.Stream(ctx, req)) {
		if err != nil {
			r.fail(yield, fmt.Errorf("turn %d: %w", turn, err))
			return 0, false
		}
		text.WriteString(frag)
		if !yield(Event{Type: EventText, Turn: turn, Content: frag}, nil) {
			r.abandon()
			return 0, false
		}
	}

	assistant := r.appendMessage(chat.Message{Role: chat.RoleAssistant, Content: text.String()})
	records := agg.Records()
	r.logger.Debug("turn streamed",
		"turn", turn, "text_len", text.Len(), "tool_calls", len(records), "discarded", agg.Discarded())

	r.setState(StateDispatching)
	for _, rec := range records {
		if !yield(Event{Type: EventToolCallRequest, Turn: turn, ID: rec.ID, Name: rec.Name, Arguments: rec.Arguments}, nil) {
			r.abandon()
			return dispatched, false
		}
		if _, found := r.engine.registry.Lookup(rec.Name); !found {
			r.logger.Warn("model requested unknown tool", "turn", turn, "tool", rec.Name, "call_id", rec.ID)
			continue
		}
		if err := ctx.Err(); err != nil {
			r.fail(yield, fmt.Errorf("turn %d: %w", turn, err))
			return dispatched, false
		}
		r.attachCall(assistant, rec)
		content, err := r.engine.registry.Execute(ctx, rec)
		if err != nil {
			r.detachCall(assistant)
			r.fail(yield, fmt.Errorf("turn %d: tool %q: %w", turn, rec.Name, err))
			return dispatched, false
		}
		r.appendMessage(chat.ToolResult(rec.ID, content))
		dispatched++
		if !yield(Event{Type: EventToolCallResponse, Turn: turn, ID: rec.ID, Content: content}, nil) {
			r.abandon()
			return dispatched, false
		}
	}
	return dispatched, true
}

func (r *Run) appendMessage(m chat.Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return len(r.messages) - 1
}

func (r *Run) attachCall(i int, call chat.ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[i].ToolCalls = append(r.messages[i].ToolCalls, call)
}

// detachCall drops the reference attached last, for a call that never
// produced a tool result.
func (r *Run) detachCall(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.messages[i].ToolCalls
	if len(calls) == 0 {
		return
	}
	r.messages[i].ToolCalls = calls[:len(calls)-1]
	if len(r.messages[i].ToolCalls) == 0 {
		r.messages[i].ToolCalls = nil
	}
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *Run) fail(yield func(Event, error) bool, err error) {
	r.setState(StateFailed)
	r.logger.Debug("run failed", "error", err)
	yield(Event{}, err)
}

func (r *Run) abandon() {
	r.setState(StateAbandoned)
	r.logger.Debug("run abandoned by consumer")
}
