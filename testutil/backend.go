package testutil

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/skosovsky/toolflow/chat"
)

// Turn configures one model response in a scripted sequence. Err, when set,
// is yielded after Deltas.
type Turn struct {
	Deltas []chat.Delta
	Err    error
}

// ScriptedBackend is a deterministic chat.Backend for engine tests. Each
// Stream call consumes the next Turn once iteration starts.
type ScriptedBackend struct {
	mu       sync.Mutex
	index    int
	turns    []Turn
	requests []chat.Request
	opened   int
	closed   int
}

// NewScriptedBackend returns a backend that plays turns in order.
func NewScriptedBackend(turns ...Turn) *ScriptedBackend {
	cloned := make([]Turn, len(turns))
	copy(cloned, turns)
	return &ScriptedBackend{turns: cloned}
}

var _ chat.Backend = (*ScriptedBackend)(nil)

// Stream plays the next scripted turn. An exhausted script yields an error.
func (b *ScriptedBackend) Stream(ctx context.Context, req chat.Request) iter.Seq2[chat.Delta, error] {
	return func(yield func(chat.Delta, error) bool) {
		b.mu.Lock()
		req.Messages = chat.CloneMessages(req.Messages)
		b.requests = append(b.requests, req)
		var current Turn
		if b.index < len(b.turns) {
			current = b.turns[b.index]
		} else {
			current = Turn{Err: fmt.Errorf("script exhausted at turn %d", b.index+1)}
		}
		b.index++
		b.opened++
		b.mu.Unlock()

		defer func() {
			b.mu.Lock()
			b.closed++
			b.mu.Unlock()
		}()
		for _, d := range current.Deltas {
			if err := ctx.Err(); err != nil {
				yield(chat.Delta{}, err)
				return
			}
			if !yield(d, nil) {
				return
			}
		}
		if current.Err != nil {
			yield(chat.Delta{}, current.Err)
		}
	}
}

// Requests returns every request received so far.
func (b *ScriptedBackend) Requests() []chat.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]chat.Request(nil), b.requests...)
}

// Streams reports how many streams were started and how many were released.
func (b *ScriptedBackend) Streams() (opened, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened, b.closed
}

// Text returns a delta carrying a text fragment.
func Text(s string) chat.Delta {
	return chat.Delta{Text: s}
}

// Call returns a delta carrying one tool-call fragment. An empty id makes it
// a continuation of the call at index.
func Call(index int, id, name, args string) chat.Delta {
	return chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: index, ID: id, Name: name, Arguments: args}}}
}
