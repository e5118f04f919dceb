// Package stream reassembles one model turn from its streamed deltas.
//
// Text fragments pass straight through while tool-call fragments are merged
// per stream index: a fragment carrying an id starts the call at its index,
// and id-less fragments at the same index extend its name and arguments.
package stream

import (
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/skosovsky/toolflow/chat"
)

type pendingCall struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// Aggregator consumes the deltas of a single turn. It is not safe for
// concurrent use; create one per turn.
type Aggregator struct {
	logger    *slog.Logger
	calls     map[int]*pendingCall
	discarded int
	finished  bool
}

// New returns an Aggregator that reports protocol violations to logger.
// A nil logger uses slog.Default().
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger, calls: make(map[int]*pendingCall)}
}

// Run returns the turn's text fragments in arrival order. Nothing is read
// from deltas until the result is iterated. A backend error is yielded once
// and ends the sequence. Tool calls are available from Records once the
// sequence has been drained.
func (a *Aggregator) Run(deltas iter.Seq2[chat.Delta, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for d, err := range deltas {
			if err != nil {
				yield("", err)
				return
			}
			for _, tc := range d.ToolCalls {
				a.merge(tc)
			}
			if d.Text == "" {
				continue
			}
			if !yield(d.Text, nil) {
				return
			}
		}
		a.finished = true
	}
}

func (a *Aggregator) merge(tc chat.ToolCallDelta) {
	if tc.ID != "" {
		if prev, ok := a.calls[tc.Index]; ok {
			a.logger.Debug("tool call restarted at index", "index", tc.Index, "previous_id", prev.id, "id", tc.ID)
		}
		call := &pendingCall{id: tc.ID}
		call.name.WriteString(tc.Name)
		call.args.WriteString(tc.Arguments)
		a.calls[tc.Index] = call
		return
	}
	call, ok := a.calls[tc.Index]
	if !ok {
		a.discarded++
		a.logger.Warn("discarding tool call fragment at unknown index",
			"index", tc.Index, "name", tc.Name, "arguments_len", len(tc.Arguments))
		return
	}
	call.name.WriteString(tc.Name)
	call.args.WriteString(tc.Arguments)
}

// Records returns the reassembled tool calls in ascending index order. The
// slice is a copy.
func (a *Aggregator) Records() []chat.ToolCall {
	out := make([]chat.ToolCall, 0, len(a.calls))
	for _, idx := range slices.Sorted(maps.Keys(a.calls)) {
		call := a.calls[idx]
		out = append(out, chat.ToolCall{
			Index:     idx,
			ID:        call.id,
			Name:      call.name.String(),
			Arguments: call.args.String(),
		})
	}
	return out
}

// Finished reports whether the delta sequence was drained without error.
func (a *Aggregator) Finished() bool { return a.finished }

// Discarded reports how many id-less fragments arrived at an unknown index.
func (a *Aggregator) Discarded() int { return a.discarded }

// Turn is the eager result of Aggregate.
type Turn struct {
	Text      string
	ToolCalls []chat.ToolCall
}

// Aggregate drains deltas and returns the concatenated text and tool calls.
func Aggregate(deltas iter.Seq2[chat.Delta, error], logger *slog.Logger) (Turn, error) {
	a := New(logger)
	var text strings.Builder
	for frag, err := range a.Run(deltas) {
		if err != nil {
			return Turn{Text: text.String(), ToolCalls: a.Records()}, err
		}
		text.WriteString(frag)
	}
	return Turn{Text: text.String(), ToolCalls: a.Records()}, nil
}
