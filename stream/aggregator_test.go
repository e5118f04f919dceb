package stream

import (
	"bytes"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolflow/chat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func seq(deltas ...chat.Delta) iter.Seq2[chat.Delta, error] {
	return func(yield func(chat.Delta, error) bool) {
		for _, d := range deltas {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func failing(err error, deltas ...chat.Delta) iter.Seq2[chat.Delta, error] {
	return func(yield func(chat.Delta, error) bool) {
		for _, d := range deltas {
			if !yield(d, nil) {
				return
			}
		}
		yield(chat.Delta{}, err)
	}
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestRun_ConcatenatesFragmentsPerIndex(t *testing.T) {
	a := New(nil)
	deltas := seq(
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 0, ID: "call_1", Name: "look"}}},
		chat.Delta{Text: "Sure"},
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 0, Name: "up", Arguments: `{"q"`}}},
		chat.Delta{ToolCalls: []chat.ToolCallDelta{
			{Index: 1, ID: "call_2", Name: "fetch", Arguments: `{`},
			{Index: 0, Arguments: `:"x"}`},
		}},
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 1, Arguments: `}`}}},
	)

	var text []string
	for frag, err := range a.Run(deltas) {
		require.NoError(t, err)
		text = append(text, frag)
	}
	assert.Equal(t, []string{"Sure"}, text)
	assert.True(t, a.Finished())
	assert.Equal(t, []chat.ToolCall{
		{Index: 0, ID: "call_1", Name: "lookup", Arguments: `{"q":"x"}`},
		{Index: 1, ID: "call_2", Name: "fetch", Arguments: `{}`},
	}, a.Records())
}

func TestRun_RecordsInIndexOrder(t *testing.T) {
	a := New(nil)
	for range a.Run(seq(
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 2, ID: "c", Name: "third"}}},
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 0, ID: "a", Name: "first"}}},
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 1, ID: "b", Name: "second"}}},
	)) {
	}
	records := a.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, "c", records[2].ID)
}

func TestRun_OrphanFragmentDiscarded(t *testing.T) {
	logger, buf := bufferLogger()
	a := New(logger)
	for _, err := range a.Run(seq(
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 3, Arguments: `{"lost":true}`}}},
		chat.Delta{Text: "still here"},
	)) {
		require.NoError(t, err)
	}
	assert.Empty(t, a.Records())
	assert.Equal(t, 1, a.Discarded())
	assert.True(t, a.Finished())
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "index=3")
}

func TestRun_IDRestartsRecord(t *testing.T) {
	a := New(nil)
	for range a.Run(seq(
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 0, ID: "old", Name: "a", Arguments: "1"}}},
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 0, ID: "new", Name: "b", Arguments: "2"}}},
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 0, Arguments: "3"}}},
	)) {
	}
	assert.Equal(t, []chat.ToolCall{{Index: 0, ID: "new", Name: "b", Arguments: "23"}}, a.Records())
}

func TestRun_BackendErrorEndsSequence(t *testing.T) {
	boom := errors.New("connection reset")
	a := New(nil)
	var texts []string
	var errs []error
	for frag, err := range a.Run(failing(boom, chat.Delta{Text: "partial"})) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		texts = append(texts, frag)
	}
	assert.Equal(t, []string{"partial"}, texts)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.False(t, a.Finished())
}

func TestRun_LazyAndStoppable(t *testing.T) {
	pulled := 0
	deltas := func(yield func(chat.Delta, error) bool) {
		for _, text := range []string{"a", "b", "c"} {
			pulled++
			if !yield(chat.Delta{Text: text}, nil) {
				return
			}
		}
	}
	a := New(nil)
	frags := a.Run(deltas)
	assert.Zero(t, pulled, "nothing is read before iteration")
	for frag := range frags {
		if frag == "a" {
			break
		}
	}
	assert.Equal(t, 1, pulled)
	assert.False(t, a.Finished())
}

func TestRun_SkipsEmptyText(t *testing.T) {
	a := New(nil)
	var texts []string
	for frag := range a.Run(seq(chat.Delta{}, chat.Delta{Text: ""}, chat.Delta{Text: "x"})) {
		texts = append(texts, frag)
	}
	assert.Equal(t, []string{"x"}, texts)
}

func TestAggregate(t *testing.T) {
	turn, err := Aggregate(seq(
		chat.Delta{Text: "Sure, "},
		chat.Delta{Text: "let me check."},
		chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: 0, ID: "call_1", Name: "lookup", Arguments: `{"q":"x"}`}}},
	), nil)
	require.NoError(t, err)
	assert.Equal(t, "Sure, let me check.", turn.Text)
	assert.Equal(t, []chat.ToolCall{{Index: 0, ID: "call_1", Name: "lookup", Arguments: `{"q":"x"}`}}, turn.ToolCalls)

	boom := errors.New("boom")
	turn, err = Aggregate(failing(boom, chat.Delta{Text: "half"}), nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "half", turn.Text)
}

// FuzzRun splits a name and argument text into arbitrary fragments and checks
// the reassembled record equals the concatenation.
func FuzzRun(f *testing.F) {
	f.Add("lookup", `{"q":"x"}`, uint8(3))
	f.Add("", "", uint8(0))
	f.Add("a_very_long_tool_name", `{"nested":{"list":[1,2,3]}}`, uint8(255))
	f.Fuzz(func(t *testing.T, name, args string, cut uint8) {
		step := int(cut%7) + 1
		nameParts := chunk(name, step)
		argParts := chunk(args, step+1)
		deltas := []chat.Delta{{ToolCalls: []chat.ToolCallDelta{{Index: 0, ID: "id"}}}}
		for i := 0; i < max(len(nameParts), len(argParts)); i++ {
			var d chat.ToolCallDelta
			if i < len(nameParts) {
				d.Name = nameParts[i]
			}
			if i < len(argParts) {
				d.Arguments = argParts[i]
			}
			deltas = append(deltas, chat.Delta{ToolCalls: []chat.ToolCallDelta{d}})
		}
		logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
		turn, err := Aggregate(seq(deltas...), logger)
		if err != nil {
			t.Fatal(err)
		}
		if len(turn.ToolCalls) != 1 {
			t.Fatalf("records = %d, want 1", len(turn.ToolCalls))
		}
		if got := turn.ToolCalls[0]; got.Name != name || got.Arguments != args {
			t.Fatalf("got %q/%q, want %q/%q", got.Name, got.Arguments, name, args)
		}
	})
}

func chunk(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
