package toolflow

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/toolflow/chat"
	"github.com/skosovsky/toolflow/schema"
)

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	inner := &minTool{name: "log_me", desc: "desc", execute: func(context.Context, string) (string, error) {
		return `{"ok":true}`, nil
	}}
	wrapped := WithLogging(logger)(inner)
	out, err := wrapped.Execute(context.Background(), `{}`)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	logStr := buf.String()
	assert.Contains(t, logStr, "tool start")
	assert.Contains(t, logStr, "tool end")
	assert.Contains(t, logStr, "log_me")
}

func TestWithLogging_SystemErrorCause(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	inner := &minTool{name: "db", execute: func(context.Context, string) (string, error) {
		return "", &SystemError{Err: errors.New("connection refused")}
	}}
	_, err := WithLogging(logger)(inner).Execute(context.Background(), `{}`)
	require.Error(t, err)
	logStr := buf.String()
	assert.Contains(t, logStr, "tool error")
	assert.Contains(t, logStr, "connection refused")
}

func TestWithRecovery(t *testing.T) {
	inner := &minTool{name: "panic_me", desc: "desc", execute: func(context.Context, string) (string, error) {
		panic("test panic")
	}}
	wrapped := WithRecovery()(inner)
	res, err := wrapped.Execute(context.Background(), `{}`)
	require.Error(t, err)
	assert.Empty(t, res)
	var sysErr *SystemError
	require.ErrorAs(t, err, &sysErr)
	// SystemError hides message; unwrapped error contains "panic"
	assert.Contains(t, sysErr.Err.Error(), "panic")
}

func TestWithTimeoutMiddleware(t *testing.T) {
	inner := &minTool{name: "slow", desc: "desc", execute: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	wrapped := WithTimeoutMiddleware(5 * time.Millisecond)(inner)
	res, err := wrapped.Execute(context.Background(), `{}`)
	require.Error(t, err)
	assert.Empty(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	tm, ok := wrapped.(ToolMetadata)
	require.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, tm.Timeout())
}

func TestToolBase_DelegatesMetadata(t *testing.T) {
	tool, err := NewTool("meta", "desc", &schema.Object{}, func(context.Context, schema.Value) (string, error) {
		return "", nil
	}, WithTags("x"), WithVersion("2"), WithDangerous(), WithStrict(), WithTimeout(time.Minute))
	require.NoError(t, err)
	wrapped := WithRecovery()(WithLogging(nil)(tool))
	tm, ok := wrapped.(ToolMetadata)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, tm.Tags())
	assert.Equal(t, "2", tm.Version())
	assert.True(t, tm.IsDangerous())
	assert.True(t, tm.Strict())
	assert.Equal(t, time.Minute, tm.Timeout())
	assert.Equal(t, "meta", wrapped.Name())
	assert.Equal(t, "desc", wrapped.Description())
	assert.Same(t, tool.Schema(), wrapped.Schema())

	bare := WithRecovery()(&minTool{name: "bare"}).(ToolMetadata)
	assert.Zero(t, bare.Timeout())
	assert.Nil(t, bare.Tags())
	assert.Empty(t, bare.Version())
	assert.False(t, bare.IsDangerous())
	assert.False(t, bare.Strict())
}

func TestRegistry_Use_OnionOrder(t *testing.T) {
	var trace []string
	mark := func(label string) Middleware {
		return func(next Tool) Tool {
			return &tracingTool{ToolBase: ToolBase{Next: next}, label: label, trace: &trace}
		}
	}
	reg := NewRegistry()
	reg.Register(&minTool{name: "t", execute: func(context.Context, string) (string, error) {
		trace = append(trace, "tool")
		return "", nil
	}})
	reg.Use(mark("outer"), mark("inner"))
	_, err := reg.Execute(context.Background(), chat.ToolCall{Name: "t"})
	require.NoError(t, err)
	assert.Equal(t, "outer>inner>tool", strings.Join(trace, ">"))

	trace = nil
	reg.Use(mark("only"))
	_, err = reg.Execute(context.Background(), chat.ToolCall{Name: "t"})
	require.NoError(t, err)
	assert.Equal(t, "only>tool", strings.Join(trace, ">"), "Use replaces the chain without double wrapping")

	trace = nil
	reg.Register(&minTool{name: "late", execute: func(context.Context, string) (string, error) {
		trace = append(trace, "late")
		return "", nil
	}})
	_, err = reg.Execute(context.Background(), chat.ToolCall{Name: "late"})
	require.NoError(t, err)
	assert.Equal(t, "only>late", strings.Join(trace, ">"))
}

type tracingTool struct {
	ToolBase
	label string
	trace *[]string
}

func (m *tracingTool) Execute(ctx context.Context, rawArgs string) (string, error) {
	*m.trace = append(*m.trace, m.label)
	return m.Next.Execute(ctx, rawArgs)
}
