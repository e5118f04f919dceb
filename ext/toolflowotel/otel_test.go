package toolflowotel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolflow"
	"github.com/skosovsky/toolflow/chat"
	"github.com/skosovsky/toolflow/schema"
	"github.com/skosovsky/toolflow/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	})
	return rec, tp
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestMiddleware_SuccessSpan(t *testing.T) {
	rec, tp := newRecorder(t)
	tool, err := toolflow.NewTool("lookup", "d", &schema.Object{}, func(context.Context, schema.Value) (string, error) {
		return "found", nil
	}, toolflow.WithTags("search"), toolflow.WithVersion("1.2.0"))
	require.NoError(t, err)

	wrapped := Middleware(WithTracerProvider(tp))(tool)
	out, err := wrapped.Execute(context.Background(), `{}`)
	require.NoError(t, err)
	assert.Equal(t, "found", out)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "tool lookup", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)
	a := attrs(span)
	assert.Equal(t, "lookup", a["tool.name"].AsString())
	assert.Equal(t, int64(2), a["tool.args_len"].AsInt64())
	assert.Equal(t, int64(5), a["tool.result_len"].AsInt64())
	assert.Equal(t, "1.2.0", a["tool.version"].AsString())
	assert.Equal(t, []string{"search"}, a["tool.tags"].AsStringSlice())
	assert.False(t, a["tool.dangerous"].AsBool())
}

func TestMiddleware_ErrorSpans(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass string
		wantEvent string
	}{
		{"client", &toolflow.ClientError{Reason: "bad input"}, "client", "invalid tool input: bad input"},
		{"system", &toolflow.SystemError{Err: errors.New("db down")}, "system", "db down"},
		{"plain", errors.New("plain"), "unknown", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, tp := newRecorder(t)
			mock := &testutil.MockTool{NameVal: "failing", ExecuteFn: func(context.Context, string) (string, error) {
				return "", tt.err
			}}
			_, err := Middleware(WithTracerProvider(tp))(mock).Execute(context.Background(), `{}`)
			require.ErrorIs(t, err, tt.err)

			spans := rec.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			assert.Equal(t, tt.wantClass, attrs(spans[0])["tool.error_class"].AsString())
			events := spans[0].Events()
			require.NotEmpty(t, events)
			var msg string
			for _, kv := range events[0].Attributes {
				if kv.Key == "exception.message" {
					msg = kv.Value.AsString()
				}
			}
			assert.Equal(t, tt.wantEvent, msg)
		})
	}
}

func TestMiddleware_ThroughRegistry(t *testing.T) {
	rec, tp := newRecorder(t)
	reg := toolflow.NewRegistry()
	reg.Register(&testutil.MockTool{NameVal: "a"}, &testutil.MockTool{NameVal: "b"})
	reg.Use(toolflow.WithRecovery(), Middleware(WithTracerProvider(tp)))

	_, err := reg.Execute(context.Background(), chat.ToolCall{ID: "1", Name: "a", Arguments: `{}`})
	require.NoError(t, err)
	_, err = reg.Execute(context.Background(), chat.ToolCall{ID: "2", Name: "b", Arguments: `{}`})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "tool a", spans[0].Name())
	assert.Equal(t, "tool b", spans[1].Name())
}

func TestMiddleware_PreservesMetadata(t *testing.T) {
	_, tp := newRecorder(t)
	tool, err := toolflow.NewTool("meta", "d", &schema.Object{}, func(context.Context, schema.Value) (string, error) {
		return "", nil
	}, toolflow.WithDangerous(), toolflow.WithTimeout(time.Minute))
	require.NoError(t, err)
	wrapped := Middleware(WithTracerProvider(tp))(tool)
	tm, ok := wrapped.(toolflow.ToolMetadata)
	require.True(t, ok)
	assert.True(t, tm.IsDangerous())
	assert.Equal(t, time.Minute, tm.Timeout())
	assert.Equal(t, "meta", wrapped.Name())
}

func TestMiddleware_DefaultProvider(t *testing.T) {
	mock := &testutil.MockTool{NameVal: "noop"}
	out, err := Middleware()(mock).Execute(context.Background(), `{}`)
	require.NoError(t, err)
	assert.Empty(t, out)
}
