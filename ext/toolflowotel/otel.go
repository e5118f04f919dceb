// Package toolflowotel traces tool executions with OpenTelemetry.
package toolflowotel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/toolflow"
)

const instrumentationName = "github.com/skosovsky/toolflow/ext/toolflowotel"

type config struct {
	provider trace.TracerProvider
}

// Option configures the tracing middleware.
type Option func(*config)

// WithTracerProvider sets the provider spans are created from. Default is
// otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.provider = tp
	}
}

// Middleware returns a toolflow.Middleware that wraps each execution in a
// span named "tool <name>". Failed executions get an error status; for a
// SystemError the hidden cause is recorded on the span.
func Middleware(opts ...Option) toolflow.Middleware {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.provider == nil {
		cfg.provider = otel.GetTracerProvider()
	}
	tracer := cfg.provider.Tracer(instrumentationName)
	return func(next toolflow.Tool) toolflow.Tool {
		return &tracedTool{ToolBase: toolflow.ToolBase{Next: next}, tracer: tracer}
	}
}

type tracedTool struct {
	toolflow.ToolBase
	tracer trace.Tracer
}

func (t *tracedTool) Execute(ctx context.Context, rawArgs string) (string, error) {
	name := t.Next.Name()
	ctx, span := t.tracer.Start(ctx, "tool "+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.Int("tool.args_len", len(rawArgs)),
		))
	defer span.End()

	if tm, ok := t.Next.(toolflow.ToolMetadata); ok {
		span.SetAttributes(attribute.Bool("tool.dangerous", tm.IsDangerous()))
		if v := tm.Version(); v != "" {
			span.SetAttributes(attribute.String("tool.version", v))
		}
		if tags := tm.Tags(); len(tags) > 0 {
			span.SetAttributes(attribute.StringSlice("tool.tags", tags))
		}
	}

	out, err := t.Next.Execute(ctx, rawArgs)
	if err != nil {
		class := errorClass(err)
		span.SetAttributes(attribute.String("tool.error_class", class))
		var se *toolflow.SystemError
		if errors.As(err, &se) && se.Err != nil {
			span.RecordError(se.Err)
		} else {
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, class+" error")
		return "", err
	}
	span.SetAttributes(attribute.Int("tool.result_len", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func errorClass(err error) string {
	switch {
	case toolflow.IsClientError(err):
		return "client"
	case toolflow.IsSystemError(err):
		return "system"
	default:
		return "unknown"
	}
}
