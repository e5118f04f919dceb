package toolflow

import (
	"context"
	"time"

	"github.com/skosovsky/toolflow/chat"
)

// toolOptions hold optional tool settings (timeout, strict, tags, etc.).
type toolOptions struct {
	strict    bool
	timeout   time.Duration
	tags      []string
	version   string
	dangerous bool
}

// ToolOption configures a tool (e.g. WithStrict, WithTimeout).
type ToolOption func(*toolOptions)

// WithStrict marks the declaration strict: additionalProperties: false for
// all objects and every property listed as required. Use for OpenAI
// Structured Outputs compatibility. Validation itself is unchanged.
func WithStrict() ToolOption {
	return func(o *toolOptions) {
		o.strict = true
	}
}

// WithTimeout sets a per-tool timeout, honored by Registry.Execute.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) {
		o.timeout = d
	}
}

// WithTags sets tool tags (metadata for discovery).
func WithTags(tags ...string) ToolOption {
	return func(o *toolOptions) {
		o.tags = tags
	}
}

// WithVersion sets the tool version.
func WithVersion(version string) ToolOption {
	return func(o *toolOptions) {
		o.version = version
	}
}

// WithDangerous marks the tool as dangerous (a host may require confirmation).
func WithDangerous() ToolOption {
	return func(o *toolOptions) {
		o.dangerous = true
	}
}

func applyToolOptions(opts []ToolOption) toolOptions {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	timeout        time.Duration
	maxConcurrency int
	onBefore       func(context.Context, chat.ToolCall)
	onAfter        func(context.Context, chat.ToolCall, ExecutionSummary)
}

// ExecutionSummary is passed to the after-execution hook when a tool call
// finishes, successfully or not.
type ExecutionSummary struct {
	CallID   string
	ToolName string
	Error    error
	Bytes    int
	Duration time.Duration
}

// WithDefaultTimeout sets the default execution timeout for tools.
// Zero disables it.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(o *registryOptions) {
		o.timeout = d
	}
}

// WithMaxConcurrency limits concurrent tool executions across all callers
// sharing the registry. Pass 0 or negative for no limit.
func WithMaxConcurrency(n int) RegistryOption {
	return func(o *registryOptions) {
		o.maxConcurrency = n
	}
}

// WithOnBeforeExecute sets a hook called before each tool execution.
func WithOnBeforeExecute(fn func(context.Context, chat.ToolCall)) RegistryOption {
	return func(o *registryOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterExecute sets a hook called after each tool execution.
func WithOnAfterExecute(fn func(context.Context, chat.ToolCall, ExecutionSummary)) RegistryOption {
	return func(o *registryOptions) {
		o.onAfter = fn
	}
}
