package engine

import (
	"log/slog"

	"github.com/skosovsky/toolflow/chat"
)

// DefaultMaxTurns bounds a run unless WithMaxTurns says otherwise.
const DefaultMaxTurns = 16

type options struct {
	logger     *slog.Logger
	maxTurns   int
	toolChoice chat.ToolChoice
	model      string
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger for protocol violations, unknown tools and turn
// diagnostics. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxTurns bounds the number of model turns in one run. Exceeding it
// fails the run with ErrMaxTurns. Values below 1 are ignored.
func WithMaxTurns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

// WithToolChoice sets the tool-selection policy sent with every request.
func WithToolChoice(choice chat.ToolChoice) Option {
	return func(o *options) {
		o.toolChoice = choice
	}
}

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(o *options) {
		o.model = model
	}
}
