package toolflow

import (
	"context"
	"time"

	"github.com/skosovsky/toolflow/chat"
	"github.com/skosovsky/toolflow/schema"
)

// Tool is the contract for a model-callable capability. It knows nothing
// about a particular model provider.
type Tool interface {
	Name() string
	Description() string
	// Schema describes the accepted arguments. It is always an *schema.Object
	// for tools built by this package.
	Schema() schema.Schema
	// Execute decodes and validates rawArgs, runs the handler and returns its
	// text result. Errors follow the ClientError / SystemError taxonomy.
	Execute(ctx context.Context, rawArgs string) (string, error)
}

// ToolMetadata is implemented by tools created with the constructors in this
// package. Registry uses Timeout() to override its default execution timeout;
// Strict() shapes the exported declaration.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
	Version() string
	IsDangerous() bool
	Strict() bool
}

// Declare exports t as a declaration for the model backend.
func Declare(t Tool) chat.ToolDeclaration {
	strict := false
	if tm, ok := t.(ToolMetadata); ok {
		strict = tm.Strict()
	}
	return chat.ToolDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  declarationParams(t.Schema(), strict),
		Strict:      strict,
	}
}

// Call is the text-in, text-out boundary between the engine and a tool. Any
// failure, including a panic, is converted into an error payload (see
// ErrorPayload), so Call never fails.
func Call(ctx context.Context, t Tool, rawArgs string) string {
	out, err := invoke(ctx, t, rawArgs)
	if err != nil {
		return errorPayload(err)
	}
	return out
}

func invoke(ctx context.Context, t Tool, rawArgs string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = ""
			err = &SystemError{Err: &panicError{p: p}}
		}
	}()
	out, err = t.Execute(ctx, rawArgs)
	if err != nil {
		return "", wrapHandlerError(err)
	}
	return out, nil
}
