// Package toolflow defines tools a language model can call and the registry
// that executes them.
//
// # Overview
//
// A model requests a tool by name with JSON argument text. A Tool declares a
// schema.Schema describing the accepted arguments; Execute decodes the text,
// validates it against that schema (the same one advertised to the model) and
// hands the normalized schema.Value to a handler.
//
// Pipeline: handler + schema → NewTool / NewTypedTool / NewDynamicTool → Tool
// → Registry → Call (decode, validate, invoke, serialize or report).
//
// # Key concepts
//
//   - Single Source of Truth: the declaration sent to the model is exported
//     from the schema used for validation.
//   - Contained failures: Call never returns an error. Decode, validation and
//     handler failures become a JSON error payload the model can read and
//     correct.
//   - Self-Correction: ClientError carries a model-visible reason; SystemError
//     hides internal details.
//
// The engine package drives the conversation loop and uses a Registry to
// dispatch the tool calls the model makes.
//
// # Example
//
//	type Args struct {
//	    City string `json:"city" description:"City name"`
//	}
//	type Out struct {
//	    Temp float64 `json:"temp"`
//	}
//	tool, err := toolflow.NewTypedTool("weather", "Get weather", func(_ context.Context, a Args) (Out, error) {
//	    return Out{Temp: 22.5}, nil
//	})
//	if err != nil { ... }
//	reg := toolflow.NewRegistry()
//	reg.Register(tool)
//	out, err := reg.Execute(ctx, chat.ToolCall{ID: "1", Name: "weather", Arguments: `{"city":"Moscow"}`})
package toolflow
