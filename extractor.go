package toolflow

import (
	"github.com/skosovsky/toolflow/schema"
)

// Extractor provides schema generation and two-layer validation (schema +
// Validatable) for type T without binding to the Tool interface. Use it in
// custom orchestrators that need the declaration and validated parsing but
// not the standard Execute pipeline.
type Extractor[T any] struct {
	schema schema.Schema
	strict bool
}

// NewExtractor creates an Extractor for struct type T. When strict is true the
// exported declaration requires every property and forbids extra ones.
func NewExtractor[T any](strict bool) (*Extractor[T], error) {
	s, err := schema.Reflect[T]()
	if err != nil {
		return nil, err
	}
	if err := checkToolSchema(s, strict); err != nil {
		return nil, err
	}
	return &Extractor[T]{schema: s, strict: strict}, nil
}

// Schema returns the reflected argument schema. Callers must not mutate it.
func (e *Extractor[T]) Schema() schema.Schema { return e.schema }

// Parameters returns the JSON Schema document advertised to the model.
func (e *Extractor[T]) Parameters() map[string]any {
	return declarationParams(e.schema, e.strict)
}

// ParseAndValidate decodes rawArgs, runs Layer 1 (schema validation), decodes
// the normalized value into T and runs Layer 2 (Validatable.Validate() if T
// implements it). Failures are ClientErrors the model can act on.
func (e *Extractor[T]) ParseAndValidate(rawArgs string) (T, error) {
	var zero T
	val, err := parseArgs(e.schema, rawArgs)
	if err != nil {
		return zero, err
	}
	var args T
	if err := val.Decode(&args); err != nil {
		return zero, decodeError(err)
	}
	if err := runLayer2Validation(args); err != nil {
		return zero, validationError(err)
	}
	return args, nil
}
