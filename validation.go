package toolflow

import (
	"reflect"
	"strings"

	"github.com/skosovsky/toolflow/schema"
)

// Validatable is implemented by argument structs that need custom business
// validation. Called after schema validation and decoding.
type Validatable interface {
	Validate() error
}

// parseArgs decodes raw argument text and validates it against s. Blank text
// is read as an empty object, which is what providers send for tools without
// parameters.
func parseArgs(s schema.Schema, rawArgs string) (schema.Value, error) {
	text := strings.TrimSpace(rawArgs)
	if text == "" {
		text = "{}"
	}
	v, err := schema.Decode([]byte(text))
	if err != nil {
		return schema.Value{}, decodeError(err)
	}
	val, err := schema.Validate(s, v)
	if err != nil {
		return schema.Value{}, validationError(err)
	}
	return val, nil
}

// validateCustom runs Layer 2 (Validatable) if args implements it.
func validateCustom(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// runLayer2Validation runs Validatable.Validate() on args; if args does not
// implement Validatable it tries &args for value types (pointer receiver).
// Validate is never called twice for the same receiver.
func runLayer2Validation[T any](args T) error {
	if err := validateCustom(any(args)); err != nil {
		return err
	}
	if _, ok := any(args).(Validatable); ok {
		return nil
	}
	typ := reflect.TypeOf(args)
	if typ == nil || typ.Kind() == reflect.Pointer {
		return nil
	}
	return validateCustom(any(&args))
}
