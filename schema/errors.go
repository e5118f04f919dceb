package schema

import (
	"errors"
	"fmt"
	"strconv"
)

// RootPath locates the value being validated. Object members extend it with
// ".name" and array items with "[i]".
const RootPath = "$"

// ErrInvalid is matched by every *ValidationError via errors.Is.
var ErrInvalid = errors.New("schema validation failed")

// ValidationError reports the first constraint a value violated.
type ValidationError struct {
	Path    string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

// Is makes errors.Is(err, ErrInvalid) true for validation errors.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func fail(path string, raw any, format string, args ...any) error {
	return &ValidationError{Path: path, Message: fmt.Sprintf(format, args...), Value: raw}
}

func memberPath(parent, name string) string {
	return parent + "." + name
}

func itemPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}
