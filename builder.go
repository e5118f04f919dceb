package toolflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/skosovsky/toolflow/schema"
)

// Handler receives the validated arguments of a call and returns the text
// result sent back to the model.
type Handler func(ctx context.Context, args schema.Value) (string, error)

var (
	errNilHandler  = errors.New("tool handler must not be nil")
	errInvalidName = errors.New("tool name must match ^[a-zA-Z0-9_-]{1,64}$")
	toolNameRe     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// tool is the internal implementation of Tool built by NewTool, NewTypedTool
// or NewDynamicTool.
type tool struct {
	name        string
	description string
	schema      schema.Schema
	handler     Handler
	opts        toolOptions
}

// NewTool builds a Tool from an explicit object schema. handler receives the
// validated, normalized value; it never sees raw text.
func NewTool(name, description string, s schema.Schema, handler Handler, opts ...ToolOption) (Tool, error) {
	o := applyToolOptions(opts)
	if err := checkTool(name, handler != nil); err != nil {
		return nil, err
	}
	if err := checkToolSchema(s, o.strict); err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	return &tool{name: name, description: description, schema: s, handler: handler, opts: o}, nil
}

// NewTypedTool builds a Tool from a typed function. The schema is reflected
// from T and validation is delegated to Extractor[T]. A string result is
// returned as-is; any other R is marshaled to JSON.
func NewTypedTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) (Tool, error) {
	o := applyToolOptions(opts)
	if err := checkTool(name, fn != nil); err != nil {
		return nil, err
	}
	ext, err := NewExtractor[T](o.strict)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	handler := func(ctx context.Context, val schema.Value) (string, error) {
		var args T
		if err := val.Decode(&args); err != nil {
			return "", decodeError(err)
		}
		if err := runLayer2Validation(args); err != nil {
			return "", validationError(err)
		}
		res, err := fn(ctx, args)
		if err != nil {
			return "", wrapHandlerError(err)
		}
		if s, ok := any(res).(string); ok {
			return s, nil
		}
		b, err := json.Marshal(res)
		if err != nil {
			return "", &SystemError{Err: err}
		}
		return string(b), nil
	}
	return &tool{name: name, description: description, schema: ext.Schema(), handler: handler, opts: o}, nil
}

// NewDynamicTool creates a Tool from a JSON Schema document, e.g. one loaded
// at runtime from an API description. Property order follows the document.
func NewDynamicTool(name, description string, jsonSchema []byte, handler Handler, opts ...ToolOption) (Tool, error) {
	if len(jsonSchema) == 0 {
		return nil, errors.New("dynamic schema must not be empty")
	}
	s, err := schema.Parse(jsonSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %q: failed to parse dynamic schema: %w", name, err)
	}
	return NewTool(name, description, s, handler, opts...)
}

func checkTool(name string, hasHandler bool) error {
	if !toolNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", errInvalidName, name)
	}
	if !hasHandler {
		return fmt.Errorf("tool %q: %w", name, errNilHandler)
	}
	return nil
}

func (t *tool) Name() string          { return t.name }
func (t *tool) Description() string   { return t.description }
func (t *tool) Schema() schema.Schema { return t.schema }

func (t *tool) Execute(ctx context.Context, rawArgs string) (string, error) {
	val, err := parseArgs(t.schema, rawArgs)
	if err != nil {
		return "", err
	}
	out, err := t.handler(ctx, val)
	if err != nil {
		return "", wrapHandlerError(err)
	}
	return out, nil
}

func (t *tool) Timeout() time.Duration { return t.opts.timeout }
func (t *tool) Tags() []string         { return append([]string(nil), t.opts.tags...) }
func (t *tool) Version() string        { return t.opts.version }
func (t *tool) IsDangerous() bool      { return t.opts.dangerous }
func (t *tool) Strict() bool           { return t.opts.strict }

var (
	_ Tool         = (*tool)(nil)
	_ ToolMetadata = (*tool)(nil)
)
