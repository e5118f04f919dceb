package toolflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/skosovsky/toolflow/schema"
)

var errNotObject = errors.New("tool schema must be an object")

// declarationParams exports s as the JSON Schema shown to the model. strict
// sets additionalProperties: false and requires every property.
func declarationParams(s schema.Schema, strict bool) map[string]any {
	params := schema.ToJSON(s)
	if strict {
		applyStrictMode(params)
	}
	return params
}

// walkSchema recursively visits every map node in the schema tree.
func walkSchema(schemaMap map[string]any, visit func(map[string]any)) {
	if schemaMap == nil {
		return
	}
	visit(schemaMap)
	for _, val := range schemaMap {
		switch v := val.(type) {
		case map[string]any:
			walkSchema(v, visit)
		case []any:
			for _, item := range v {
				if m2, ok := item.(map[string]any); ok {
					walkSchema(m2, visit)
				}
			}
		}
	}
}

// applyStrictMode sets additionalProperties: false for every object in the schema.
func applyStrictMode(schemaMap map[string]any) {
	walkSchema(schemaMap, func(n map[string]any) {
		props, isObj := n["properties"].(map[string]any)
		if !isObj {
			return
		}
		n["additionalProperties"] = false
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		if len(keys) > 0 {
			n["required"] = keys
		}
	})
}

// checkToolSchema verifies s is an object schema whose export compiles as a
// JSON Schema document, so the declaration is usable by any provider.
func checkToolSchema(s schema.Schema, strict bool) error {
	if _, ok := s.(*schema.Object); !ok {
		return fmt.Errorf("%w, got %T", errNotObject, s)
	}
	return compileDeclaration(declarationParams(s, strict))
}

func compileDeclaration(params map[string]any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("declaration.json", doc); err != nil {
		return err
	}
	if _, err := c.Compile("declaration.json"); err != nil {
		return fmt.Errorf("declaration does not compile: %w", err)
	}
	return nil
}
