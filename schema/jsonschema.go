package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Parse builds a Schema from a JSON Schema document. Property declaration
// order follows the document. An empty schema ({} or true) and a free-form
// object (additionalProperties without properties) yield a nil Schema, which
// accepts any value. Keywords outside the supported subset ($schema, $id,
// title, pattern, ...) are ignored.
func Parse(data []byte) (Schema, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("schema %s: invalid JSON", RootPath)
	}
	normalized, err := normalize(trimmed, RootPath)
	if err != nil {
		return nil, err
	}
	var doc jsonschema.Schema
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", RootPath, err)
	}
	return fromJSONSchema(&doc, RootPath)
}

// ParseMap builds a Schema from a decoded JSON Schema. Go maps are unordered,
// so properties are declared in lexical order.
func ParseMap(m map[string]any) (Schema, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// normalize rewrites the keyword forms jsonschema.Schema cannot hold: a
// single-element "type" array, and the draft-04 boolean exclusiveMinimum /
// exclusiveMaximum that turn the inclusive bound exclusive. It recurses into
// properties and items.
func normalize(raw json.RawMessage, path string) (json.RawMessage, error) {
	if len(raw) == 0 || raw[0] != '{' {
		return raw, nil
	}
	doc := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}

	if typ, ok := doc.Get("type"); ok {
		var multi []string
		if err := json.Unmarshal(typ, &multi); err == nil {
			if len(multi) != 1 {
				return nil, fmt.Errorf("schema %s: union types %v are not supported", path, multi)
			}
			single, _ := json.Marshal(multi[0])
			doc.Set("type", single)
		}
	}

	for _, kw := range [...]struct{ exclusive, inclusive string }{
		{"exclusiveMinimum", "minimum"},
		{"exclusiveMaximum", "maximum"},
	} {
		v, ok := doc.Get(kw.exclusive)
		if !ok {
			continue
		}
		switch string(bytes.TrimSpace(v)) {
		case "false":
			doc.Delete(kw.exclusive)
		case "true":
			doc.Delete(kw.exclusive)
			if bound, ok := doc.Delete(kw.inclusive); ok {
				doc.Set(kw.exclusive, bound)
			}
		}
	}

	if raw, ok := doc.Get("properties"); ok {
		props := orderedmap.New[string, json.RawMessage]()
		if err := json.Unmarshal(raw, props); err != nil {
			return nil, fmt.Errorf("schema %s: properties: %w", path, err)
		}
		for pair := props.Oldest(); pair != nil; pair = pair.Next() {
			child, err := normalize(bytes.TrimSpace(pair.Value), memberPath(path, pair.Key))
			if err != nil {
				return nil, err
			}
			pair.Value = child
		}
		out, err := json.Marshal(props)
		if err != nil {
			return nil, err
		}
		doc.Set("properties", out)
	}

	if raw, ok := doc.Get("items"); ok {
		items, err := normalize(bytes.TrimSpace(raw), itemPath(path, 0))
		if err != nil {
			return nil, err
		}
		doc.Set("items", items)
	}

	return json.Marshal(doc)
}

func isTrueSchema(js *jsonschema.Schema) bool {
	return js == nil || reflect.DeepEqual(js, jsonschema.TrueSchema) || reflect.DeepEqual(js, &jsonschema.Schema{})
}

func isFalseSchema(js *jsonschema.Schema) bool {
	return js != nil && reflect.DeepEqual(js, jsonschema.FalseSchema)
}

// fromJSONSchema converts a jsonschema.Schema, parsed or reflected, into the
// closed variant set.
func fromJSONSchema(js *jsonschema.Schema, path string) (Schema, error) {
	switch {
	case isTrueSchema(js):
		return nil, nil
	case isFalseSchema(js):
		return nil, fmt.Errorf("schema %s: false schema accepts nothing", path)
	case js.Ref != "":
		return nil, fmt.Errorf("schema %s: $ref %q is not supported", path, js.Ref)
	}
	typ := js.Type
	if typ == "" {
		switch {
		case js.Properties != nil && js.Properties.Len() > 0:
			typ = "object"
		case js.Items != nil:
			typ = "array"
		default:
			return nil, fmt.Errorf("schema %s: missing type", path)
		}
	}

	switch typ {
	case "string":
		return stringFrom(js, path)
	case "number":
		s := &Number{Description: js.Description}
		if err := boundsFrom(js, &s.Minimum, &s.Maximum, &s.ExclusiveMinimum, &s.ExclusiveMaximum, path); err != nil {
			return nil, err
		}
		for _, e := range js.Enum {
			f, ok := toFloat(e)
			if !ok {
				return nil, fmt.Errorf("schema %s: number enum member %v", path, e)
			}
			s.Enum = append(s.Enum, f)
		}
		return s, nil
	case "integer":
		s := &Integer{Description: js.Description}
		if err := boundsFrom(js, &s.Minimum, &s.Maximum, &s.ExclusiveMinimum, &s.ExclusiveMaximum, path); err != nil {
			return nil, err
		}
		for _, e := range js.Enum {
			i, ok := toInt(e)
			if !ok {
				return nil, fmt.Errorf("schema %s: integer enum member %v", path, e)
			}
			s.Enum = append(s.Enum, i)
		}
		return s, nil
	case "boolean":
		return &Boolean{Description: js.Description}, nil
	case "null":
		return &Null{Description: js.Description}, nil
	case "array":
		items, err := fromJSONSchema(js.Items, itemPath(path, 0))
		if err != nil {
			return nil, err
		}
		return &Array{
			Description: js.Description,
			Items:       items,
			MinItems:    intPtr(js.MinItems),
			MaxItems:    intPtr(js.MaxItems),
		}, nil
	case "object":
		if (js.Properties == nil || js.Properties.Len() == 0) &&
			js.AdditionalProperties != nil && !isFalseSchema(js.AdditionalProperties) {
			return nil, nil
		}
		return objectFrom(js, path)
	default:
		return nil, fmt.Errorf("schema %s: unsupported type %q", path, typ)
	}
}

func stringFrom(js *jsonschema.Schema, path string) (Schema, error) {
	s := &String{
		Description: js.Description,
		MinLength:   intPtr(js.MinLength),
		MaxLength:   intPtr(js.MaxLength),
		Format:      Format(js.Format),
	}
	if s.Format != "" && !KnownFormat(s.Format) {
		return nil, fmt.Errorf("schema %s: unsupported format %q", path, s.Format)
	}
	for _, e := range js.Enum {
		str, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("schema %s: string enum member %v", path, e)
		}
		s.Enum = append(s.Enum, str)
	}
	return s, nil
}

func objectFrom(js *jsonschema.Schema, path string) (Schema, error) {
	s := &Object{Description: js.Description, Required: js.Required}
	if js.Properties == nil {
		return s, nil
	}
	for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
		ps, err := fromJSONSchema(pair.Value, memberPath(path, pair.Key))
		if err != nil {
			return nil, err
		}
		prop := Prop(pair.Key, ps)
		if pair.Value != nil && pair.Value.Default != nil {
			prop = prop.WithDefault(pair.Value.Default)
		}
		s.Properties = append(s.Properties, prop)
	}
	return s, nil
}

func boundsFrom(js *jsonschema.Schema, minimum, maximum, exclusiveMin, exclusiveMax **float64, path string) error {
	for _, b := range [...]struct {
		n   json.Number
		dst **float64
	}{
		{js.Minimum, minimum},
		{js.Maximum, maximum},
		{js.ExclusiveMinimum, exclusiveMin},
		{js.ExclusiveMaximum, exclusiveMax},
	} {
		if b.n == "" {
			continue
		}
		f, err := b.n.Float64()
		if err != nil {
			return fmt.Errorf("schema %s: bound %q: %w", path, b.n, err)
		}
		*b.dst = &f
	}
	return nil
}

func intPtr(v *uint64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

// Decode parses JSON argument text for validation. Numbers are kept as
// json.Number so large integers survive, and trailing data is rejected.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// ToJSON exports s as a JSON Schema document suitable for tool declarations.
// A nil Schema exports as the empty schema.
func ToJSON(s Schema) map[string]any {
	out := map[string]any{}
	switch s := s.(type) {
	case *String:
		out["type"] = "string"
		putDescription(out, s.Description)
		putInt(out, "minLength", s.MinLength)
		putInt(out, "maxLength", s.MaxLength)
		if len(s.Enum) > 0 {
			out["enum"] = append([]string(nil), s.Enum...)
		}
		if s.Format != "" {
			out["format"] = string(s.Format)
		}
	case *Number:
		out["type"] = "number"
		putDescription(out, s.Description)
		putBounds(out, s.Minimum, s.Maximum, s.ExclusiveMinimum, s.ExclusiveMaximum)
		if len(s.Enum) > 0 {
			out["enum"] = append([]float64(nil), s.Enum...)
		}
	case *Integer:
		out["type"] = "integer"
		putDescription(out, s.Description)
		putBounds(out, s.Minimum, s.Maximum, s.ExclusiveMinimum, s.ExclusiveMaximum)
		if len(s.Enum) > 0 {
			out["enum"] = append([]int64(nil), s.Enum...)
		}
	case *Boolean:
		out["type"] = "boolean"
		putDescription(out, s.Description)
	case *Null:
		out["type"] = "null"
		putDescription(out, s.Description)
	case *Array:
		out["type"] = "array"
		putDescription(out, s.Description)
		out["items"] = ToJSON(s.Items)
		putInt(out, "minItems", s.MinItems)
		putInt(out, "maxItems", s.MaxItems)
	case *Object:
		out["type"] = "object"
		putDescription(out, s.Description)
		props := make(map[string]any, len(s.Properties))
		for _, p := range s.Properties {
			ps := ToJSON(p.Schema)
			if p.HasDefault {
				ps["default"] = plainDefault(p.Default)
			}
			props[p.Name] = ps
		}
		out["properties"] = props
		if len(s.Required) > 0 {
			out["required"] = append([]string(nil), s.Required...)
		}
	}
	return out
}

func plainDefault(v any) any {
	if val, ok := v.(Value); ok {
		return val.Interface()
	}
	return v
}

func putDescription(out map[string]any, desc string) {
	if desc != "" {
		out["description"] = desc
	}
}

func putInt(out map[string]any, key string, v *int) {
	if v != nil {
		out[key] = *v
	}
}

func putBounds(out map[string]any, minimum, maximum, exclusiveMin, exclusiveMax *float64) {
	for key, v := range map[string]*float64{
		"minimum":          minimum,
		"maximum":          maximum,
		"exclusiveMinimum": exclusiveMin,
		"exclusiveMaximum": exclusiveMax,
	} {
		if v != nil {
			out[key] = *v
		}
	}
}
