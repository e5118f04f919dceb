package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"unicode/utf8"
)

// Validate checks v against s and returns the normalized value. v is
// typically the output of Decode or json.Unmarshal; Go integer and float
// types and Value.Interface() output are accepted as well.
//
// Validation stops at the first failing field, walking object properties in
// declaration order. The returned error is a *ValidationError.
func Validate(s Schema, v any) (Value, error) {
	return validate(s, v, RootPath)
}

func validate(s Schema, raw any, path string) (Value, error) {
	if v, ok := raw.(Value); ok {
		raw = v.Interface()
	}
	switch s := s.(type) {
	case *String:
		return validateString(s, raw, path)
	case *Number:
		return validateNumber(s, raw, path)
	case *Integer:
		return validateInteger(s, raw, path)
	case *Boolean:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, typeMismatch(path, KindBoolean, raw)
		}
		return BoolValue(b), nil
	case *Null:
		if raw != nil {
			return Value{}, typeMismatch(path, KindNull, raw)
		}
		return NullValue(), nil
	case *Array:
		return validateArray(s, raw, path)
	case *Object:
		return validateObject(s, raw, path)
	case nil:
		return fromRaw(raw, path)
	default:
		return Value{}, fail(path, raw, "unsupported schema %T", s)
	}
}

func validateString(s *String, raw any, path string) (Value, error) {
	str, ok := raw.(string)
	if !ok {
		return Value{}, typeMismatch(path, KindString, raw)
	}
	n := utf8.RuneCountInString(str)
	if s.MinLength != nil && n < *s.MinLength {
		return Value{}, fail(path, raw, "length %d is less than minLength %d", n, *s.MinLength)
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		return Value{}, fail(path, raw, "length %d exceeds maxLength %d", n, *s.MaxLength)
	}
	if len(s.Enum) > 0 && !slices.Contains(s.Enum, str) {
		return Value{}, fail(path, raw, "value %q is not one of %q", str, s.Enum)
	}
	if s.Format != "" {
		check, known := formatCheckers[s.Format]
		if !known {
			return Value{}, fail(path, raw, "unsupported format %q", s.Format)
		}
		if !check(str) {
			return Value{}, fail(path, raw, "value %q is not a valid %s", str, s.Format)
		}
	}
	return StringValue(str), nil
}

func validateNumber(s *Number, raw any, path string) (Value, error) {
	f, ok := toFloat(raw)
	if !ok {
		return Value{}, typeMismatch(path, KindNumber, raw)
	}
	if err := checkRange(f, s.Minimum, s.Maximum, s.ExclusiveMinimum, s.ExclusiveMaximum, raw, path); err != nil {
		return Value{}, err
	}
	if len(s.Enum) > 0 && !slices.Contains(s.Enum, f) {
		return Value{}, fail(path, raw, "value %v is not one of %v", f, s.Enum)
	}
	return NumberValue(f), nil
}

func validateInteger(s *Integer, raw any, path string) (Value, error) {
	if _, ok := toFloat(raw); !ok {
		return Value{}, typeMismatch(path, KindInteger, raw)
	}
	i, ok := toInt(raw)
	if !ok {
		if f, _ := toFloat(raw); math.Trunc(f) == f {
			return Value{}, fail(path, raw, "integer %v out of int64 range", raw)
		}
		return Value{}, fail(path, raw, "value %v is not an integer", raw)
	}
	if err := checkRange(float64(i), s.Minimum, s.Maximum, s.ExclusiveMinimum, s.ExclusiveMaximum, raw, path); err != nil {
		return Value{}, err
	}
	if len(s.Enum) > 0 && !slices.Contains(s.Enum, i) {
		return Value{}, fail(path, raw, "value %d is not one of %v", i, s.Enum)
	}
	return IntegerValue(i), nil
}

func checkRange(f float64, minimum, maximum, exclusiveMin, exclusiveMax *float64, raw any, path string) error {
	switch {
	case minimum != nil && f < *minimum:
		return fail(path, raw, "value %v is less than minimum %v", f, *minimum)
	case maximum != nil && f > *maximum:
		return fail(path, raw, "value %v exceeds maximum %v", f, *maximum)
	case exclusiveMin != nil && f <= *exclusiveMin:
		return fail(path, raw, "value %v must be greater than %v", f, *exclusiveMin)
	case exclusiveMax != nil && f >= *exclusiveMax:
		return fail(path, raw, "value %v must be less than %v", f, *exclusiveMax)
	}
	return nil
}

func validateArray(s *Array, raw any, path string) (Value, error) {
	items, ok := raw.([]any)
	if !ok {
		return Value{}, typeMismatch(path, KindArray, raw)
	}
	if s.MinItems != nil && len(items) < *s.MinItems {
		return Value{}, fail(path, raw, "array has %d items, fewer than minItems %d", len(items), *s.MinItems)
	}
	if s.MaxItems != nil && len(items) > *s.MaxItems {
		return Value{}, fail(path, raw, "array has %d items, more than maxItems %d", len(items), *s.MaxItems)
	}
	out := make([]Value, 0, len(items))
	for i, item := range items {
		v, err := validate(s.Items, item, itemPath(path, i))
		if err != nil {
			return Value{}, err
		}
		out = append(out, v)
	}
	return Value{kind: KindArray, items: out}, nil
}

func validateObject(s *Object, raw any, path string) (Value, error) {
	members, ok := raw.(map[string]any)
	if !ok {
		return Value{}, typeMismatch(path, KindObject, raw)
	}
	out := Value{kind: KindObject, keys: make([]string, 0, len(s.Properties)), fields: make(map[string]Value, len(s.Properties))}
	for _, p := range s.Properties {
		child := memberPath(path, p.Name)
		member, present := members[p.Name]
		if !present {
			switch {
			case p.HasDefault:
				member = p.Default
			case s.IsRequired(p.Name):
				return Value{}, fail(path, raw, "missing required property %q", p.Name)
			default:
				continue
			}
		}
		v, err := validate(p.Schema, member, child)
		if err != nil {
			return Value{}, err
		}
		out.set(p.Name, v)
	}
	for _, name := range s.Required {
		if _, declared := s.Property(name); declared {
			continue
		}
		if _, present := members[name]; !present {
			return Value{}, fail(path, raw, "missing required property %q", name)
		}
	}
	return out, nil
}

// fromRaw normalizes a value that no schema constrains. Object keys are
// sorted so the result is deterministic.
func fromRaw(raw any, path string) (Value, error) {
	switch r := raw.(type) {
	case nil:
		return NullValue(), nil
	case string:
		return StringValue(r), nil
	case bool:
		return BoolValue(r), nil
	case []any:
		out := make([]Value, 0, len(r))
		for i, item := range r {
			v, err := fromRaw(item, itemPath(path, i))
			if err != nil {
				return Value{}, err
			}
			out = append(out, v)
		}
		return Value{kind: KindArray, items: out}, nil
	case map[string]any:
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := Value{kind: KindObject, keys: make([]string, 0, len(keys)), fields: make(map[string]Value, len(keys))}
		for _, k := range keys {
			v, err := fromRaw(r[k], memberPath(path, k))
			if err != nil {
				return Value{}, err
			}
			out.set(k, v)
		}
		return out, nil
	}
	if isIntegral(raw) {
		if i, ok := toInt(raw); ok {
			return IntegerValue(i), nil
		}
	}
	if f, ok := toFloat(raw); ok {
		return NumberValue(f), nil
	}
	return Value{}, fail(path, raw, "unsupported value of type %T", raw)
}

// isIntegral reports whether raw is a Go integer or a json.Number written
// without fraction or exponent.
func isIntegral(raw any) bool {
	switch n := raw.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func typeMismatch(path string, want Kind, raw any) error {
	return fail(path, raw, "expected %s, got %s", want, jsonTypeName(raw))
}

func jsonTypeName(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat(raw); ok {
		return "number"
	}
	return fmt.Sprintf("%T", raw)
}
