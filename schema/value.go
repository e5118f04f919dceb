package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a validated, normalized argument value. Its Kind mirrors the
// Schema variant that produced it. The zero Value is null.
type Value struct {
	kind    Kind
	str     string
	num     float64
	i64     int64
	boolean bool
	items   []Value
	keys    []string
	fields  map[string]Value
}

// Field is a named object member used to build object values.
type Field struct {
	Name  string
	Value Value
}

// NullValue returns the null value.
func NullValue() Value { return Value{kind: KindNull} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps f.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// IntegerValue wraps i.
func IntegerValue(i int64) Value { return Value{kind: KindInteger, i64: i} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

// ArrayValue builds an array from items.
func ArrayValue(items ...Value) Value {
	out := make([]Value, 0, len(items))
	out = append(out, items...)
	return Value{kind: KindArray, items: out}
}

// ObjectValue builds an object keeping the order of fields. A repeated name
// keeps its first position and its last value.
func ObjectValue(fields ...Field) Value {
	v := Value{kind: KindObject, keys: make([]string, 0, len(fields)), fields: make(map[string]Value, len(fields))}
	for _, f := range fields {
		v.set(f.Name, f.Value)
	}
	return v
}

func (v *Value) set(name string, val Value) {
	if _, ok := v.fields[name]; !ok {
		v.keys = append(v.keys, name)
	}
	v.fields[name] = val
}

// Kind reports the shape of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload, or "" for other kinds.
func (v Value) Str() string { return v.str }

// Float returns the numeric payload for number and integer values.
func (v Value) Float() float64 {
	if v.kind == KindInteger {
		return float64(v.i64)
	}
	return v.num
}

// Int returns the integer payload, truncating numbers.
func (v Value) Int() int64 {
	if v.kind == KindNumber {
		return int64(v.num)
	}
	return v.i64
}

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.boolean }

// Len returns the number of array items or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.keys)
	default:
		return 0
	}
}

// Index returns the i-th array item. It panics if i is out of range.
func (v Value) Index(i int) Value { return v.items[i] }

// Items returns a copy of the array items.
func (v Value) Items() []Value { return append([]Value(nil), v.items...) }

// Keys returns object member names in order.
func (v Value) Keys() []string { return append([]string(nil), v.keys...) }

// Get returns the object member with the given name.
func (v Value) Get(name string) (Value, bool) {
	f, ok := v.fields[name]
	return f, ok
}

// Interface converts v to plain Go values: nil, string, float64, int64, bool,
// []any and map[string]any. Validating the result against the same schema
// yields a Value equal to v.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindInteger:
		return v.i64
	case KindBoolean:
		return v.boolean
	case KindArray:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.fields[k].Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes v keeping object member order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindNumber:
		b, err := json.Marshal(v.num)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindInteger:
		buf.WriteString(strconv.FormatInt(v.i64, 10))
	case KindBoolean:
		buf.WriteString(strconv.FormatBool(v.boolean))
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(b)
			buf.WriteByte(':')
			if err := v.fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("schema: cannot encode value of kind %d", v.kind)
	}
	return nil
}

// Decode stores v into target the way encoding/json would decode v's JSON
// form.
func (v Value) Decode(target any) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// String renders v as JSON text.
func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(data)
}
