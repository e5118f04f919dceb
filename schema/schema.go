// Package schema describes the accepted shape of tool arguments and validates
// decoded JSON against it.
//
// A Schema is a closed set of variants: *String, *Number, *Integer, *Boolean,
// *Null, *Array and *Object. Validate dispatches on Kind and returns a
// normalized Value that mirrors the variant, or a *ValidationError locating
// the first violated constraint.
package schema

import "slices"

// Kind tags a Schema variant and the matching Value shape.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindInteger
	KindBoolean
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:    "null",
	KindString:  "string",
	KindNumber:  "number",
	KindInteger: "integer",
	KindBoolean: "boolean",
	KindArray:   "array",
	KindObject:  "object",
}

// String returns the JSON Schema type name for k.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Schema is implemented only by the variant types in this package.
type Schema interface {
	Kind() Kind
	isSchema()
}

// Format names a string format checked by a dedicated predicate.
type Format string

const (
	FormatEmail    Format = "email"
	FormatURI      Format = "uri"
	FormatDateTime Format = "date-time"
	FormatDate     Format = "date"
	FormatUUID     Format = "uuid"
)

// String constrains a JSON string.
type String struct {
	Description string
	MinLength   *int
	MaxLength   *int
	Enum        []string
	Format      Format
}

// Number constrains any JSON number.
type Number struct {
	Description      string
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum *float64
	ExclusiveMaximum *float64
	Enum             []float64
}

// Integer constrains a JSON number that must be whole.
type Integer struct {
	Description      string
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum *float64
	ExclusiveMaximum *float64
	Enum             []int64
}

// Boolean accepts true or false.
type Boolean struct {
	Description string
}

// Null accepts only null.
type Null struct {
	Description string
}

// Array constrains a JSON array. A nil Items accepts any element.
type Array struct {
	Description string
	Items       Schema
	MinItems    *int
	MaxItems    *int
}

// Property is a declared object member. Default is injected when the member
// is absent and HasDefault is set.
type Property struct {
	Name       string
	Schema     Schema
	Default    any
	HasDefault bool
}

// Object constrains a JSON object. Properties are checked in declaration
// order; members not declared are dropped from the output.
type Object struct {
	Description string
	Properties  []Property
	Required    []string
}

func (*String) Kind() Kind  { return KindString }
func (*Number) Kind() Kind  { return KindNumber }
func (*Integer) Kind() Kind { return KindInteger }
func (*Boolean) Kind() Kind { return KindBoolean }
func (*Null) Kind() Kind    { return KindNull }
func (*Array) Kind() Kind   { return KindArray }
func (*Object) Kind() Kind  { return KindObject }

func (*String) isSchema()  {}
func (*Number) isSchema()  {}
func (*Integer) isSchema() {}
func (*Boolean) isSchema() {}
func (*Null) isSchema()    {}
func (*Array) isSchema()   {}
func (*Object) isSchema()  {}

// Prop declares an optional property.
func Prop(name string, s Schema) Property {
	return Property{Name: name, Schema: s}
}

// WithDefault returns a copy of p that injects v when the member is absent.
func (p Property) WithDefault(v any) Property {
	p.Default = v
	p.HasDefault = true
	return p
}

// Property returns the declared property with the given name.
func (o *Object) Property(name string) (Property, bool) {
	if i := o.propertyIndex(name); i >= 0 {
		return o.Properties[i], true
	}
	return Property{}, false
}

func (o *Object) propertyIndex(name string) int {
	return slices.IndexFunc(o.Properties, func(p Property) bool { return p.Name == name })
}

// IsRequired reports whether name is listed in Required.
func (o *Object) IsRequired(name string) bool {
	return slices.Contains(o.Required, name)
}

// Ptr returns a pointer to v. Handy for optional bounds.
func Ptr[T any](v T) *T { return &v }

var (
	_ Schema = (*String)(nil)
	_ Schema = (*Number)(nil)
	_ Schema = (*Integer)(nil)
	_ Schema = (*Boolean)(nil)
	_ Schema = (*Null)(nil)
	_ Schema = (*Array)(nil)
	_ Schema = (*Object)(nil)
)
