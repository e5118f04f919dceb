package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	customTypesMu sync.RWMutex
	customTypes   = make(map[reflect.Type]*jsonschema.Schema)
)

// ErrNotStruct is returned by Reflect for types that do not describe an
// object.
var ErrNotStruct = errors.New("schema: reflected type must be a struct")

// RegisterType maps a custom Go type to a JSON type and optional format in
// reflected schemas. emptyInstance must not be nil and jsonType must not be
// empty. Pointer fields (*T) use the mapping registered for T.
// Call RegisterType at startup, before the first Reflect.
func RegisterType(emptyInstance any, jsonType string, format Format) {
	if emptyInstance == nil {
		panic("schema: RegisterType emptyInstance must not be nil")
	}
	if jsonType == "" {
		panic("schema: RegisterType jsonType must not be empty")
	}
	t := reflect.TypeOf(emptyInstance)
	customTypesMu.Lock()
	defer customTypesMu.Unlock()
	customTypes[t] = &jsonschema.Schema{Type: jsonType, Format: string(format)}
}

func mapCustomType(t reflect.Type) *jsonschema.Schema {
	customTypesMu.RLock()
	defer customTypesMu.RUnlock()
	if s, ok := customTypes[t]; ok {
		return &jsonschema.Schema{Type: s.Type, Format: s.Format}
	}
	return nil
}

// Reflect builds an object Schema from the exported fields of struct T.
// Field names follow json tags; fields without omitempty are required.
// A `description` tag sets the property description and an `enum` tag
// (comma separated) restricts a string property.
func Reflect[T any]() (Schema, error) {
	typ := reflect.TypeFor[T]()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", ErrNotStruct, typ)
	}
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Mapper:         mapCustomType,
	}
	s, err := fromJSONSchema(r.ReflectFromType(typ), RootPath)
	if err != nil {
		return nil, fmt.Errorf("schema: reflect %s: %w", typ, err)
	}
	obj, ok := s.(*Object)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no properties", ErrNotStruct, typ)
	}
	enrichFromStructTags(obj, typ)
	return obj, nil
}

// enrichFromStructTags applies description and enum tags to root-level
// properties, matched by json name.
func enrichFromStructTags(obj *Object, typ reflect.Type) {
	for field := range typ.Fields() {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		i := obj.propertyIndex(name)
		if i < 0 {
			continue
		}
		prop := &obj.Properties[i]
		if desc := field.Tag.Get("description"); desc != "" {
			setDescription(prop.Schema, desc)
		}
		if enumStr := field.Tag.Get("enum"); enumStr != "" {
			if str, ok := prop.Schema.(*String); ok {
				parts := strings.Split(enumStr, ",")
				str.Enum = make([]string, len(parts))
				for j, p := range parts {
					str.Enum[j] = strings.TrimSpace(p)
				}
			}
		}
	}
}

func setDescription(s Schema, desc string) {
	switch s := s.(type) {
	case *String:
		s.Description = desc
	case *Number:
		s.Description = desc
	case *Integer:
		s.Description = desc
	case *Boolean:
		s.Description = desc
	case *Null:
		s.Description = desc
	case *Array:
		s.Description = desc
	case *Object:
		s.Description = desc
	}
}
