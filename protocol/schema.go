package protocol

import "fmt"

// Type enumerates the wire types a schema field can declare.
type Type int8

const (
	TypeInt8 Type = iota
	TypeInt16
	TypeInt32
	TypeInt64
	TypeString
	TypeBytes
	TypeArray
	TypeStruct // only valid as an array element
)

func (t Type) String() string {
	switch t {
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeArray:
		return "array"
	case TypeStruct:
		return "struct"
	}
	return "invalid"
}

// Field declares one entry of a schema: a name, a wire type, and for arrays
// the element descriptor. Array elements may themselves be structs with a
// nested schema.
type Field struct {
	Name string
	Type Type
	Elem *Field  // array element layout, TypeArray only
	Sub  *Schema // nested layout, TypeStruct elements only
}

// Schema is the ordered, typed field layout of one wire record for one
// (api key, version) pair. Immutable once built.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from fields in wire order. Declaration mistakes
// (duplicate names, malformed array descriptors) panic: schemas are static
// tables assembled at process start, never from runtime input.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{
		fields: fields,
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			panic(fmt.Sprintf("schema field %d has no name", i))
		}
		if _, dup := s.index[f.Name]; dup {
			panic(fmt.Sprintf("schema declares field %q twice", f.Name))
		}
		if err := checkField(f); err != nil {
			panic(fmt.Sprintf("schema field %q: %s", f.Name, err))
		}
		s.index[f.Name] = i
	}
	return s
}

func checkField(f Field) error {
	switch f.Type {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeString, TypeBytes:
		return nil
	case TypeArray:
		if f.Elem == nil {
			return fmt.Errorf("array without element descriptor")
		}
		switch f.Elem.Type {
		case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeString:
			return nil
		case TypeStruct:
			if f.Elem.Sub == nil {
				return fmt.Errorf("struct array element without schema")
			}
			return nil
		default:
			return fmt.Errorf("unsupported array element type %s", f.Elem.Type)
		}
	default:
		return fmt.Errorf("unsupported field type %s", f.Type)
	}
}

// Len returns the number of declared fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// FieldAt returns the declaration at position i.
func (s *Schema) FieldAt(i int) Field {
	return s.fields[i]
}

// Index returns the position of the named field, or -1. Intended for model
// constructors and tests; hot paths address fields by position.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}
