package protocol

import "fmt"

// Struct holds one value per field of its schema, indexed by field position.
// Values are type checked against the declaration on every write.
type Struct struct {
	schema *Schema
	values []any
}

// NewStruct returns an empty value container bound to schema.
func NewStruct(schema *Schema) *Struct {
	return &Struct{
		schema: schema,
		values: make([]any, schema.Len()),
	}
}

func (s *Struct) Schema() *Schema {
	return s.schema
}

// SetAt stores v into field position i after checking it against the declared
// type. Integer widths are strict: an int32 field takes int32, nothing else.
func (s *Struct) SetAt(i int, v any) error {
	if i < 0 || i >= len(s.values) {
		return fmt.Errorf("field position %d out of range (schema has %d fields)", i, len(s.values))
	}
	f := s.schema.fields[i]
	if err := checkValue(f, v); err != nil {
		return fmt.Errorf("field %q: %w", f.Name, err)
	}
	s.values[i] = v
	return nil
}

// Set stores v into the named field. Name lookup is for model constructors
// and tests; pipeline code addresses fields by position.
func (s *Struct) Set(name string, v any) error {
	i := s.schema.Index(name)
	if i < 0 {
		return fmt.Errorf("schema declares no field %q", name)
	}
	return s.SetAt(i, v)
}

// At returns the raw value at field position i, nil when unset.
func (s *Struct) At(i int) any {
	if i < 0 || i >= len(s.values) {
		return nil
	}
	return s.values[i]
}

// Get returns the raw value of the named field.
func (s *Struct) Get(name string) (any, error) {
	i := s.schema.Index(name)
	if i < 0 {
		return nil, fmt.Errorf("schema declares no field %q", name)
	}
	return s.values[i], nil
}

func (s *Struct) Int8At(i int) (int8, error) {
	v, ok := s.At(i).(int8)
	if !ok {
		return 0, s.typeErr(i, "int8")
	}
	return v, nil
}

func (s *Struct) Int16At(i int) (int16, error) {
	v, ok := s.At(i).(int16)
	if !ok {
		return 0, s.typeErr(i, "int16")
	}
	return v, nil
}

func (s *Struct) Int32At(i int) (int32, error) {
	v, ok := s.At(i).(int32)
	if !ok {
		return 0, s.typeErr(i, "int32")
	}
	return v, nil
}

func (s *Struct) Int64At(i int) (int64, error) {
	v, ok := s.At(i).(int64)
	if !ok {
		return 0, s.typeErr(i, "int64")
	}
	return v, nil
}

func (s *Struct) StringAt(i int) (string, error) {
	v, ok := s.At(i).(string)
	if !ok {
		return "", s.typeErr(i, "string")
	}
	return v, nil
}

// BytesAt returns the bytes value at position i; nil means the wire null.
func (s *Struct) BytesAt(i int) ([]byte, error) {
	v := s.At(i)
	if v == nil {
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, s.typeErr(i, "bytes")
	}
	return b, nil
}

// StructsAt returns the struct-array value at position i.
func (s *Struct) StructsAt(i int) ([]*Struct, error) {
	v := s.At(i)
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]*Struct)
	if !ok {
		return nil, s.typeErr(i, "array of structs")
	}
	return arr, nil
}

func (s *Struct) Int32sAt(i int) ([]int32, error) {
	v := s.At(i)
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]int32)
	if !ok {
		return nil, s.typeErr(i, "array of int32")
	}
	return arr, nil
}

func (s *Struct) StringsAt(i int) ([]string, error) {
	v := s.At(i)
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]string)
	if !ok {
		return nil, s.typeErr(i, "array of string")
	}
	return arr, nil
}

// NewElem materializes a fresh element struct for the struct-array field at
// position i. The element is not attached; the caller appends it explicitly
// with AppendAt once populated.
func (s *Struct) NewElem(i int) (*Struct, error) {
	if i < 0 || i >= len(s.values) {
		return nil, fmt.Errorf("field position %d out of range", i)
	}
	f := s.schema.fields[i]
	if f.Type != TypeArray || f.Elem == nil || f.Elem.Type != TypeStruct {
		return nil, fmt.Errorf("field %q is not an array of structs", f.Name)
	}
	return NewStruct(f.Elem.Sub), nil
}

// AppendAt attaches elem to the struct-array field at position i.
func (s *Struct) AppendAt(i int, elem *Struct) error {
	if i < 0 || i >= len(s.values) {
		return fmt.Errorf("field position %d out of range", i)
	}
	f := s.schema.fields[i]
	if f.Type != TypeArray || f.Elem == nil || f.Elem.Type != TypeStruct {
		return fmt.Errorf("field %q is not an array of structs", f.Name)
	}
	if elem.schema != f.Elem.Sub {
		return fmt.Errorf("element schema does not match field %q", f.Name)
	}
	arr, _ := s.values[i].([]*Struct)
	s.values[i] = append(arr, elem)
	return nil
}

func (s *Struct) typeErr(i int, want string) error {
	name := fmt.Sprintf("#%d", i)
	if i >= 0 && i < len(s.schema.fields) {
		name = s.schema.fields[i].Name
	}
	return fmt.Errorf("field %q does not hold %s", name, want)
}

func checkValue(f Field, v any) error {
	switch f.Type {
	case TypeInt8:
		if _, ok := v.(int8); ok {
			return nil
		}
	case TypeInt16:
		if _, ok := v.(int16); ok {
			return nil
		}
	case TypeInt32:
		if _, ok := v.(int32); ok {
			return nil
		}
	case TypeInt64:
		if _, ok := v.(int64); ok {
			return nil
		}
	case TypeString:
		if _, ok := v.(string); ok {
			return nil
		}
	case TypeBytes:
		if v == nil {
			return nil // wire null
		}
		if _, ok := v.([]byte); ok {
			return nil
		}
	case TypeArray:
		switch f.Elem.Type {
		case TypeInt8:
			if _, ok := v.([]int8); ok {
				return nil
			}
		case TypeInt16:
			if _, ok := v.([]int16); ok {
				return nil
			}
		case TypeInt32:
			if _, ok := v.([]int32); ok {
				return nil
			}
		case TypeInt64:
			if _, ok := v.([]int64); ok {
				return nil
			}
		case TypeString:
			if _, ok := v.([]string); ok {
				return nil
			}
		case TypeStruct:
			arr, ok := v.([]*Struct)
			if !ok {
				break
			}
			for _, elem := range arr {
				if elem == nil || elem.schema != f.Elem.Sub {
					return fmt.Errorf("array element schema mismatch")
				}
			}
			return nil
		}
	}
	return fmt.Errorf("value %T does not satisfy declared type %s", v, f.Type)
}
