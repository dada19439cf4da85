package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode writes the struct's fields in schema order: big-endian integers,
// int16-length strings, int32-length byte blocks and arrays. Nil bytes encode
// as the wire null (-1); nil arrays encode as empty.
func Encode(s *Struct) ([]byte, error) {
	return encodeStruct(nil, s)
}

func encodeStruct(dst []byte, s *Struct) ([]byte, error) {
	var err error
	for i, f := range s.schema.fields {
		v := s.values[i]
		if v == nil && f.Type != TypeBytes && f.Type != TypeArray {
			return nil, fmt.Errorf("field %q is not set", f.Name)
		}
		switch f.Type {
		case TypeInt8:
			dst = append(dst, byte(v.(int8)))
		case TypeInt16:
			dst = binary.BigEndian.AppendUint16(dst, uint16(v.(int16)))
		case TypeInt32:
			dst = binary.BigEndian.AppendUint32(dst, uint32(v.(int32)))
		case TypeInt64:
			dst = binary.BigEndian.AppendUint64(dst, uint64(v.(int64)))
		case TypeString:
			dst, err = appendString(dst, f, v.(string))
		case TypeBytes:
			dst = appendBytes(dst, v)
		case TypeArray:
			dst, err = appendArray(dst, f, v)
		}
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func appendString(dst []byte, f Field, v string) ([]byte, error) {
	if len(v) > math.MaxInt16 {
		return nil, fmt.Errorf("field %q: string of %d bytes exceeds wire limit", f.Name, len(v))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(v)))
	return append(dst, v...), nil
}

func appendBytes(dst []byte, v any) []byte {
	var b []byte
	if v != nil {
		b = v.([]byte)
	}
	if b == nil {
		return binary.BigEndian.AppendUint32(dst, uint32(0xFFFFFFFF))
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

func appendArray(dst []byte, f Field, v any) ([]byte, error) {
	var err error
	switch f.Elem.Type {
	case TypeInt8:
		arr, _ := v.([]int8)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(arr)))
		for _, e := range arr {
			dst = append(dst, byte(e))
		}
	case TypeInt16:
		arr, _ := v.([]int16)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(arr)))
		for _, e := range arr {
			dst = binary.BigEndian.AppendUint16(dst, uint16(e))
		}
	case TypeInt32:
		arr, _ := v.([]int32)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(arr)))
		for _, e := range arr {
			dst = binary.BigEndian.AppendUint32(dst, uint32(e))
		}
	case TypeInt64:
		arr, _ := v.([]int64)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(arr)))
		for _, e := range arr {
			dst = binary.BigEndian.AppendUint64(dst, uint64(e))
		}
	case TypeString:
		arr, _ := v.([]string)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(arr)))
		for _, e := range arr {
			dst, err = appendString(dst, f, e)
			if err != nil {
				return nil, err
			}
		}
	case TypeStruct:
		arr, _ := v.([]*Struct)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(arr)))
		for _, e := range arr {
			dst, err = encodeStruct(dst, e)
			if err != nil {
				return nil, err
			}
		}
	}
	return dst, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) need(n int, field string) error {
	if n > r.remaining() {
		return fmt.Errorf("%w: field %q needs %d bytes, %d left", ErrMalformedRecord, field, n, r.remaining())
	}
	return nil
}

func (r *reader) int8(field string) (int8, error) {
	if err := r.need(1, field); err != nil {
		return 0, err
	}
	v := int8(r.buf[r.off])
	r.off++
	return v, nil
}

func (r *reader) int16(field string) (int16, error) {
	if err := r.need(2, field); err != nil {
		return 0, err
	}
	v := int16(binary.BigEndian.Uint16(r.buf[r.off:]))
	r.off += 2
	return v, nil
}

func (r *reader) int32(field string) (int32, error) {
	if err := r.need(4, field); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v, nil
}

func (r *reader) int64(field string) (int64, error) {
	if err := r.need(8, field); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v, nil
}

func (r *reader) string(field string) (string, error) {
	n, err := r.int16(field)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: field %q has negative string length %d", ErrMalformedRecord, field, n)
	}
	if err := r.need(int(n), field); err != nil {
		return "", err
	}
	v := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return v, nil
}

func (r *reader) bytes(field string) ([]byte, error) {
	n, err := r.int32(field)
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: field %q has negative length %d", ErrMalformedRecord, field, n)
	}
	if err := r.need(int(n), field); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.off:])
	r.off += int(n)
	return v, nil
}

func (r *reader) arrayLen(field string) (int, error) {
	n, err := r.int32(field)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: field %q has negative array length %d", ErrMalformedRecord, field, n)
	}
	if int(n) > r.remaining() {
		return 0, fmt.Errorf("%w: field %q declares %d elements with %d bytes left", ErrMalformedRecord, field, n, r.remaining())
	}
	return int(n), nil
}

func decodeStruct(r *reader, schema *Schema) (*Struct, error) {
	s := NewStruct(schema)
	for i, f := range schema.fields {
		var v any
		var err error
		switch f.Type {
		case TypeInt8:
			v, err = r.int8(f.Name)
		case TypeInt16:
			v, err = r.int16(f.Name)
		case TypeInt32:
			v, err = r.int32(f.Name)
		case TypeInt64:
			v, err = r.int64(f.Name)
		case TypeString:
			v, err = r.string(f.Name)
		case TypeBytes:
			v, err = r.bytes(f.Name)
		case TypeArray:
			v, err = decodeArray(r, f)
		}
		if err != nil {
			return nil, err
		}
		if v != nil {
			s.values[i] = v
		}
	}
	return s, nil
}

func decodeArray(r *reader, f Field) (any, error) {
	n, err := r.arrayLen(f.Name)
	if err != nil {
		return nil, err
	}
	switch f.Elem.Type {
	case TypeInt8:
		arr := make([]int8, n)
		for i := range arr {
			if arr[i], err = r.int8(f.Name); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case TypeInt16:
		arr := make([]int16, n)
		for i := range arr {
			if arr[i], err = r.int16(f.Name); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case TypeInt32:
		arr := make([]int32, n)
		for i := range arr {
			if arr[i], err = r.int32(f.Name); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case TypeInt64:
		arr := make([]int64, n)
		for i := range arr {
			if arr[i], err = r.int64(f.Name); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case TypeString:
		arr := make([]string, n)
		for i := range arr {
			if arr[i], err = r.string(f.Name); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case TypeStruct:
		arr := make([]*Struct, n)
		for i := range arr {
			if arr[i], err = decodeStruct(r, f.Elem.Sub); err != nil {
				return nil, err
			}
		}
		return arr, nil
	}
	return nil, fmt.Errorf("field %q: unsupported array element %s", f.Name, f.Elem.Type)
}

// SchemaTable maps (api key, version) to the schema describing that layout.
// Populated once at startup, read-only afterwards.
type SchemaTable struct {
	schemas map[ApiKey][]*Schema
}

func NewSchemaTable() *SchemaTable {
	return &SchemaTable{schemas: make(map[ApiKey][]*Schema)}
}

// Register installs the full version ladder for key: versions[0] describes
// version 0 and so on. Kafka api versions are contiguous from zero.
func (t *SchemaTable) Register(key ApiKey, versions ...*Schema) {
	if _, dup := t.schemas[key]; dup {
		panic(fmt.Sprintf("schema table already holds %s", key))
	}
	t.schemas[key] = versions
}

// Lookup resolves the schema for (key, version). Versions outside the
// registered range fail with ErrUnsupportedVersion, never truncate.
func (t *SchemaTable) Lookup(key ApiKey, version int16) (*Schema, error) {
	ladder, ok := t.schemas[key]
	if !ok {
		return nil, fmt.Errorf("%w: no schemas for api %s", ErrUnsupportedVersion, key)
	}
	if version < 0 || int(version) >= len(ladder) {
		return nil, fmt.Errorf("%w: api %s version %d, known range 0..%d", ErrUnsupportedVersion, key, version, len(ladder)-1)
	}
	return ladder[version], nil
}

// MaxVersion returns the highest registered version for key.
func (t *SchemaTable) MaxVersion(key ApiKey) (int16, bool) {
	ladder, ok := t.schemas[key]
	if !ok || len(ladder) == 0 {
		return 0, false
	}
	return int16(len(ladder) - 1), true
}

// DecodePrefix reads one record laid out per schema from the front of data
// and returns the unconsumed remainder. For layered frames where a header
// precedes a body; top-level bodies go through SchemaTable.Decode, which
// rejects leftovers.
func DecodePrefix(data []byte, schema *Schema) (*Struct, []byte, error) {
	r := &reader{buf: data}
	s, err := decodeStruct(r, schema)
	if err != nil {
		return nil, nil, err
	}
	return s, data[r.off:], nil
}

// Decode reads one complete record laid out per (key, version). Exhausting
// the buffer early, negative lengths, and leftover trailing bytes all fail
// with ErrMalformedRecord.
func (t *SchemaTable) Decode(data []byte, key ApiKey, version int16) (*Struct, error) {
	schema, err := t.Lookup(key, version)
	if err != nil {
		return nil, err
	}
	r := &reader{buf: data}
	s, err := decodeStruct(r, schema)
	if err != nil {
		return nil, fmt.Errorf("%s v%d: %w", key, version, err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%s v%d: %w: %d trailing bytes", key, version, ErrMalformedRecord, r.remaining())
	}
	return s, nil
}
