package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// Field is one named member of a FixedDict.
type Field struct {
	Name  string
	Codec Codec
}

// Array builds a homogeneous array codec: u32 element count then each element.
// Decoded values are []any; Encode accepts any slice whose elements elem accepts.
func Array(name string, elem Codec) Codec {
	return arrayCodec{name: name, elem: elem}
}

type arrayCodec struct {
	name string
	elem Codec
}

func (c arrayCodec) Name() string { return c.name }

// Elem returns the element codec.
func (c arrayCodec) Elem() Codec { return c.elem }

func (c arrayCodec) Encode(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("%s: %T: %w", c.name, v, ErrTypeMismatch)
	}
	n := rv.Len()
	if uint64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("%s: %d elements: %w", c.name, n, ErrValueOutOfRange)
	}
	out := make([]byte, 4, 4+n)
	binary.LittleEndian.PutUint32(out, uint32(n))
	for i := 0; i < n; i++ {
		b, err := c.elem.Encode(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", c.name, i, err)
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("%s[%d]: zero-width element: %w", c.name, i, ErrValueOutOfRange)
		}
		out = append(out, b...)
	}
	return out, nil
}

// Decode requires every element to consume at least one byte, so a hostile
// count costs at most len(b) iterations.
func (c arrayCodec) Decode(b []byte) (any, int, error) {
	if len(b) < 4 {
		return nil, 0, fmt.Errorf("%s: count: %w", c.name, ErrShortBuffer)
	}
	n := binary.LittleEndian.Uint32(b)
	off := 4
	out := make([]any, 0, min(int(n), len(b)))
	for i := uint32(0); i < n; i++ {
		v, used, err := c.elem.Decode(b[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("%s[%d]: %w", c.name, i, err)
		}
		if used == 0 {
			return nil, 0, fmt.Errorf("%s[%d]: zero-width element: %w", c.name, i, ErrValueOutOfRange)
		}
		out = append(out, v)
		off += used
	}
	return out, off, nil
}

// FixedDict builds a named heterogeneous record. Fields are encoded in the
// order given with no delimiter; values are map[string]any.
func FixedDict(name string, fields ...Field) Codec {
	fs := make([]Field, len(fields))
	copy(fs, fields)
	return dictCodec{name: name, fields: fs}
}

type dictCodec struct {
	name   string
	fields []Field
}

func (c dictCodec) Name() string { return c.name }

// Fields returns a copy of the declared field list.
func (c dictCodec) Fields() []Field {
	out := make([]Field, len(c.fields))
	copy(out, c.fields)
	return out
}

func (c dictCodec) Encode(v any) ([]byte, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %T: %w", c.name, v, ErrTypeMismatch)
	}
	var out []byte
	for _, f := range c.fields {
		fv, ok := m[f.Name]
		if !ok {
			return nil, fmt.Errorf("%s.%s: %w", c.name, f.Name, ErrMissingField)
		}
		b, err := f.Codec.Encode(fv)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.name, f.Name, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func (c dictCodec) Decode(b []byte) (any, int, error) {
	out := make(map[string]any, len(c.fields))
	off := 0
	for _, f := range c.fields {
		v, used, err := f.Codec.Decode(b[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("%s.%s: %w", c.name, f.Name, err)
		}
		out[f.Name] = v
		off += used
	}
	return out, off, nil
}

// Alias renames base without changing its behavior. The alias name is what
// Name reports, so schema names survive a round trip through the catalog.
func Alias(name string, base Codec) Codec {
	if a, ok := base.(aliasCodec); ok {
		base = a.base
	}
	return aliasCodec{name: name, base: base}
}

type aliasCodec struct {
	name string
	base Codec
}

func (c aliasCodec) Name() string                      { return c.name }
func (c aliasCodec) Encode(v any) ([]byte, error)      { return c.base.Encode(v) }
func (c aliasCodec) Decode(b []byte) (any, int, error) { return c.base.Decode(b) }

// Unwrap returns the primitive the alias was declared over.
func (c aliasCodec) Unwrap() Codec { return c.base }
