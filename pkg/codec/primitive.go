package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Fixed- and variable-width primitives.
var (
	Int8    Codec = intCodec{name: "INT8", size: 1, signed: true}
	Uint8   Codec = intCodec{name: "UINT8", size: 1}
	Int16   Codec = intCodec{name: "INT16", size: 2, signed: true}
	Uint16  Codec = intCodec{name: "UINT16", size: 2}
	Int32   Codec = intCodec{name: "INT32", size: 4, signed: true}
	Uint32  Codec = intCodec{name: "UINT32", size: 4}
	Int64   Codec = intCodec{name: "INT64", size: 8, signed: true}
	Uint64  Codec = intCodec{name: "UINT64", size: 8}
	Float   Codec = floatCodec{name: "FLOAT", size: 4}
	Double  Codec = floatCodec{name: "DOUBLE", size: 8}
	Bool    Codec = boolCodec{}
	String  Codec = stringCodec{name: "STRING"}
	Unicode Codec = stringCodec{name: "UNICODE"}
	Blob    Codec = blobCodec{}
	// Raw consumes the whole remaining buffer; the layer above parses it.
	Raw Codec = rawCodec{}
)

type intCodec struct {
	name   string
	size   int
	signed bool
}

func (c intCodec) Name() string { return c.name }

func (c intCodec) Encode(v any) ([]byte, error) {
	var u uint64
	if c.signed {
		n, err := asInt64(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		if c.size < 8 {
			bits := uint(c.size * 8)
			lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
			if n < lo || n > hi {
				return nil, fmt.Errorf("%s: %d: %w", c.name, n, ErrValueOutOfRange)
			}
		}
		u = uint64(n)
	} else {
		n, err := asUint64(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		if c.size < 8 && n > uint64(1)<<uint(c.size*8)-1 {
			return nil, fmt.Errorf("%s: %d: %w", c.name, n, ErrValueOutOfRange)
		}
		u = n
	}
	buf := make([]byte, c.size)
	for i := 0; i < c.size; i++ {
		buf[i] = byte(u >> (8 * uint(i)))
	}
	return buf, nil
}

func (c intCodec) Decode(b []byte) (any, int, error) {
	if len(b) < c.size {
		return nil, 0, fmt.Errorf("%s: need %d bytes, have %d: %w", c.name, c.size, len(b), ErrShortBuffer)
	}
	var u uint64
	for i := 0; i < c.size; i++ {
		u |= uint64(b[i]) << (8 * uint(i))
	}
	switch {
	case c.size == 1 && c.signed:
		return int8(u), 1, nil
	case c.size == 1:
		return uint8(u), 1, nil
	case c.size == 2 && c.signed:
		return int16(u), 2, nil
	case c.size == 2:
		return uint16(u), 2, nil
	case c.size == 4 && c.signed:
		return int32(u), 4, nil
	case c.size == 4:
		return uint32(u), 4, nil
	case c.signed:
		return int64(u), 8, nil
	default:
		return u, 8, nil
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, ErrValueOutOfRange
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, ErrValueOutOfRange
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%T: %w", v, ErrTypeMismatch)
	}
}

func asUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case int, int8, int16, int32, int64:
		s, _ := asInt64(n)
		if s < 0 {
			return 0, fmt.Errorf("%d: %w", s, ErrValueOutOfRange)
		}
		return uint64(s), nil
	default:
		return 0, fmt.Errorf("%T: %w", v, ErrTypeMismatch)
	}
}

type floatCodec struct {
	name string
	size int
}

func (c floatCodec) Name() string { return c.name }

func (c floatCodec) Encode(v any) ([]byte, error) {
	var f float64
	switch n := v.(type) {
	case float32:
		f = float64(n)
	case float64:
		f = n
	default:
		return nil, fmt.Errorf("%s: %T: %w", c.name, v, ErrTypeMismatch)
	}
	buf := make([]byte, c.size)
	if c.size == 4 {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(f)))
	} else {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	}
	return buf, nil
}

func (c floatCodec) Decode(b []byte) (any, int, error) {
	if len(b) < c.size {
		return nil, 0, fmt.Errorf("%s: need %d bytes, have %d: %w", c.name, c.size, len(b), ErrShortBuffer)
	}
	if c.size == 4 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), 4, nil
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), 8, nil
}

// boolCodec occupies one signed byte; any positive value decodes as true.
type boolCodec struct{}

func (boolCodec) Name() string { return "BOOL" }

func (boolCodec) Encode(v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("BOOL: %T: %w", v, ErrTypeMismatch)
	}
	if b {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func (boolCodec) Decode(b []byte) (any, int, error) {
	if len(b) < 1 {
		return nil, 0, fmt.Errorf("BOOL: %w", ErrShortBuffer)
	}
	return int8(b[0]) > 0, 1, nil
}

// stringCodec is null-terminated text.
type stringCodec struct {
	name string
}

func (c stringCodec) Name() string { return c.name }

func (c stringCodec) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%s: %T: %w", c.name, v, ErrTypeMismatch)
	}
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		return nil, fmt.Errorf("%s: embedded NUL: %w", c.name, ErrValueOutOfRange)
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf, nil
}

func (c stringCodec) Decode(b []byte) (any, int, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return nil, 0, fmt.Errorf("%s: %w", c.name, ErrMissingTerminator)
	}
	return string(b[:i]), i + 1, nil
}

// blobCodec is a u32 length followed by that many raw bytes.
type blobCodec struct{}

func (blobCodec) Name() string { return "BLOB" }

func (blobCodec) Encode(v any) ([]byte, error) {
	var data []byte
	switch d := v.(type) {
	case []byte:
		data = d
	case string:
		data = []byte(d)
	default:
		return nil, fmt.Errorf("BLOB: %T: %w", v, ErrTypeMismatch)
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("BLOB: %d bytes: %w", len(data), ErrValueOutOfRange)
	}
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	return buf, nil
}

func (blobCodec) Decode(b []byte) (any, int, error) {
	if len(b) < 4 {
		return nil, 0, fmt.Errorf("BLOB: length: %w", ErrShortBuffer)
	}
	n := binary.LittleEndian.Uint32(b)
	if uint64(len(b)-4) < uint64(n) {
		return nil, 0, fmt.Errorf("BLOB: need %d bytes, have %d: %w", n, len(b)-4, ErrShortBuffer)
	}
	out := make([]byte, n)
	copy(out, b[4:4+int(n)])
	return out, 4 + int(n), nil
}

type rawCodec struct{}

func (rawCodec) Name() string { return "ARRAY" }

func (rawCodec) Encode(v any) ([]byte, error) {
	d, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("ARRAY: %T: %w", v, ErrTypeMismatch)
	}
	out := make([]byte, len(d))
	copy(out, d)
	return out, nil
}

func (rawCodec) Decode(b []byte) (any, int, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, len(b), nil
}
