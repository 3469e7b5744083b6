package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, c Codec, v any) any {
	t.Helper()
	b, err := c.Encode(v)
	require.NoError(t, err, "encode %s", c.Name())
	got, n, err := c.Decode(b)
	require.NoError(t, err, "decode %s", c.Name())
	assert.Equal(t, len(b), n, "%s consumed bytes", c.Name())
	return got
}

func TestPrimitiveRoundTrip(t *testing.T) {
	tests := []struct {
		codec Codec
		in    any
		want  any
	}{
		{Int8, int8(-128), int8(-128)},
		{Uint8, uint8(255), uint8(255)},
		{Int16, int16(-3000), int16(-3000)},
		{Uint16, 65535, uint16(65535)},
		{Int32, int32(-1), int32(-1)},
		{Uint32, uint32(0xdeadbeef), uint32(0xdeadbeef)},
		{Int64, int64(-1 << 62), int64(-1 << 62)},
		{Uint64, uint64(1<<64 - 1), uint64(1<<64 - 1)},
		{Float, float32(1.5), float32(1.5)},
		{Double, 3.25, 3.25},
		{Bool, true, true},
		{Bool, false, false},
		{String, "", ""},
		{String, "cellapp", "cellapp"},
		{Unicode, "héllo", "héllo"},
		{Blob, []byte{}, []byte{}},
		{Blob, []byte{0, 1, 2}, []byte{0, 1, 2}},
		{Raw, []byte{9, 8, 7}, []byte{9, 8, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.codec.Name(), func(t *testing.T) {
			assert.Equal(t, tt.want, roundTrip(t, tt.codec, tt.in))
		})
	}
}

func TestIntegersAreLittleEndian(t *testing.T) {
	b, err := Uint16.Encode(uint16(0x0102))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01}, b)

	b, err = Int32.Encode(-2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfe, 0xff, 0xff, 0xff}, b)
}

func TestIntegerRangeAndTypeChecks(t *testing.T) {
	_, err := Uint8.Encode(256)
	assert.ErrorIs(t, err, ErrValueOutOfRange)

	_, err = Uint32.Encode(-1)
	assert.ErrorIs(t, err, ErrValueOutOfRange)

	_, err = Int8.Encode(200)
	assert.ErrorIs(t, err, ErrValueOutOfRange)

	_, err = Int32.Encode("7")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestBoolDecodesSignedBytePositive(t *testing.T) {
	v, n, err := Bool.Decode([]byte{5})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, true, v)

	// 0xff is -1 as a signed byte.
	v, _, err = Bool.Decode([]byte{0xff})
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestStringDecodeStopsAtTerminator(t *testing.T) {
	v, n, err := String.Decode([]byte("ab\x00cd"))
	require.NoError(t, err)
	assert.Equal(t, "ab", v)
	assert.Equal(t, 3, n)

	_, _, err = String.Decode([]byte("abc"))
	assert.ErrorIs(t, err, ErrMissingTerminator)

	_, err = String.Encode("a\x00b")
	assert.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestBlobZeroLengthConsumesOnlyPrefix(t *testing.T) {
	v, n, err := Blob.Decode([]byte{0, 0, 0, 0, 0xaa})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{}, v)

	_, _, err = Blob.Decode([]byte{3, 0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestShortBuffer(t *testing.T) {
	for _, c := range []Codec{Int16, Uint32, Int64, Float, Double, Bool, Blob} {
		_, _, err := c.Decode(nil)
		assert.True(t, errors.Is(err, ErrShortBuffer), "%s: %v", c.Name(), err)
	}
}

func TestRawConsumesEverything(t *testing.T) {
	v, n, err := Raw.Decode([]byte{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []byte{}, v)
}

func TestArrayRejectsZeroWidthElements(t *testing.T) {
	raws := Array("RAWS", Raw)

	_, _, err := raws.Decode([]byte{0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrValueOutOfRange)

	_, err = raws.Encode([][]byte{{}})
	assert.ErrorIs(t, err, ErrValueOutOfRange)

	v, n, err := raws.Decode([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []any{}, v)
}

func TestArrayHostileCountIsShort(t *testing.T) {
	_, _, err := Array("COMPONENT_IDS", ComponentID).Decode([]byte{0xff, 0xff, 0xff, 0xff, 1, 2, 3})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestArrayRoundTrip(t *testing.T) {
	ids := Array("COMPONENT_IDS", ComponentID)
	got := roundTrip(t, ids, []uint64{1, 2, 3})
	assert.Equal(t, []any{uint64(1), uint64(2), uint64(3)}, got)

	got = roundTrip(t, ids, []uint64{})
	assert.Equal(t, []any{}, got)

	names := Array("NAMES", String)
	got = roundTrip(t, names, []any{"a", ""})
	assert.Equal(t, []any{"a", ""}, got)

	_, err := ids.Encode(7)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestFixedDictRoundTrip(t *testing.T) {
	addr := FixedDict("ADDRESS",
		Field{Name: "ip", Codec: Uint32},
		Field{Name: "port", Codec: Uint16},
		Field{Name: "host", Codec: String},
	)
	in := map[string]any{"ip": uint32(0x7f000001), "port": uint16(20086), "host": ""}
	assert.Equal(t, in, roundTrip(t, addr, in))

	_, err := addr.Encode(map[string]any{"ip": uint32(1)})
	assert.ErrorIs(t, err, ErrMissingField)

	nested := Array("ADDRESSES", addr)
	got := roundTrip(t, nested, []any{in, in})
	assert.Len(t, got, 2)
}

func TestAliasKeepsNameAndBehavior(t *testing.T) {
	assert.Equal(t, "COMPONENT_ID", ComponentID.Name())
	assert.Equal(t, Uint64, Base(ComponentID))

	b1, err := ComponentID.Encode(uint64(42))
	require.NoError(t, err)
	b2, err := Uint64.Encode(uint64(42))
	require.NoError(t, err)
	assert.Equal(t, b2, b1)

	again := Alias("DBID", ComponentID)
	assert.Equal(t, "DBID", again.Name())
	assert.Equal(t, Uint64, Base(again))
}

func TestLookup(t *testing.T) {
	c, ok := Lookup("COMPONENT_TYPE")
	require.True(t, ok)
	assert.Equal(t, "COMPONENT_TYPE", c.Name())

	c, ok = Lookup("ARRAY")
	require.True(t, ok)
	assert.Equal(t, Raw, c)

	_, ok = Lookup("NOPE")
	assert.False(t, ok)
}
