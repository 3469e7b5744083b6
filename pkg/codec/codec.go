// Package codec implements the field encoders of the cluster wire protocol.
//
// Every codec is a pure value: Encode and Decode share no state and are safe to
// call from any goroutine. Multi-byte numbers are little-endian.
package codec

import "errors"

var (
	ErrShortBuffer       = errors.New("codec: short buffer")
	ErrMissingTerminator = errors.New("codec: missing string terminator")
	ErrTypeMismatch      = errors.New("codec: value type mismatch")
	ErrValueOutOfRange   = errors.New("codec: value out of range")
	ErrMissingField      = errors.New("codec: missing field")
)

// Codec encodes one field value to wire bytes and back.
type Codec interface {
	// Name is the schema name the codec was declared under.
	Name() string
	// Encode returns the wire bytes for v.
	Encode(v any) ([]byte, error)
	// Decode reads one value from the front of b and reports how many bytes it consumed.
	Decode(b []byte) (any, int, error)
}
