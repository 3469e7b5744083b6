package message

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/morezero/cluster-supervisor/pkg/codec"
)

const (
	idSize     = 2
	lengthSize = 2
)

// Serialize encodes m. With dataOnly the id/length prefix is omitted and only
// the field payload is returned; the receiver must already know the schema.
func Serialize(m *Message, dataOnly bool) ([]byte, error) {
	d := m.Descriptor
	if len(m.Values) != len(d.fields) {
		return nil, fmt.Errorf("%s: %d values for %d fields: %w", d.name, len(m.Values), len(d.fields), ErrArity)
	}

	var payload []byte
	for i, f := range d.fields {
		b, err := f.Codec.Encode(m.Values[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.name, f.Name, err)
		}
		payload = append(payload, b...)
	}
	if dataOnly {
		if payload == nil {
			payload = []byte{}
		}
		return payload, nil
	}

	if d.id > MaxWireID {
		return nil, fmt.Errorf("%s: %w", d, ErrReservedID)
	}

	if d.NoArgs() {
		out := make([]byte, idSize)
		binary.LittleEndian.PutUint16(out, uint16(d.id))
		return out, nil
	}

	if !d.dynamic {
		out := make([]byte, idSize, idSize+len(payload))
		binary.LittleEndian.PutUint16(out, uint16(d.id))
		return append(out, payload...), nil
	}

	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("%s: %d bytes: %w", d, len(payload), ErrPayloadTooLarge)
	}
	out := make([]byte, idSize+lengthSize, idSize+lengthSize+len(payload))
	binary.LittleEndian.PutUint16(out, uint16(d.id))
	binary.LittleEndian.PutUint16(out[idSize:], uint16(len(payload)))
	return append(out, payload...), nil
}

// Deserialize decodes one framed message from the front of b using table,
// the catalog of the peer's component type.
//
// It returns the message and the unconsumed tail. When the frame is not yet
// complete it returns ErrIncomplete and b untouched. An unknown id returns
// ErrUnknownMessage and b untouched; the stream cannot be resynchronised from
// there. Neither can it after a fixed-length frame that does not decode,
// which returns ErrDesync and b untouched. A dynamic frame whose payload does
// not decode returns ErrMalformed and the tail after that frame, so the
// caller may drop it and continue.
func Deserialize(b []byte, table Table) (*Message, []byte, error) {
	if len(b) < idSize {
		return nil, b, ErrIncomplete
	}
	id := ID(binary.LittleEndian.Uint16(b))
	d, ok := table[id]
	if !ok {
		return nil, b, fmt.Errorf("id %d: %w", id, ErrUnknownMessage)
	}

	if d.NoArgs() {
		return &Message{Descriptor: d, Values: []any{}}, b[idSize:], nil
	}

	if !d.dynamic {
		values, n, err := decodeFields(d, b[idSize:])
		if err != nil {
			if isShort(err) {
				return nil, b, ErrIncomplete
			}
			return nil, b, fmt.Errorf("%s: %w: %v", d, ErrDesync, err)
		}
		return &Message{Descriptor: d, Values: values}, b[idSize+n:], nil
	}

	if len(b) < idSize+lengthSize {
		return nil, b, ErrIncomplete
	}
	length := int(binary.LittleEndian.Uint16(b[idSize:]))
	start := idSize + lengthSize
	if len(b)-start < length {
		return nil, b, ErrIncomplete
	}
	payload := b[start : start+length]
	tail := b[start+length:]

	values, n, err := decodeFields(d, payload)
	if err != nil {
		return nil, tail, fmt.Errorf("%s: %w: %v", d, ErrMalformed, err)
	}
	if n != length {
		return nil, tail, fmt.Errorf("%s: %d trailing bytes: %w", d, length-n, ErrMalformed)
	}
	return &Message{Descriptor: d, Values: values}, tail, nil
}

// DeserializeBody decodes a prefix-less (dataOnly) frame against d.
func DeserializeBody(b []byte, d *Descriptor) (*Message, []byte, error) {
	values, n, err := decodeFields(d, b)
	if err != nil {
		if isShort(err) {
			return nil, b, ErrIncomplete
		}
		return nil, b, fmt.Errorf("%s: %w: %v", d, ErrMalformed, err)
	}
	return &Message{Descriptor: d, Values: values}, b[n:], nil
}

func decodeFields(d *Descriptor, b []byte) ([]any, int, error) {
	values := make([]any, 0, len(d.fields))
	off := 0
	for _, f := range d.fields {
		v, n, err := f.Codec.Decode(b[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", f.Name, err)
		}
		values = append(values, v)
		off += n
	}
	return values, off, nil
}

// A fixed-width short read and a missing terminator both mean "more bytes may
// still arrive" on a stream.
func isShort(err error) bool {
	return errors.Is(err, codec.ErrShortBuffer) || errors.Is(err, codec.ErrMissingTerminator)
}
