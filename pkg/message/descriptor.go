// Package message owns message schemas and the length-framed wire format.
//
// Wire layout, little-endian:
//
//	[u16 id][u16 length]?[payload]
//
// The length field is present only for descriptors declared with
// LengthUnknown. A descriptor without fields is sent as the bare id.
package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/morezero/cluster-supervisor/pkg/codec"
)

// ID identifies a message inside one component type's namespace. Wire ids
// fit in 16 bits; larger ids are reserved for local bookkeeping.
type ID uint32

const (
	// LengthUnknown declares a dynamic-length message.
	LengthUnknown = -1
	// MaxWireID is the largest id that can be framed.
	MaxWireID ID = 0xFFFF
	// ReservedTop is the first reserved id; reserved ids are handed out downward.
	ReservedTop ID = 99_999_999
	// ReservedFloor bounds the reserved range from below.
	ReservedFloor ID = 99_999_000
)

var (
	ErrArity           = errors.New("message: value count does not match descriptor")
	ErrIncomplete      = errors.New("message: incomplete frame")
	ErrUnknownMessage  = errors.New("message: unknown message id")
	ErrMalformed       = errors.New("message: malformed payload")
	ErrDesync          = errors.New("message: fixed-length payload does not decode")
	ErrReservedID      = errors.New("message: reserved id cannot be framed")
	ErrPayloadTooLarge = errors.New("message: payload too large")
	ErrFieldType       = errors.New("message: field missing or of unexpected type")
)

// IsReserved reports whether id belongs to the local bookkeeping range.
func IsReserved(id ID) bool { return id >= ReservedFloor }

// Descriptor is an immutable message schema.
type Descriptor struct {
	id      ID
	name    string
	dynamic bool
	fields  []codec.Field
}

// NewDescriptor declares a schema. length is the declared byte length of the
// payload, or LengthUnknown for a dynamic-length message.
func NewDescriptor(id ID, name string, length int, fields ...codec.Field) *Descriptor {
	fs := make([]codec.Field, len(fields))
	copy(fs, fields)
	return &Descriptor{
		id:      id,
		name:    name,
		dynamic: length == LengthUnknown,
		fields:  fs,
	}
}

func (d *Descriptor) ID() ID                { return d.id }
func (d *Descriptor) Name() string          { return d.name }
func (d *Descriptor) LengthIsDynamic() bool { return d.dynamic }
func (d *Descriptor) NoArgs() bool          { return len(d.fields) == 0 }
func (d *Descriptor) NumFields() int        { return len(d.fields) }

// Fields returns a copy of the ordered field list.
func (d *Descriptor) Fields() []codec.Field {
	out := make([]codec.Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// FieldIndex returns the position of the named field, or -1.
func (d *Descriptor) FieldIndex(name string) int {
	for i, f := range d.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Owner is the component namespace part of the name ("Supervisor" in "Supervisor::lookApp").
func (d *Descriptor) Owner() string {
	owner, _, _ := strings.Cut(d.name, "::")
	return owner
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(%d)", d.name, d.id)
}

// Message is a descriptor plus one value per declared field.
type Message struct {
	Descriptor *Descriptor
	Values     []any
}

// NewMessage builds a message and enforces len(values) == len(fields).
func NewMessage(d *Descriptor, values ...any) (*Message, error) {
	if len(values) != len(d.fields) {
		return nil, fmt.Errorf("%s: %d values for %d fields: %w", d.name, len(values), len(d.fields), ErrArity)
	}
	v := make([]any, len(values))
	copy(v, values)
	return &Message{Descriptor: d, Values: v}, nil
}

// Value returns the value of the named field.
func (m *Message) Value(name string) (any, bool) {
	i := m.Descriptor.FieldIndex(name)
	if i < 0 || i >= len(m.Values) {
		return nil, false
	}
	return m.Values[i], true
}

// ValueAs returns the named field as T.
func ValueAs[T any](m *Message, name string) (T, error) {
	var zero T
	v, ok := m.Value(name)
	if !ok {
		return zero, fmt.Errorf("%s.%s: %w", m.Descriptor.name, name, ErrFieldType)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s.%s is %T: %w", m.Descriptor.name, name, v, ErrFieldType)
	}
	return t, nil
}
