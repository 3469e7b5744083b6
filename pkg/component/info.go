package component

import (
	"errors"
	"fmt"

	"github.com/morezero/cluster-supervisor/pkg/addr"
	"github.com/morezero/cluster-supervisor/pkg/codec"
)

var ErrFieldType = errors.New("component: field type mismatch")

// ID is a cluster-unique component id. NoID marks "not assigned yet" inside
// a registration; request fields that may omit an id use OptionalID.
type ID uint64

const NoID ID = 0

// IsSet reports whether id was assigned.
func (id ID) IsSet() bool { return id != NoID }

// State is a component's lifecycle state.
type State int8

const (
	StateInit State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int8(s))
	}
}

// Info describes one running component process.
//
// Info holds only value fields, so assigning it copies it completely; a copy
// handed out by the registry never aliases the registry's own entry.
type Info struct {
	UID          int32
	Username     string
	Type         Type
	ID           ID
	ParentID     ID
	GlobalOrder  int32
	GroupOrder   int32
	GUS          int32
	InternalAddr addr.AppAddr
	ExternalAddr addr.AppAddr
	ExternalHost string
	PID          uint32
	CPU          float32
	Mem          float32
	UsedMem      uint32
	State        State
	MachineID    uint32
	// EchoID carries the requester's own id back in find-address replies.
	EchoID       ID
	ExtraData    [3]uint64
	CallbackAddr addr.AppAddr
	Version      string
}

// Clone returns an independent copy of i.
func (i Info) Clone() Info { return i }

// IsEmpty reports whether i is the "nothing registered" sentinel.
func (i Info) IsEmpty() bool {
	return i.Type == Unknown && !i.ID.IsSet()
}

// Empty returns the sentinel sent back when a lookup finds nothing.
func Empty(echo ID) Info {
	return Info{Type: Unknown, EchoID: echo}
}

// InfoFields is the ordered wire schema of a registration frame.
var InfoFields = []codec.Field{
	{Name: "uid", Codec: codec.Int32},
	{Name: "username", Codec: codec.String},
	{Name: "componentType", Codec: codec.ComponentType},
	{Name: "componentID", Codec: codec.ComponentID},
	{Name: "componentIDEx", Codec: codec.ComponentID},
	{Name: "globalOrderID", Codec: codec.Int32},
	{Name: "groupOrderID", Codec: codec.Int32},
	{Name: "gus", Codec: codec.Int32},
	{Name: "intAddr", Codec: codec.Uint32},
	{Name: "intPort", Codec: codec.Uint16},
	{Name: "extAddr", Codec: codec.Uint32},
	{Name: "extPort", Codec: codec.Uint16},
	{Name: "extAddrEx", Codec: codec.String},
	{Name: "pid", Codec: codec.Uint32},
	{Name: "cpu", Codec: codec.Float},
	{Name: "mem", Codec: codec.Float},
	{Name: "usedMem", Codec: codec.Uint32},
	{Name: "state", Codec: codec.ComponentState},
	{Name: "machineID", Codec: codec.Uint32},
	{Name: "echoID", Codec: codec.ComponentID},
	{Name: "extraData1", Codec: codec.Uint64},
	{Name: "extraData2", Codec: codec.Uint64},
	{Name: "extraData3", Codec: codec.Uint64},
	{Name: "callbackAddr", Codec: codec.Uint32},
	{Name: "callbackPort", Codec: codec.Uint16},
	{Name: "version", Codec: codec.String},
}

// ToValues flattens i in InfoFields order.
func (i Info) ToValues() ([]any, error) {
	intIP, intPort, err := i.InternalAddr.Packed()
	if err != nil {
		return nil, fmt.Errorf("component: internal address: %w", err)
	}
	extIP, extPort, err := i.ExternalAddr.Packed()
	if err != nil {
		return nil, fmt.Errorf("component: external address: %w", err)
	}
	cbIP, cbPort, err := i.CallbackAddr.Packed()
	if err != nil {
		return nil, fmt.Errorf("component: callback address: %w", err)
	}
	return []any{
		i.UID, i.Username, int32(i.Type), uint64(i.ID), uint64(i.ParentID),
		i.GlobalOrder, i.GroupOrder, i.GUS,
		intIP, intPort, extIP, extPort, i.ExternalHost,
		i.PID, i.CPU, i.Mem, i.UsedMem, int8(i.State), i.MachineID,
		uint64(i.EchoID), i.ExtraData[0], i.ExtraData[1], i.ExtraData[2],
		cbIP, cbPort, i.Version,
	}, nil
}

// InfoFromValues is the inverse of ToValues.
func InfoFromValues(v []any) (Info, error) {
	if len(v) != len(InfoFields) {
		return Info{}, fmt.Errorf("component: %d values for %d fields: %w", len(v), len(InfoFields), ErrFieldType)
	}
	r := valueReader{v: v}
	info := Info{
		UID:          r.i32(0),
		Username:     r.str(1),
		Type:         Type(r.i32(2)),
		ID:           ID(r.u64(3)),
		ParentID:     ID(r.u64(4)),
		GlobalOrder:  r.i32(5),
		GroupOrder:   r.i32(6),
		GUS:          r.i32(7),
		InternalAddr: addr.Unpack(r.u32(8), r.u16(9)),
		ExternalAddr: addr.Unpack(r.u32(10), r.u16(11)),
		ExternalHost: r.str(12),
		PID:          r.u32(13),
		CPU:          r.f32(14),
		Mem:          r.f32(15),
		UsedMem:      r.u32(16),
		State:        State(r.i8(17)),
		MachineID:    r.u32(18),
		EchoID:       ID(r.u64(19)),
		ExtraData:    [3]uint64{r.u64(20), r.u64(21), r.u64(22)},
		CallbackAddr: addr.Unpack(r.u32(23), r.u16(24)),
		Version:      r.str(25),
	}
	if r.err != nil {
		return Info{}, r.err
	}
	return info, nil
}

// valueReader performs typed reads over decoded values and keeps the first failure.
type valueReader struct {
	v   []any
	err error
}

func (r *valueReader) fail(i int, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("component: field %d: want %s, got %T: %w", i, want, r.v[i], ErrFieldType)
	}
}

func (r *valueReader) i8(i int) int8 {
	n, ok := r.v[i].(int8)
	if !ok {
		r.fail(i, "int8")
	}
	return n
}

func (r *valueReader) i32(i int) int32 {
	n, ok := r.v[i].(int32)
	if !ok {
		r.fail(i, "int32")
	}
	return n
}

func (r *valueReader) u16(i int) uint16 {
	n, ok := r.v[i].(uint16)
	if !ok {
		r.fail(i, "uint16")
	}
	return n
}

func (r *valueReader) u32(i int) uint32 {
	n, ok := r.v[i].(uint32)
	if !ok {
		r.fail(i, "uint32")
	}
	return n
}

func (r *valueReader) u64(i int) uint64 {
	n, ok := r.v[i].(uint64)
	if !ok {
		r.fail(i, "uint64")
	}
	return n
}

func (r *valueReader) f32(i int) float32 {
	n, ok := r.v[i].(float32)
	if !ok {
		r.fail(i, "float32")
	}
	return n
}

func (r *valueReader) str(i int) string {
	s, ok := r.v[i].(string)
	if !ok {
		r.fail(i, "string")
	}
	return s
}
