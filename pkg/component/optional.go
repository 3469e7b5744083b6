package component

import (
	"errors"
	"fmt"
)

var ErrIDNotWireable = errors.New("component: id 0 cannot be sent as a present id")

// OptionalID is an id that may be absent. The zero value is absent.
//
// The wire has no presence flag and sends an absent id as 0, so a present 0
// cannot be encoded; Wire rejects it instead of silently turning it absent.
type OptionalID struct {
	id ID
	ok bool
}

// SomeID returns a present id.
func SomeID(id ID) OptionalID { return OptionalID{id: id, ok: true} }

// NoneID returns an absent id.
func NoneID() OptionalID { return OptionalID{} }

// IDFromWire reads an id field that uses 0 for "absent".
func IDFromWire(v uint64) OptionalID {
	if v == 0 {
		return OptionalID{}
	}
	return SomeID(ID(v))
}

// Get returns the id and whether it is present.
func (o OptionalID) Get() (ID, bool) { return o.id, o.ok }

// IsSome reports whether the id is present.
func (o OptionalID) IsSome() bool { return o.ok }

// Wire encodes o for an id field where 0 means absent.
func (o OptionalID) Wire() (uint64, error) {
	if !o.ok {
		return 0, nil
	}
	if o.id == NoID {
		return 0, ErrIDNotWireable
	}
	return uint64(o.id), nil
}

func (o OptionalID) String() string {
	if !o.ok {
		return "none"
	}
	return fmt.Sprintf("%d", uint64(o.id))
}
