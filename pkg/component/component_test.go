package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/cluster-supervisor/pkg/addr"
)

func TestTypeNames(t *testing.T) {
	for _, typ := range AllTypes() {
		parsed, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)

		parsed, err = ParseType(typ.Title())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
	_, err := ParseType("gateway")
	assert.Error(t, err)
	assert.False(t, Unknown.Valid())
	assert.True(t, CellApp.Valid())
	assert.False(t, Type(99).Valid())
}

func TestDefaultClasses(t *testing.T) {
	c := DefaultClasses()
	assert.True(t, c.IsSingleton(DBManager))
	assert.True(t, c.IsSingleton(Supervisor))
	assert.False(t, c.IsSingleton(CellApp))
	assert.False(t, c.IsSingleton(Type(42)))
}

func TestInfoValuesRoundTrip(t *testing.T) {
	in := Info{
		UID:          7,
		Username:     "kbe",
		Type:         BaseApp,
		ID:           1001,
		ParentID:     3,
		GlobalOrder:  2,
		GroupOrder:   1,
		InternalAddr: addr.AppAddr{Host: "10.0.0.5", Port: 30001},
		ExternalAddr: addr.AppAddr{Host: "203.0.113.9", Port: 20015},
		ExternalHost: "game.example.net",
		PID:          4242,
		CPU:          12.5,
		Mem:          3.25,
		UsedMem:      1 << 20,
		State:        StateRunning,
		MachineID:    99,
		EchoID:       5,
		ExtraData:    [3]uint64{1, 2, 3},
		CallbackAddr: addr.NoAddr,
		Version:      "2.1.0",
	}
	values, err := in.ToValues()
	require.NoError(t, err)
	require.Len(t, values, len(InfoFields))

	out, err := InfoFromValues(values)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestInfoFromValuesRejectsWrongTypes(t *testing.T) {
	values, err := Info{Type: CellApp}.ToValues()
	require.NoError(t, err)
	values[3] = "not-an-id"
	_, err = InfoFromValues(values)
	assert.ErrorIs(t, err, ErrFieldType)

	_, err = InfoFromValues(values[:3])
	assert.ErrorIs(t, err, ErrFieldType)
}

func TestEmptySentinel(t *testing.T) {
	e := Empty(17)
	assert.True(t, e.IsEmpty())
	assert.Equal(t, ID(17), e.EchoID)
	assert.False(t, Info{Type: CellApp, ID: 1}.IsEmpty())
}

func TestCloneIsIndependent(t *testing.T) {
	a := Info{Type: CellApp, ID: 1, ExtraData: [3]uint64{1, 1, 1}}
	b := a.Clone()
	b.ExtraData[0] = 9
	b.Username = "changed"
	assert.Equal(t, uint64(1), a.ExtraData[0])
	assert.Equal(t, "", a.Username)
}

func TestOptionalID(t *testing.T) {
	none := NoneID()
	_, ok := none.Get()
	assert.False(t, ok)
	assert.Equal(t, OptionalID{}, none)
	assert.Equal(t, "none", none.String())
	v, err := none.Wire()
	require.NoError(t, err)
	assert.Zero(t, v)

	some := SomeID(7)
	id, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, ID(7), id)
	v, err = some.Wire()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	zero := SomeID(NoID)
	assert.True(t, zero.IsSome())
	assert.NotEqual(t, none, zero)
	_, err = zero.Wire()
	assert.ErrorIs(t, err, ErrIDNotWireable)

	assert.False(t, IDFromWire(0).IsSome())
	assert.Equal(t, SomeID(9), IDFromWire(9))
}
