package message

import (
	"github.com/morezero/cluster-supervisor/pkg/codec"
	"github.com/morezero/cluster-supervisor/pkg/component"
)

// Supervisor namespace ids.
const (
	IDRegister   ID = 1
	IDFindAddr   ID = 2
	IDQueryAll   ID = 3
	IDAllocateID ID = 4
	IDLookApp    ID = 5
	IDDeregister ID = 6
)

// Reserved ids, handed out downward from ReservedTop.
const (
	IDComponentInfoReply ID = ReservedTop - iota
	IDAllocateIDReply
	IDLivenessReply
)

var (
	// Register carries a full component.Info.
	Register = NewDescriptor(IDRegister, "Supervisor::onBroadcastInterface", LengthUnknown,
		component.InfoFields...)

	// FindAddr asks for every instance of findComponentType. A zero addr means
	// "reply by broadcast on finderRecvPort".
	FindAddr = NewDescriptor(IDFindAddr, "Supervisor::onFindInterfaceAddr", LengthUnknown,
		codec.Field{Name: "uid", Codec: codec.Int32},
		codec.Field{Name: "username", Codec: codec.String},
		codec.Field{Name: "componentType", Codec: codec.ComponentType},
		codec.Field{Name: "componentID", Codec: codec.ComponentID},
		codec.Field{Name: "findComponentType", Codec: codec.ComponentType},
		codec.Field{Name: "addr", Codec: codec.Uint32},
		codec.Field{Name: "finderRecvPort", Codec: codec.Uint16},
	)

	QueryAll = NewDescriptor(IDQueryAll, "Supervisor::onQueryAllInterfaceInfos", LengthUnknown,
		codec.Field{Name: "uid", Codec: codec.Int32},
		codec.Field{Name: "username", Codec: codec.String},
	)

	AllocateID = NewDescriptor(IDAllocateID, "Supervisor::allocateComponentID", 18, allocateFields...)

	LookApp = NewDescriptor(IDLookApp, "Supervisor::lookApp", 0)

	Deregister = NewDescriptor(IDDeregister, "Supervisor::onBroadcastDeregister", 12,
		codec.Field{Name: "componentType", Codec: codec.ComponentType},
		codec.Field{Name: "componentID", Codec: codec.ComponentID},
	)

	// ComponentInfoReply decodes registration-shaped dataOnly replies.
	ComponentInfoReply = NewDescriptor(IDComponentInfoReply, "Supervisor::componentInfoReply", LengthUnknown,
		component.InfoFields...)

	AllocateIDReply = NewDescriptor(IDAllocateIDReply, "Supervisor::allocateComponentIDReply", 18, allocateFields...)

	// LivenessReply is what every component answers to its own lookApp.
	LivenessReply = NewDescriptor(IDLivenessReply, "Supervisor::lookAppReply", 13,
		codec.Field{Name: "componentType", Codec: codec.ComponentType},
		codec.Field{Name: "componentID", Codec: codec.ComponentID},
		codec.Field{Name: "state", Codec: codec.ComponentState},
	)
)

var allocateFields = []codec.Field{
	{Name: "componentType", Codec: codec.ComponentType},
	{Name: "componentID", Codec: codec.ComponentID},
	{Name: "uid", Codec: codec.Int32},
	{Name: "callbackPort", Codec: codec.Uint16},
}

// lookAppIDs places each component's own liveness probe in its namespace.
// The numbers collide across types on purpose; that is what namespaces are for.
var lookAppIDs = map[component.Type]ID{
	component.DBManager:      12,
	component.LoginApp:       6,
	component.BaseAppManager: 8,
	component.CellAppManager: 9,
	component.CellApp:        15,
	component.BaseApp:        21,
	component.Console:        3,
	component.Logger:         4,
	component.Bots:           2,
	component.Watcher:        1,
	component.Interfaces:     7,
}

// LookAppFor returns the liveness descriptor of t, if t has one.
func LookAppFor(t component.Type) (*Descriptor, bool) {
	if t == component.Supervisor {
		return LookApp, true
	}
	id, ok := lookAppIDs[t]
	if !ok {
		return nil, false
	}
	return NewDescriptor(id, t.Title()+"::lookApp", 0), true
}

// BuildCatalog returns the Supervisor table plus one liveness-only table per
// other component type. Reserved reply descriptors are added to every table.
func BuildCatalog() Catalog {
	perType := map[component.Type][]*Descriptor{
		component.Supervisor: {Register, FindAddr, QueryAll, AllocateID, LookApp, Deregister},
	}
	for t := range lookAppIDs {
		d, _ := LookAppFor(t)
		perType[t] = []*Descriptor{d}
	}
	return NewCatalog(perType, ComponentInfoReply, AllocateIDReply, LivenessReply)
}
