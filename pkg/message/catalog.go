package message

import (
	"sort"

	"github.com/morezero/cluster-supervisor/pkg/component"
)

// Table maps message ids to descriptors for one component type.
type Table map[ID]*Descriptor

// ByName finds a descriptor by its full name.
func (t Table) ByName(name string) (*Descriptor, bool) {
	for _, d := range t {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

// Catalog holds one Table per component type. Ids are only meaningful within
// a table; there is no lookup across types.
//
// A Catalog is populated once at startup and read-only afterwards.
type Catalog map[component.Type]Table

// NewCatalog builds a catalog from per-type descriptor lists. Descriptors in
// shared are added to every table.
func NewCatalog(perType map[component.Type][]*Descriptor, shared ...*Descriptor) Catalog {
	c := make(Catalog, len(perType))
	for t, ds := range perType {
		table := make(Table, len(ds)+len(shared))
		for _, d := range ds {
			table[d.id] = d
		}
		for _, d := range shared {
			table[d.id] = d
		}
		c[t] = table
	}
	return c
}

// Table returns the table for t, or nil if t has no catalog.
func (c Catalog) Table(t component.Type) Table {
	return c[t]
}

// Lookup resolves id within t's namespace.
func (c Catalog) Lookup(t component.Type, id ID) (*Descriptor, bool) {
	d, ok := c[t][id]
	return d, ok
}

// Types lists the component types with a table, in type order.
func (c Catalog) Types() []component.Type {
	out := make([]component.Type, 0, len(c))
	for t := range c {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
