package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/events"
)

const storeLogPrefix = "registry:store"

// Change describes what one applied mutation did.
type Change struct {
	Action     string
	Info       component.Info
	ReplacedID component.OptionalID
	Revision   int64
}

// Store is the registry data structure. It is not safe for concurrent use;
// Registry confines it to one goroutine.
//
// singles and multis are the typed views; byID mirrors every entry in either.
type Store struct {
	classes  component.Classes
	singles  map[component.Type]component.Info
	multis   map[component.Type]map[component.ID]component.Info
	byID     map[component.ID]component.Info
	nextID   component.ID
	revision int64
}

// NewStore classifies types with classes; nil means DefaultClasses.
func NewStore(classes component.Classes) *Store {
	if classes == nil {
		classes = component.DefaultClasses()
	}
	return &Store{
		classes: classes,
		singles: make(map[component.Type]component.Info),
		multis:  make(map[component.Type]map[component.ID]component.Info),
		byID:    make(map[component.ID]component.Info),
		nextID:  1,
	}
}

// Register inserts or replaces info. Singleton types keep exactly one entry;
// multi-instance types are keyed by id.
func (s *Store) Register(info component.Info) (Change, error) {
	if !info.Type.Valid() {
		return Change{}, fmt.Errorf("%s - type %d: %w", storeLogPrefix, int32(info.Type), ErrInvalidType)
	}
	if !info.ID.IsSet() {
		return Change{}, fmt.Errorf("%s - %s: %w", storeLogPrefix, info.Type, ErrNoID)
	}

	// An id moving to another type must leave its old typed entry behind.
	if prev, ok := s.byID[info.ID]; ok && prev.Type != info.Type {
		s.removeTyped(prev)
	}

	change := Change{Action: events.ActionRegistered}
	if s.classes.IsSingleton(info.Type) {
		if existing, ok := s.singles[info.Type]; ok && existing.ID != info.ID {
			delete(s.byID, existing.ID)
			change.Action = events.ActionReplaced
			change.ReplacedID = component.SomeID(existing.ID)
			slog.Info(fmt.Sprintf("%s - %s replaced: id %d -> %d", storeLogPrefix, info.Type, existing.ID, info.ID))
		}
		s.singles[info.Type] = info.Clone()
	} else {
		m, ok := s.multis[info.Type]
		if !ok {
			m = make(map[component.ID]component.Info)
			s.multis[info.Type] = m
		}
		m[info.ID] = info.Clone()
	}
	s.byID[info.ID] = info.Clone()

	s.revision++
	change.Info = info.Clone()
	change.Revision = s.revision
	return change, nil
}

// GetInfo returns copies of every instance of t, ordered by id.
func (s *Store) GetInfo(t component.Type) []component.Info {
	if s.classes.IsSingleton(t) {
		if info, ok := s.singles[t]; ok {
			return []component.Info{info.Clone()}
		}
		return nil
	}
	m := s.multis[t]
	out := make([]component.Info, 0, len(m))
	for _, info := range m {
		out = append(out, info.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetByID returns a copy of the component registered under id.
func (s *Store) GetByID(id component.ID) (component.Info, bool) {
	info, ok := s.byID[id]
	if !ok {
		return component.Info{}, false
	}
	return info.Clone(), true
}

// DeregisterSingle removes the singleton of type t. Absent entries are
// logged and reported as false.
func (s *Store) DeregisterSingle(t component.Type) (Change, bool) {
	info, ok := s.singles[t]
	if !ok {
		slog.Warn(fmt.Sprintf("%s - deregister %s: not registered", storeLogPrefix, t))
		return Change{}, false
	}
	delete(s.singles, t)
	delete(s.byID, info.ID)
	return s.removed(info), true
}

// DeregisterMulti removes the component registered under id.
func (s *Store) DeregisterMulti(id component.ID) (Change, bool) {
	info, ok := s.byID[id]
	if !ok {
		slog.Warn(fmt.Sprintf("%s - deregister id %d: not registered", storeLogPrefix, id))
		return Change{}, false
	}
	s.removeTyped(info)
	delete(s.byID, id)
	return s.removed(info), true
}

// GenerateID returns an id that is neither registered nor previously handed out.
func (s *Store) GenerateID() component.ID {
	for {
		id := s.nextID
		s.nextID++
		if s.nextID == component.NoID {
			s.nextID = 1
		}
		if id == component.NoID {
			continue
		}
		if _, used := s.byID[id]; used {
			continue
		}
		return id
	}
}

// All returns copies of every entry ordered by type then id.
func (s *Store) All() []component.Info {
	out := make([]component.Info, 0, len(s.byID))
	for _, info := range s.byID {
		out = append(out, info.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len is the number of registered components.
func (s *Store) Len() int { return len(s.byID) }

// Counts returns the number of components per type name.
func (s *Store) Counts() map[string]int {
	out := make(map[string]int)
	for _, info := range s.byID {
		out[info.Type.String()]++
	}
	return out
}

// Revision is the number of mutations applied so far.
func (s *Store) Revision() int64 { return s.revision }

// IsSingleton exposes the classification in use.
func (s *Store) IsSingleton(t component.Type) bool { return s.classes.IsSingleton(t) }

func (s *Store) removeTyped(info component.Info) {
	if s.classes.IsSingleton(info.Type) {
		if cur, ok := s.singles[info.Type]; ok && cur.ID == info.ID {
			delete(s.singles, info.Type)
		}
		return
	}
	if m, ok := s.multis[info.Type]; ok {
		delete(m, info.ID)
		if len(m) == 0 {
			delete(s.multis, info.Type)
		}
	}
}

func (s *Store) removed(info component.Info) Change {
	s.revision++
	return Change{Action: events.ActionDeregistered, Info: info.Clone(), Revision: s.revision}
}
