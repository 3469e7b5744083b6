// Package registry tracks which cluster components are running and where.
//
// The Store is owned by a single goroutine; every public Registry method is a
// command sent to that goroutine. Commands from independent connections are
// applied in arrival order only: a lookup sent right after a registration
// from another socket may run first.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/events"
	"github.com/morezero/cluster-supervisor/pkg/metric"
	"github.com/morezero/cluster-supervisor/pkg/semver"
)

const logPrefix = "registry:registry"

var (
	ErrInvalidType = errors.New("registry: invalid component type")
	ErrNoID        = errors.New("registry: component id not set")
	ErrClosed      = errors.New("registry: closed")
	// ErrVersionRejected matches semver.ErrVersionRejected.
	ErrVersionRejected = semver.ErrVersionRejected
)

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	Classes   component.Classes
	Publisher events.EventPublisher
	Gate      *semver.Gate
	Metrics   *metric.Metrics
}

// Registry is the actor front of a Store.
type Registry struct {
	cmds      chan func(*Store)
	stop      chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once
	publisher events.EventPublisher
	gate      *semver.Gate
	metrics   *metric.Metrics
	classes   component.Classes
}

// NewRegistry starts the owning goroutine. Call Close to stop it.
func NewRegistry(params NewRegistryParams) *Registry {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	classes := params.Classes
	if classes == nil {
		classes = component.DefaultClasses()
	}
	r := &Registry{
		cmds:      make(chan func(*Store)),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		publisher: pub,
		gate:      params.Gate,
		metrics:   params.Metrics,
		classes:   classes,
	}
	go r.loop(NewStore(classes))
	return r
}

func (r *Registry) loop(s *Store) {
	defer close(r.stopped)
	for {
		select {
		case fn := <-r.cmds:
			fn(s)
		case <-r.stop:
			return
		}
	}
}

// Close stops the owning goroutine. Pending and later calls fail with ErrClosed.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.stopped
}

// do runs fn on the owning goroutine and waits for it.
func (r *Registry) do(ctx context.Context, fn func(*Store)) error {
	done := make(chan struct{})
	cmd := func(s *Store) {
		defer close(done)
		fn(s)
	}
	select {
	case r.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsSingleton reports the classification of t.
func (r *Registry) IsSingleton(t component.Type) bool {
	return r.classes.IsSingleton(t)
}

// Register admits info through the version gate and stores it.
func (r *Registry) Register(ctx context.Context, info component.Info) (Change, error) {
	if err := r.gate.Check(info.Type.String(), info.Version); err != nil {
		return Change{}, fmt.Errorf("%s - %w", logPrefix, err)
	}
	var (
		change Change
		regErr error
		counts map[string]int
	)
	err := r.do(ctx, func(s *Store) {
		change, regErr = s.Register(info)
		counts = s.Counts()
	})
	if err != nil {
		return Change{}, err
	}
	if regErr != nil {
		return Change{}, regErr
	}
	r.metrics.SetComponents(counts)
	slog.Debug(fmt.Sprintf("%s - %s %s id=%d internal=%s", logPrefix, change.Action, info.Type, info.ID, info.InternalAddr))
	r.publish(ctx, change)
	return change, nil
}

// DeregisterSingle removes the singleton of type t; false if none was registered.
func (r *Registry) DeregisterSingle(ctx context.Context, t component.Type) (bool, error) {
	var (
		change Change
		ok     bool
		counts map[string]int
	)
	if err := r.do(ctx, func(s *Store) {
		change, ok = s.DeregisterSingle(t)
		counts = s.Counts()
	}); err != nil {
		return false, err
	}
	if ok {
		r.metrics.SetComponents(counts)
		r.publish(ctx, change)
	}
	return ok, nil
}

// DeregisterMulti removes the component registered under id.
func (r *Registry) DeregisterMulti(ctx context.Context, id component.ID) (bool, error) {
	var (
		change Change
		ok     bool
		counts map[string]int
	)
	if err := r.do(ctx, func(s *Store) {
		change, ok = s.DeregisterMulti(id)
		counts = s.Counts()
	}); err != nil {
		return false, err
	}
	if ok {
		r.metrics.SetComponents(counts)
		r.publish(ctx, change)
	}
	return ok, nil
}

// Deregister picks DeregisterSingle or DeregisterMulti from t's class.
// Singletons ignore id; every other type needs it present.
func (r *Registry) Deregister(ctx context.Context, t component.Type, id component.OptionalID) (bool, error) {
	if r.IsSingleton(t) {
		return r.DeregisterSingle(ctx, t)
	}
	v, ok := id.Get()
	if !ok {
		return false, fmt.Errorf("%s - deregister %s: %w", logPrefix, t, ErrNoID)
	}
	return r.DeregisterMulti(ctx, v)
}

// GetInfo returns copies of every registered instance of t.
func (r *Registry) GetInfo(ctx context.Context, t component.Type) ([]component.Info, error) {
	var out []component.Info
	err := r.do(ctx, func(s *Store) { out = s.GetInfo(t) })
	return out, err
}

// GetByID returns a copy of the component registered under id.
func (r *Registry) GetByID(ctx context.Context, id component.ID) (component.Info, bool, error) {
	var (
		info component.Info
		ok   bool
	)
	err := r.do(ctx, func(s *Store) { info, ok = s.GetByID(id) })
	return info, ok, err
}

// GenerateID reserves a fresh, nonzero id.
func (r *Registry) GenerateID(ctx context.Context) (component.ID, error) {
	var id component.ID
	err := r.do(ctx, func(s *Store) { id = s.GenerateID() })
	return id, err
}

// All returns copies of every registered component.
func (r *Registry) All(ctx context.Context) ([]component.Info, error) {
	var out []component.Info
	err := r.do(ctx, func(s *Store) { out = s.All() })
	return out, err
}

// Len is the number of registered components.
func (r *Registry) Len(ctx context.Context) (int, error) {
	var n int
	err := r.do(ctx, func(s *Store) { n = s.Len() })
	return n, err
}

func (r *Registry) publish(ctx context.Context, c Change) {
	event := &events.ComponentChangedEvent{
		Action:        c.Action,
		ComponentType: c.Info.Type.String(),
		TypeCode:      int32(c.Info.Type),
		ComponentID:   uint64(c.Info.ID),
		Username:      c.Info.Username,
		Version:       c.Info.Version,
		Revision:      c.Revision,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if !c.Info.InternalAddr.IsNone() {
		event.InternalAddr = c.Info.InternalAddr.String()
	}
	if !c.Info.ExternalAddr.IsNone() {
		event.ExternalAddr = c.Info.ExternalAddr.String()
	}
	if id, ok := c.ReplacedID.Get(); ok {
		replaced := uint64(id)
		event.ReplacedID = &replaced
	}
	if err := r.publisher.PublishChanged(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event for %s/%d: %v", logPrefix, c.Action, c.Info.Type, c.Info.ID, err))
	}
}
