package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/cluster-supervisor/pkg/addr"
	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/events"
	"github.com/morezero/cluster-supervisor/pkg/metric"
	"github.com/morezero/cluster-supervisor/pkg/semver"
)

func info(t component.Type, id component.ID) component.Info {
	return component.Info{
		Type:         t,
		ID:           id,
		Username:     "kbe",
		InternalAddr: addr.AppAddr{Host: "10.0.0.1", Port: uint16(30000 + id)},
	}
}

func TestStoreSingletonSameIDIsOverwrite(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Register(info(component.DBManager, 1))
	require.NoError(t, err)
	change, err := s.Register(info(component.DBManager, 1))
	require.NoError(t, err)

	assert.Equal(t, events.ActionRegistered, change.Action)
	got := s.GetInfo(component.DBManager)
	require.Len(t, got, 1)
	assert.Equal(t, component.ID(1), got[0].ID)
	assert.Equal(t, 1, s.Len())
}

func TestStoreSingletonNewIDEvictsOld(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Register(info(component.DBManager, 1))
	require.NoError(t, err)
	change, err := s.Register(info(component.DBManager, 2))
	require.NoError(t, err)

	assert.Equal(t, events.ActionReplaced, change.Action)
	assert.Equal(t, component.SomeID(1), change.ReplacedID)

	got := s.GetInfo(component.DBManager)
	require.Len(t, got, 1)
	assert.Equal(t, component.ID(2), got[0].ID)
	_, ok := s.GetByID(1)
	assert.False(t, ok)
	_, ok = s.GetByID(2)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestStoreMultiInstanceCopies(t *testing.T) {
	s := NewStore(nil)
	for _, id := range []component.ID{3, 1, 2} {
		_, err := s.Register(info(component.CellApp, id))
		require.NoError(t, err)
	}

	got := s.GetInfo(component.CellApp)
	require.Len(t, got, 3)
	assert.Equal(t, []component.ID{1, 2, 3}, []component.ID{got[0].ID, got[1].ID, got[2].ID})

	got[0].Username = "mutated"
	got[0].ExtraData[0] = 99
	again := s.GetInfo(component.CellApp)
	assert.Equal(t, "kbe", again[0].Username)
	assert.Zero(t, again[0].ExtraData[0])
}

func TestStoreMultiReconnectSameID(t *testing.T) {
	s := NewStore(nil)
	first := info(component.BaseApp, 5)
	_, err := s.Register(first)
	require.NoError(t, err)
	second := first
	second.InternalAddr = addr.AppAddr{Host: "10.0.0.9", Port: 31000}
	_, err = s.Register(second)
	require.NoError(t, err)

	got := s.GetInfo(component.BaseApp)
	require.Len(t, got, 1)
	assert.Equal(t, "10.0.0.9", got[0].InternalAddr.Host)
}

func TestStoreIDMovingTypes(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Register(info(component.CellApp, 7))
	require.NoError(t, err)
	_, err = s.Register(info(component.BaseApp, 7))
	require.NoError(t, err)

	assert.Empty(t, s.GetInfo(component.CellApp))
	assert.Len(t, s.GetInfo(component.BaseApp), 1)
	assert.Equal(t, 1, s.Len())
}

func TestStoreRejectsBadInput(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Register(info(component.Unknown, 1))
	assert.ErrorIs(t, err, ErrInvalidType)
	_, err = s.Register(info(component.CellApp, component.NoID))
	assert.ErrorIs(t, err, ErrNoID)
	assert.Zero(t, s.Revision())
}

func TestStoreDeregisterIsIdempotent(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Register(info(component.Logger, 4))
	require.NoError(t, err)
	_, err = s.Register(info(component.CellApp, 8))
	require.NoError(t, err)

	change, ok := s.DeregisterSingle(component.Logger)
	assert.True(t, ok)
	assert.Equal(t, events.ActionDeregistered, change.Action)
	_, ok = s.DeregisterSingle(component.Logger)
	assert.False(t, ok)

	_, ok = s.DeregisterMulti(8)
	assert.True(t, ok)
	_, ok = s.DeregisterMulti(8)
	assert.False(t, ok)

	assert.Zero(t, s.Len())
	assert.Empty(t, s.All())
}

func TestStoreGenerateIDSkipsUsed(t *testing.T) {
	s := NewStore(nil)
	for _, id := range []component.ID{1, 2, 4} {
		_, err := s.Register(info(component.CellApp, id))
		require.NoError(t, err)
	}
	seen := map[component.ID]bool{}
	for i := 0; i < 5; i++ {
		id := s.GenerateID()
		assert.True(t, id.IsSet())
		_, used := s.GetByID(id)
		assert.False(t, used, "id %d already registered", id)
		assert.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
	}
	assert.True(t, seen[3])
}

func TestStoreAllMirrorsTypedViews(t *testing.T) {
	s := NewStore(nil)
	_, _ = s.Register(info(component.Supervisor, 10))
	_, _ = s.Register(info(component.CellApp, 2))
	_, _ = s.Register(info(component.CellApp, 1))
	_, _ = s.Register(info(component.DBManager, 5))

	all := s.All()
	require.Len(t, all, 4)
	assert.Equal(t, component.DBManager, all[0].Type)
	assert.Equal(t, component.ID(1), all[1].ID)
	assert.Equal(t, component.Supervisor, all[3].Type)
	assert.Equal(t, map[string]int{"supervisor": 1, "cellapp": 2, "dbmgr": 1}, s.Counts())
}

func TestStoreCustomClasses(t *testing.T) {
	classes := component.DefaultClasses()
	classes[component.CellApp] = component.Singleton
	s := NewStore(classes)
	_, _ = s.Register(info(component.CellApp, 1))
	_, _ = s.Register(info(component.CellApp, 2))
	assert.Len(t, s.GetInfo(component.CellApp), 1)
}

func TestRegistryPublishesChanges(t *testing.T) {
	var (
		mu  sync.Mutex
		got []*events.ComponentChangedEvent
	)
	pub := events.NewCallbackPublisher(func(_ context.Context, e *events.ComponentChangedEvent) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	})
	m := metric.NewMetrics()
	r := NewRegistry(NewRegistryParams{Publisher: pub, Metrics: m})
	defer r.Close()
	ctx := context.Background()

	_, err := r.Register(ctx, info(component.DBManager, 1))
	require.NoError(t, err)
	_, err = r.Register(ctx, info(component.DBManager, 2))
	require.NoError(t, err)
	ok, err := r.Deregister(ctx, component.DBManager, component.NoneID())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.Deregister(ctx, component.CellApp, component.SomeID(42))
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = r.Deregister(ctx, component.CellApp, component.NoneID())
	assert.ErrorIs(t, err, ErrNoID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, events.ActionRegistered, got[0].Action)
	assert.Equal(t, events.ActionReplaced, got[1].Action)
	require.NotNil(t, got[1].ReplacedID)
	assert.Equal(t, uint64(1), *got[1].ReplacedID)
	assert.Equal(t, events.ActionDeregistered, got[2].Action)
	assert.Equal(t, "dbmgr", got[2].ComponentType)
	assert.Equal(t, int64(3), got[2].Revision)
	assert.Equal(t, "10.0.0.1:30002", got[1].InternalAddr)
}

func TestRegistryVersionGate(t *testing.T) {
	gate, err := semver.NewGate(">=2.0.0")
	require.NoError(t, err)
	r := NewRegistry(NewRegistryParams{Gate: gate})
	defer r.Close()
	ctx := context.Background()

	old := info(component.CellApp, 1)
	old.Version = "1.4.0"
	_, err = r.Register(ctx, old)
	assert.ErrorIs(t, err, ErrVersionRejected)

	current := info(component.CellApp, 2)
	current.Version = "2.0.1"
	_, err = r.Register(ctx, current)
	require.NoError(t, err)

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegistryConcurrentGenerateID(t *testing.T) {
	r := NewRegistry(NewRegistryParams{})
	defer r.Close()

	const workers = 16
	ids := make(chan component.ID, workers*10)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				id, err := r.GenerateID(context.Background())
				assert.NoError(t, err)
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[component.ID]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, workers*10)
}

func TestRegistryReadsReturnCopies(t *testing.T) {
	r := NewRegistry(NewRegistryParams{})
	defer r.Close()
	ctx := context.Background()
	_, err := r.Register(ctx, info(component.BaseApp, 3))
	require.NoError(t, err)

	got, ok, err := r.GetByID(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	got.Username = "changed"

	again, err := r.GetInfo(ctx, component.BaseApp)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "kbe", again[0].Username)

	all, err := r.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRegistryClosed(t *testing.T) {
	r := NewRegistry(NewRegistryParams{})
	r.Close()
	r.Close()
	_, err := r.GenerateID(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistryContextCancelled(t *testing.T) {
	r := NewRegistry(NewRegistryParams{})
	defer r.Close()

	block := make(chan struct{})
	go func() {
		_ = r.do(context.Background(), func(*Store) { <-block })
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Len(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}
