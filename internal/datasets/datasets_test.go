package datasets

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/partnerlens/internal/analytics"
	"github.com/vinodismyname/partnerlens/internal/facts"
)

// fakeGate implements Gate for tests with counters.
type fakeGate struct {
	acquireErr error
	acquires   atomic.Int64
	releases   atomic.Int64
}

func (g *fakeGate) AcquireDataset(ctx context.Context) error {
	g.acquires.Add(1)
	return g.acquireErr
}
func (g *fakeGate) TryAcquireDataset() bool {
	g.acquires.Add(1)
	return g.acquireErr == nil
}
func (g *fakeGate) ReleaseDataset() { g.releases.Add(1) }

// slotGate is a fixed-capacity gate.
type slotGate struct {
	mu   sync.Mutex
	free int
}

func (g *slotGate) AcquireDataset(ctx context.Context) error {
	if g.TryAcquireDataset() {
		return nil
	}
	return context.DeadlineExceeded
}

func (g *slotGate) TryAcquireDataset() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.free == 0 {
		return false
	}
	g.free--
	return true
}

func (g *slotGate) ReleaseDataset() {
	g.mu.Lock()
	g.free++
	g.mu.Unlock()
}

// countingLoader serves one fixed table and counts loads.
type countingLoader struct {
	loads atomic.Int64
	delay time.Duration
	err   error
}

func (l *countingLoader) Load(ctx context.Context, id string) (*facts.Table, error) {
	l.loads.Add(1)
	time.Sleep(l.delay)
	if l.err != nil {
		return nil, l.err
	}
	return &facts.Table{
		Columns: []string{facts.PartnerID, facts.Date},
		Records: []facts.Record{{PartnerID: "P1", Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}, nil
}

func ctxFor(id string) *analytics.Context {
	return analytics.NewContext(id, &facts.Table{Records: []facts.Record{{PartnerID: "P1"}}})
}

func TestPutGetEvict(t *testing.T) {
	gate := &fakeGate{}
	m := NewManager(time.Minute, time.Minute, gate, nil, time.Now)

	require.NoError(t, m.Put(context.Background(), ctxFor("a")))
	require.NoError(t, m.Put(context.Background(), ctxFor("a")))
	require.Equal(t, 1, m.Count())
	require.Equal(t, int64(1), gate.acquires.Load())

	ac, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, "a", ac.ID)

	require.NoError(t, m.Evict("a"))
	require.ErrorIs(t, m.Evict("a"), ErrNotCached)
	require.Equal(t, 0, m.Count())
	require.Equal(t, int64(1), gate.releases.Load())

	require.Error(t, m.Put(context.Background(), nil))
}

func TestGateRefusal(t *testing.T) {
	gate := &fakeGate{acquireErr: context.DeadlineExceeded}
	m := NewManager(time.Minute, time.Minute, gate, nil, time.Now)
	require.ErrorIs(t, m.Put(context.Background(), ctxFor("a")), context.DeadlineExceeded)
	require.Zero(t, m.Count())
}

func TestPutEvictsLeastRecentWhenFull(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	gate := &slotGate{free: 2}
	m := NewManager(time.Hour, time.Minute, gate, nil, clock)
	require.NoError(t, m.Put(context.Background(), ctxFor("a")))
	now.Add(int64(time.Second))
	require.NoError(t, m.Put(context.Background(), ctxFor("b")))
	now.Add(int64(time.Second))
	_, ok := m.Get("a")
	require.True(t, ok)

	require.NoError(t, m.Put(context.Background(), ctxFor("c")))
	require.Equal(t, 2, m.Count())
	_, ok = m.Get("b")
	require.False(t, ok)
	_, ok = m.Get("a")
	require.True(t, ok)
	require.Zero(t, gate.free)
}

func TestTTLExpiryAndEviction(t *testing.T) {
	// Custom clock we can advance.
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	gate := &fakeGate{}
	m := NewManager(50*time.Millisecond, 5*time.Millisecond, gate, nil, clock)
	require.NoError(t, m.Put(context.Background(), ctxFor("a")))
	require.NoError(t, m.Put(context.Background(), ctxFor("b")))

	// Touching b keeps it alive past a's deadline.
	now.Add(int64(40 * time.Millisecond))
	_, ok := m.Get("b")
	require.True(t, ok)
	now.Add(int64(20 * time.Millisecond))

	require.Equal(t, 1, m.EvictExpired())
	_, ok = m.Get("a")
	require.False(t, ok)
	_, ok = m.Get("b")
	require.True(t, ok)
	require.Equal(t, int64(1), gate.releases.Load())
}

func TestGetOrLoadSharesConcurrentMisses(t *testing.T) {
	loader := &countingLoader{delay: 20 * time.Millisecond}
	m := NewManager(time.Minute, time.Minute, nil, loader, time.Now)

	var wg sync.WaitGroup
	results := make([]*analytics.Context, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ac, err := m.GetOrLoad(context.Background(), "snap")
			require.NoError(t, err)
			results[i] = ac
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(1), loader.loads.Load())
	for _, ac := range results {
		require.Same(t, results[0], ac)
	}

	_, err := m.GetOrLoad(context.Background(), "snap")
	require.NoError(t, err)
	require.Equal(t, int64(1), loader.loads.Load())
}

func TestGetOrLoadErrors(t *testing.T) {
	m := NewManager(time.Minute, time.Minute, nil, nil, time.Now)
	_, err := m.GetOrLoad(context.Background(), "x")
	require.ErrorIs(t, err, ErrNotCached)

	boom := errors.New("missing")
	m = NewManager(time.Minute, time.Minute, nil, &countingLoader{err: boom}, time.Now)
	_, err = m.GetOrLoad(context.Background(), "x")
	require.ErrorIs(t, err, boom)
	require.Zero(t, m.Count())
}

func TestStartClose(t *testing.T) {
	gate := &fakeGate{}
	m := NewManager(time.Minute, 5*time.Millisecond, gate, nil, time.Now)
	m.Start()
	require.NoError(t, m.Put(context.Background(), ctxFor("a")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))
	require.Zero(t, m.Count())
	require.Equal(t, int64(1), gate.releases.Load())
}
