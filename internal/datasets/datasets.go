// Package datasets caches loaded analytics contexts by snapshot id with idle
// expiry, so repeated tool calls and chat turns skip snapshot decoding.
package datasets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vinodismyname/partnerlens/config"
	"github.com/vinodismyname/partnerlens/internal/analytics"
	"github.com/vinodismyname/partnerlens/internal/facts"
	"golang.org/x/sync/singleflight"
)

// ErrNotCached indicates an unknown or expired dataset id.
var ErrNotCached = errors.New("datasets: dataset not cached")

// Gate coordinates capacity for loaded datasets (backed by runtime.Controller).
type Gate interface {
	AcquireDataset(ctx context.Context) error
	TryAcquireDataset() bool
	ReleaseDataset()
}

// Loader reads a stored fact table by id; snapshots.Store satisfies it.
type Loader interface {
	Load(ctx context.Context, id string) (*facts.Table, error)
}

type entry struct {
	ac        *analytics.Context
	loadedAt  time.Time
	expiresAt time.Time
}

// Manager is an idle-TTL cache of analytics contexts.
type Manager struct {
	mu           sync.Mutex
	entries      map[string]*entry
	ttl          time.Duration
	cleanupEvery time.Duration
	clock        func() time.Time
	gate         Gate
	loader       Loader
	loads        singleflight.Group
	stopCh       chan struct{}
	stopOnce     sync.Once
	cleanupWG    sync.WaitGroup
}

// NewManager constructs a cache. ttl or cleanupEvery <= 0 use config defaults;
// gate may be nil; clock defaults to time.Now.
func NewManager(ttl, cleanupEvery time.Duration, gate Gate, loader Loader, clock func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultDatasetIdleTTL
	}
	if cleanupEvery <= 0 {
		cleanupEvery = config.DefaultDatasetCleanupPeriod
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		entries:      make(map[string]*entry),
		ttl:          ttl,
		cleanupEvery: cleanupEvery,
		clock:        clock,
		gate:         gate,
		loader:       loader,
		stopCh:       make(chan struct{}),
	}
}

// Start launches periodic eviction of idle datasets.
func (m *Manager) Start() {
	m.cleanupWG.Add(1)
	ticker := time.NewTicker(m.cleanupEvery)
	go func() {
		defer m.cleanupWG.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops background cleanup and drops every cached dataset.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	done := make(chan struct{})
	go func() { m.cleanupWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	n := len(m.entries)
	m.entries = make(map[string]*entry)
	m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.release()
	}
	return nil
}

// Put caches ac under ac.ID, replacing any previous context for that id. A new
// id takes a gate slot; expired entries are dropped first to make room, and
// when the gate is still full the least recently used dataset is evicted.
func (m *Manager) Put(ctx context.Context, ac *analytics.Context) error {
	if ac == nil || ac.ID == "" {
		return fmt.Errorf("datasets: context without id")
	}
	now := m.clock()

	m.mu.Lock()
	if e, ok := m.entries[ac.ID]; ok {
		e.ac, e.loadedAt, e.expiresAt = ac, now, now.Add(m.ttl)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.EvictExpired()
	if !m.tryAcquire() {
		m.evictLeastRecent()
		if err := m.acquire(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[ac.ID]; ok {
		// raced with another Put for the same id
		e.ac, e.loadedAt, e.expiresAt = ac, now, now.Add(m.ttl)
		m.release()
		return nil
	}
	m.entries[ac.ID] = &entry{ac: ac, loadedAt: now, expiresAt: now.Add(m.ttl)}
	return nil
}

// Get returns the cached context and refreshes its idle timeout.
func (m *Manager) Get(id string) (*analytics.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	e.expiresAt = m.clock().Add(m.ttl)
	return e.ac, true
}

// GetOrLoad returns the cached context for id, loading the snapshot on a miss.
// Concurrent misses for one id share a single load.
func (m *Manager) GetOrLoad(ctx context.Context, id string) (*analytics.Context, error) {
	if ac, ok := m.Get(id); ok {
		return ac, nil
	}
	if m.loader == nil {
		return nil, ErrNotCached
	}
	v, err, _ := m.loads.Do(id, func() (any, error) {
		if ac, ok := m.Get(id); ok {
			return ac, nil
		}
		t, err := m.loader.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		ac := analytics.NewContext(id, t)
		if err := m.Put(ctx, ac); err != nil {
			return nil, err
		}
		return ac, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*analytics.Context), nil
}

// Evict removes id from the cache.
func (m *Manager) Evict(id string) error {
	m.mu.Lock()
	_, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotCached
	}
	m.release()
	return nil
}

// EvictExpired drops idle datasets and reports how many were removed.
func (m *Manager) EvictExpired() int {
	now := m.clock()
	m.mu.Lock()
	var n int
	for id, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, id)
			n++
		}
	}
	m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.release()
	}
	return n
}

// Count returns the number of cached datasets.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) acquire(ctx context.Context) error {
	if m.gate == nil {
		return nil
	}
	return m.gate.AcquireDataset(ctx)
}

func (m *Manager) tryAcquire() bool {
	if m.gate == nil {
		return true
	}
	return m.gate.TryAcquireDataset()
}

// evictLeastRecent drops the entry with the earliest idle deadline.
func (m *Manager) evictLeastRecent() {
	m.mu.Lock()
	var (
		oldest string
		first  time.Time
	)
	for id, e := range m.entries {
		if oldest == "" || e.expiresAt.Before(first) {
			oldest, first = id, e.expiresAt
		}
	}
	if oldest == "" {
		m.mu.Unlock()
		return
	}
	delete(m.entries, oldest)
	m.mu.Unlock()
	m.release()
}

func (m *Manager) release() {
	if m.gate == nil {
		return
	}
	m.gate.ReleaseDataset()
}
