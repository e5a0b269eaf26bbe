package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tripstack/contentfetch/internal/fetch"
	"github.com/tripstack/contentfetch/internal/telemetry"
)

type entry struct {
	value     fetch.Result
	expiresAt time.Time
}

// Memory is the in-process cache tier. Reads are lock-shared; expired
// entries are dropped lazily on Get and proactively by the janitor.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry

	now func() time.Time
}

// NewMemory creates an in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value if present and not expired.
func (m *Memory) Get(_ context.Context, key string) (fetch.Result, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		telemetry.ObserveCacheOp("memory", "get", "miss")
		return fetch.Result{}, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, still := m.entries[key]; still && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		telemetry.ObserveCacheOp("memory", "get", "expired")
		return fetch.Result{}, false, nil
	}
	telemetry.ObserveCacheOp("memory", "get", "hit")
	return e.value, true, nil
}

// Set stores value under key for ttl. Entries are immutable; a Set with the
// same key replaces the whole entry.
func (m *Memory) Set(_ context.Context, key string, value fetch.Result, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	telemetry.ObserveCacheOp("memory", "set", "ok")
	return nil
}

// Delete removes key if present.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	telemetry.ObserveCacheOp("memory", "delete", "ok")
	return nil
}

// Len reports the number of stored entries, including not-yet-swept
// expired ones.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// StartJanitor sweeps expired entries every interval until ctx finishes.
func (m *Memory) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Memory) sweep() {
	now := m.now()
	m.mu.Lock()
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}
