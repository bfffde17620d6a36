package middleware

import (
	"context"
	"sync"
	"time"
)

// MemoryLookupCache caches hash-lookup results in process memory. A
// janitor goroutine evicts expired entries once a minute.
type MemoryLookupCache struct {
	mu        sync.RWMutex
	items     map[string]memoryEntry
	stopClean chan struct{}
	closeOnce sync.Once
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory lookup cache and starts its janitor.
func NewMemoryCache() *MemoryLookupCache {
	m := &MemoryLookupCache{
		items:     make(map[string]memoryEntry),
		stopClean: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *MemoryLookupCache) Name() string { return "MemoryLookupCache" }

func (m *MemoryLookupCache) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

func (m *MemoryLookupCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	entry := memoryEntry{data: val}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = entry
	m.mu.Unlock()
}

func (m *MemoryLookupCache) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	m.items = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryLookupCache) Close() error {
	m.closeOnce.Do(func() { close(m.stopClean) })
	return nil
}

func (m *MemoryLookupCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopClean:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryLookupCache) cleanup() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.items {
		if !v.expiresAt.IsZero() && now.After(v.expiresAt) {
			delete(m.items, k)
		}
	}
}
