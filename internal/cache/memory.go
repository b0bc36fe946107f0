package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// Memory is an in-process Backend. Expired entries are evicted lazily on
// read, or in bulk by Purge.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]memoryEntry
	closed  bool

	// now is replaceable in tests.
	now func() time.Time
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[Key]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(key Key) ([]byte, bool, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, false, ErrClosed
	}
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if e.expired(m.now()) {
		m.mu.Lock()
		// Re-check: a writer may have refreshed the key meanwhile.
		if cur, ok := m.entries[key]; ok && cur.expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(key Key, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[key] = memoryEntry{value: value, createdAt: m.now(), ttl: ttl}
	return nil
}

func (m *Memory) Purge() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}
