package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory is a bounded in-process Store. Least recently used keys are evicted
// once the size limit is reached.
type Memory struct {
	mu    sync.Mutex
	lru   *lru.Cache
	nowFn func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an in-process store holding at most size keys.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = 10_000
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("cache: create lru: %w", err)
	}
	return &Memory{lru: c, nowFn: time.Now}, nil
}

// SetNowFunc overrides the clock used for expiry. Nil restores time.Now.
func (m *Memory) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	m.nowFn = now
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	entry := raw.(memoryEntry)
	if !entry.expires.IsZero() && !m.nowFn().Before(entry.expires) {
		m.lru.Remove(key)
		return nil, ErrMiss
	}
	return append([]byte(nil), entry.value...), nil
}

// Set implements Store. A non-positive ttl keeps the key until evicted.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expires = m.nowFn().Add(ttl)
	}
	m.lru.Add(key, entry)
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.lru.Remove(key)
	}
	return nil
}

// DeletePattern implements Store.
func (m *Memory) DeletePattern(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, raw := range m.lru.Keys() {
		key, ok := raw.(string)
		if ok && strings.HasPrefix(key, prefix) {
			m.lru.Remove(key)
		}
	}
	return nil
}

// Len reports the number of cached keys, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
