// Package cache provides a concurrent string-keyed store whose get-or-insert
// is atomic: concurrent builders of one key converge on a single value.
package cache

import (
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Map is safe for concurrent use.
type Map[V any] struct {
	mu    sync.RWMutex
	items map[string]V
	group singleflight.Group
}

// New creates an empty map.
func New[V any]() *Map[V] {
	return &Map[V]{items: make(map[string]V)}
}

// Get returns the value stored under key.
func (m *Map[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

// GetOrInsert returns the value under key, calling build exactly once per
// key across all goroutines when it is absent. created reports whether
// this call's build produced the value.
func (m *Map[V]) GetOrInsert(key string, build func() V) (v V, created bool) {
	if v, ok := m.Get(key); ok {
		return v, false
	}
	// Only the goroutine whose closure runs may report creation; callers
	// joining the flight share its result.
	ran := false
	res, _, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		v := build()
		m.mu.Lock()
		m.items[key] = v
		m.mu.Unlock()
		ran = true
		return v, nil
	})
	v, _ = res.(V)
	return v, ran
}

// Insert stores v under key if absent and reports whether it was stored.
func (m *Map[V]) Insert(key string, v V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; ok {
		return false
	}
	m.items[key] = v
	return true
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Keys returns all keys in sorted order.
func (m *Map[V]) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
