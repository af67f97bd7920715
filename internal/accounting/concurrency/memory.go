package concurrency

import (
	"context"
	"sync"
)

// Versioned is a stored value with its version counter.
type Versioned[V any] struct {
	Value   V
	Version int64
}

// MemoryTable is a mutex-guarded versioned map satisfying Adapter.
type MemoryTable[K comparable, V any] struct {
	mu   sync.RWMutex
	rows map[K]Versioned[V]
}

// NewMemoryTable returns an empty table.
func NewMemoryTable[K comparable, V any]() *MemoryTable[K, V] {
	return &MemoryTable[K, V]{rows: make(map[K]Versioned[V])}
}

// Insert stores value at version 1. It returns false when the key exists.
func (t *MemoryTable[K, V]) Insert(key K, value V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[key]; ok {
		return false
	}
	t.rows[key] = Versioned[V]{Value: value, Version: 1}
	return true
}

// Upsert applies fn to the current value (zero value and false when absent)
// and stores the result, starting at version 1 or incrementing.
func (t *MemoryTable[K, V]) Upsert(key K, fn func(current V, exists bool) V) Versioned[V] {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[key]
	next := Versioned[V]{Value: fn(row.Value, ok), Version: 1}
	if ok {
		next.Version = row.Version + 1
	}
	t.rows[key] = next
	return next
}

// Get returns the stored row.
func (t *MemoryTable[K, V]) Get(key K) (Versioned[V], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[key]
	return row, ok
}

// Delete removes key and reports whether it existed.
func (t *MemoryTable[K, V]) Delete(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rows[key]
	delete(t.rows, key)
	return ok
}

// DeleteWhere removes every row matching match and returns the count.
func (t *MemoryTable[K, V]) DeleteWhere(match func(K, V) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, row := range t.rows {
		if match(k, row.Value) {
			delete(t.rows, k)
			n++
		}
	}
	return n
}

// Select returns every row matching match in unspecified order.
func (t *MemoryTable[K, V]) Select(match func(K, V) bool) []Versioned[V] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Versioned[V], 0)
	for k, row := range t.rows {
		if match == nil || match(k, row.Value) {
			out = append(out, row)
		}
	}
	return out
}

// UpdateIfVersion implements Adapter.
func (t *MemoryTable[K, V]) UpdateIfVersion(_ context.Context, key K, expected int64, value V) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[key]
	if !ok || row.Version != expected {
		return 0, nil
	}
	t.rows[key] = Versioned[V]{Value: value, Version: expected + 1}
	return 1, nil
}

// CurrentVersion implements Adapter.
func (t *MemoryTable[K, V]) CurrentVersion(_ context.Context, key K) (int64, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[key]
	return row.Version, ok, nil
}
