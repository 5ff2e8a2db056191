package storex

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store. Writers on the same id are serialized by a
// per-id mutex; readers never block on writers of other ids.
type Memory[T any] struct {
	opts Options[T]

	mu      sync.RWMutex
	records map[string]T
	keys    map[string]string // lookup key -> id

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemory creates an empty in-memory store
func NewMemory[T any](opts Options[T]) *Memory[T] {
	return &Memory[T]{
		opts:    opts,
		records: make(map[string]T),
		keys:    make(map[string]string),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Memory[T]) lock(id string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

func (m *Memory[T]) Get(_ context.Context, id string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.records[id]
	if !ok {
		var zero T
		return zero, ErrNotFound(id)
	}
	return m.opts.clone(v), nil
}

func (m *Memory[T]) FindByKey(ctx context.Context, key string) (T, error) {
	m.mu.RLock()
	id, ok := m.keys[key]
	m.mu.RUnlock()
	if !ok {
		var zero T
		return zero, ErrNotFound(key)
	}
	return m.Get(ctx, id)
}

func (m *Memory[T]) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok, nil
}

// List returns all values ordered by id
func (m *Memory[T]) List(_ context.Context) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.opts.clone(m.records[id]))
	}
	return out, nil
}

func (m *Memory[T]) Create(_ context.Context, id string, value T, _ string) (T, error) {
	unlock := m.lock(id)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if _, exists := m.records[id]; exists {
		return zero, ErrDuplicateKey("id", id)
	}
	key := m.opts.key(value)
	if key != "" {
		if _, taken := m.keys[key]; taken {
			return zero, ErrDuplicateKey("key", key)
		}
		m.keys[key] = id
	}
	m.records[id] = m.opts.clone(value)
	return m.opts.clone(value), nil
}

func (m *Memory[T]) Update(_ context.Context, id string, fn UpdateFunc[T], _ string) (T, error) {
	unlock := m.lock(id)
	defer unlock()

	var zero T

	m.mu.RLock()
	current, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return zero, ErrNotFound(id)
	}

	next, err := fn(m.opts.clone(current))
	if err != nil {
		return zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	oldKey, newKey := m.opts.key(current), m.opts.key(next)
	if newKey != oldKey {
		if owner, taken := m.keys[newKey]; taken && newKey != "" && owner != id {
			return zero, ErrDuplicateKey("key", newKey)
		}
		delete(m.keys, oldKey)
		if newKey != "" {
			m.keys[newKey] = id
		}
	}
	m.records[id] = m.opts.clone(next)
	return m.opts.clone(next), nil
}

func (m *Memory[T]) Delete(_ context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.records[id]
	if !ok {
		return ErrNotFound(id)
	}
	if key := m.opts.key(v); key != "" {
		delete(m.keys, key)
	}
	delete(m.records, id)
	return nil
}
