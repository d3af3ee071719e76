package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Storage for tests and single-instance use.
//
// Set and Remove are treated as writes by this instance and are not reported
// to watchers. SetExternal and RemoveExternal simulate another instance and
// are reported.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string]string
	watchers map[int]func(Change)
	nextID   int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]string),
		watchers: make(map[int]func(Change)),
	}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// SetExternal writes key as if another instance did, notifying watchers.
func (m *MemoryStore) SetExternal(key, value string) {
	m.mu.Lock()
	m.data[key] = value
	fns := m.snapshotWatchers()
	m.mu.Unlock()

	for _, fn := range fns {
		fn(Change{Key: key})
	}
}

// RemoveExternal deletes key as if another instance did, notifying watchers.
func (m *MemoryStore) RemoveExternal(key string) {
	m.mu.Lock()
	delete(m.data, key)
	fns := m.snapshotWatchers()
	m.mu.Unlock()

	for _, fn := range fns {
		fn(Change{Key: key, Removed: true})
	}
}

// Watch registers fn. Notifications run synchronously on the caller of
// SetExternal/RemoveExternal.
func (m *MemoryStore) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	return stop, nil
}

func (m *MemoryStore) snapshotWatchers() []func(Change) {
	fns := make([]func(Change), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	return fns
}

var (
	_ Storage = (*MemoryStore)(nil)
	_ Watcher = (*MemoryStore)(nil)
)
