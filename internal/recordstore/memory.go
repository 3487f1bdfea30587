package recordstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps values in a map, for tests and single-process demos.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[Key][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[Key][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key Key) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryBackend) Put(_ context.Context, key Key, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), raw...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }
