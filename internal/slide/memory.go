package slide

import (
	"context"
	"sync"
)

type memObject struct {
	mime string
	data []byte
}

type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

func NewMemory() *Memory { return &Memory{objects: make(map[string]memObject)} }

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(_ context.Context, account, mime string, data []byte) (string, error) {
	key := objectKey(account, mime)
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.objects[key] = memObject{mime: mime, data: cp}
	m.mu.Unlock()
	return key, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, "", ErrNotFound
	}
	return append([]byte(nil), obj.data...), obj.mime, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}
