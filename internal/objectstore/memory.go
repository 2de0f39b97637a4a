package objectstore

import (
	"context"
	"sync"
)

// MemoryClient is an in-process Client backed by a map, used in tests and
// local dev the way internal/store/memory stands in for Postgres.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string][]byte)}
}

func (m *MemoryClient) Put(ctx context.Context, tenantID, key string, data []byte) (string, string, error) {
	full := tenantKey(tenantID, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[full] = cp
	return "memory://" + full, Checksum(data), nil
}

func (m *MemoryClient) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	full := tenantKey(tenantID, key)
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[full]
	if !ok {
		return nil, &ErrNotFound{Key: full}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MemoryClient) Exists(ctx context.Context, tenantID, key string) (bool, error) {
	full := tenantKey(tenantID, key)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[full]
	return ok, nil
}

func (m *MemoryClient) Delete(ctx context.Context, tenantID, key string) error {
	full := tenantKey(tenantID, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, full)
	return nil
}
