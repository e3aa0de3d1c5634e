package storage_test

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/williamokano/s3backend/pkg/storage"
)

// memStore is an in-memory ObjectStore honoring write conditions
type memStore struct {
	mu      sync.Mutex
	objects map[string]storage.Object
	version int
	closed  bool
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]storage.Object)}
}

func (m *memStore) Head(ctx context.Context, key string) (*storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	obj.Payload = nil
	return &obj, nil
}

func (m *memStore) Read(ctx context.Context, key string) (*storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	obj.Payload = append([]byte(nil), obj.Payload...)
	return &obj, nil
}

func (m *memStore) Write(ctx context.Context, obj *storage.Object, cond storage.Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.objects[obj.Key]
	if cond.IfNoneMatch && exists {
		return storage.ErrPreconditionFailed
	}
	if cond.IfMatch != "" && (!exists || current.ETag != cond.IfMatch) {
		return storage.ErrPreconditionFailed
	}

	m.version++
	stored := *obj
	stored.Payload = append([]byte(nil), obj.Payload...)
	stored.ETag = strconv.Itoa(m.version)
	m.objects[obj.Key] = stored
	return nil
}

func (m *memStore) Remove(ctx context.Context, key string, cond storage.Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// corrupt stores an object without a usable timestamp
func (m *memStore) corrupt(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	m.objects[key] = storage.Object{Key: key, ETag: strconv.Itoa(m.version)}
}
