package objectstore

import (
	"context"
	"fmt"
	"sync"

	"mailhook/pkg/sentinel"
)

// Memory is an in-memory Store for tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, sentinel.ErrNotFound)
	}
	return append([]byte(nil), body...), nil
}

func (m *Memory) Put(_ context.Context, bucket, key string, body []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), body...)
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key), nil
}

// Seed stores an object directly, bypassing the port, for test setup.
func (m *Memory) Seed(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), body...)
}
