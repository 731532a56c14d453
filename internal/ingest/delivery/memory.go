package delivery

import (
	"context"
	"sync"
	"time"

	"mailhook/pkg/sentinel"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.MessageID]; ok {
		return sentinel.ErrAlreadyExists
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	s.records[record.MessageID] = cloneRecord(record)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, messageID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[messageID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *MemoryStore) Update(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[record.MessageID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.UpdatedAt = time.Now().UTC()
	s.records[record.MessageID] = cloneRecord(record)
	return nil
}

func cloneRecord(r *Record) *Record {
	clone := *r
	if r.FunctionStatusCode != nil {
		v := *r.FunctionStatusCode
		clone.FunctionStatusCode = &v
	}
	if r.WebhookStatusCode != nil {
		v := *r.WebhookStatusCode
		clone.WebhookStatusCode = &v
	}
	if r.PayloadSnapshot != nil {
		clone.PayloadSnapshot = append([]byte(nil), r.PayloadSnapshot...)
	}
	return &clone
}
