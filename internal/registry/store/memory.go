package store

import (
	"context"
	"sort"
	"sync"

	"mailhook/internal/registry/models"
	"mailhook/pkg/sentinel"
)

// Memory is an in-memory Store for tests and local development.
type Memory struct {
	mu      sync.RWMutex
	domains map[string]*models.DomainRecord
}

func NewMemory() *Memory {
	return &Memory{domains: make(map[string]*models.DomainRecord)}
}

func (s *Memory) Create(_ context.Context, record *models.DomainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[record.Domain]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.domains[record.Domain] = clone(record)
	return nil
}

func (s *Memory) Get(_ context.Context, domain string) (*models.DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.domains[domain]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(record), nil
}

func (s *Memory) Update(_ context.Context, record *models.DomainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[record.Domain]; !ok {
		return sentinel.ErrNotFound
	}
	s.domains[record.Domain] = clone(record)
	return nil
}

func (s *Memory) Delete(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[domain]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.domains, domain)
	return nil
}

func (s *Memory) List(_ context.Context) ([]*models.DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.DomainRecord, 0, len(s.domains))
	for _, record := range s.domains {
		out = append(out, clone(record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func clone(record *models.DomainRecord) *models.DomainRecord {
	c := *record
	c.DKIMTokens = append([]string(nil), record.DKIMTokens...)
	if record.Function != nil {
		fn := *record.Function
		c.Function = &fn
	}
	return &c
}
