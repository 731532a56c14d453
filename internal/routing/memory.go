package routing

import (
	"context"
	"strconv"
	"sync"

	"mailhook/pkg/sentinel"
)

// MemoryRule is an in-process RulePort for tests and local development. It
// behaves like the external rule object: last write wins only when the writer
// saw the latest version.
type MemoryRule struct {
	mu         sync.Mutex
	recipients []Recipient
	version    int
}

func NewMemoryRule() *MemoryRule {
	return &MemoryRule{}
}

func (m *MemoryRule) ReadRule(_ context.Context, _ string) (RuleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RuleState{
		Recipients: append([]Recipient(nil), m.recipients...),
		Version:    strconv.Itoa(m.version),
	}, nil
}

func (m *MemoryRule) WriteRule(_ context.Context, _ string, recipients []Recipient, expectedVersion string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expectedVersion != strconv.Itoa(m.version) {
		return "", sentinel.ErrVersionConflict
	}
	m.recipients = append([]Recipient(nil), recipients...)
	m.version++
	return strconv.Itoa(m.version), nil
}
