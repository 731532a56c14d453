// Package store persists domain records. Stores are pure I/O; validation and
// provider orchestration belong in the service.
package store

import (
	"context"

	"mailhook/internal/registry/models"
)

// Store is the persistence contract for domain records.
// Implementations return pkg/sentinel errors for factual failures
// (ErrNotFound, ErrAlreadyExists).
type Store interface {
	Create(ctx context.Context, record *models.DomainRecord) error
	Get(ctx context.Context, domain string) (*models.DomainRecord, error)
	Update(ctx context.Context, record *models.DomainRecord) error
	Delete(ctx context.Context, domain string) error
	List(ctx context.Context) ([]*models.DomainRecord, error)
}
