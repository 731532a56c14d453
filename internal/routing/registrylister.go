package routing

import (
	"context"

	"mailhook/internal/registry/models"
	"mailhook/internal/registry/store"
)

// RegistryLister adapts the domain registry store to the synchronizer's
// desired-state view: verified domains only.
type RegistryLister struct {
	store store.Store
}

func NewRegistryLister(s store.Store) *RegistryLister {
	return &RegistryLister{store: s}
}

func (l *RegistryLister) ListVerifiedRecipients(ctx context.Context) ([]Recipient, error) {
	records, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	recipients := make([]Recipient, 0, len(records))
	for _, record := range records {
		if record.Status != models.StatusVerified {
			continue
		}
		recipients = append(recipients, Recipient{
			Domain:      record.Domain,
			Environment: record.OwningEnvironment,
		})
	}
	return recipients, nil
}
