// Package service implements domain registration: provider verification,
// persistence, and keeping the routing rule in step with the registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mailhook/internal/events"
	"mailhook/internal/registry/metrics"
	"mailhook/internal/registry/models"
	"mailhook/internal/registry/store"
	"mailhook/internal/routing"
	"mailhook/internal/verification"
	dErrors "mailhook/pkg/domain-errors"
	"mailhook/pkg/sentinel"
)

// Synchronizer is the slice of the routing synchronizer the registry needs.
type Synchronizer interface {
	SyncDomainAdd(ctx context.Context, domain, environment string) error
	SyncDomainRemove(ctx context.Context, domain string) error
	FullResync(ctx context.Context) (routing.ResyncResult, error)
}

// Service owns the domain registry operations.
type Service struct {
	domains     store.Store
	verifier    verification.Verifier
	sync        Synchronizer
	publisher   events.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	environment string
}

func New(
	domains store.Store,
	verifier verification.Verifier,
	sync Synchronizer,
	publisher events.Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
	environment string,
) *Service {
	return &Service{
		domains:     domains,
		verifier:    verifier,
		sync:        sync,
		publisher:   publisher,
		logger:      logger,
		metrics:     m,
		environment: environment,
	}
}

// Registration is the API view of a domain plus the DNS records its owner
// must publish.
type Registration struct {
	models.DomainRecord
	DNSRecords []verification.DNSRecord `json:"dns_records,omitempty"`
}

// Register creates a domain. Verification is requested first and the domain
// is only persisted once the provider has accepted it: a domain that the
// provider cannot verify must never receive traffic.
func (s *Service) Register(ctx context.Context, domain, webhookURL string) (*Registration, error) {
	normalized, err := s.validDomain(domain)
	if err != nil {
		return nil, err
	}
	if webhookURL != "" && !models.ValidWebhookURL(webhookURL) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "webhook_url must be an absolute http(s) URL")
	}

	result, err := s.verifier.RequestVerification(ctx, normalized)
	if err != nil {
		s.metrics.IncOperation("register", "verification_failed")
		return nil, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "domain verification request failed", err)
	}

	now := time.Now().UTC()
	record := &models.DomainRecord{
		Domain:            normalized,
		Status:            models.StatusPending,
		VerificationToken: result.VerificationToken,
		DKIMTokens:        result.DKIMTokens,
		WebhookURL:        webhookURL,
		OwningEnvironment: s.environment,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.domains.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			s.metrics.IncOperation("register", "conflict")
			return nil, dErrors.New(dErrors.CodeConflict, "domain is already registered")
		}
		s.metrics.IncOperation("register", "error")
		return nil, fmt.Errorf("create domain: %w", err)
	}

	// Routing is reconciled again on verification and by full resync, so a
	// failure here does not undo the registration.
	if err := s.sync.SyncDomainAdd(ctx, normalized, s.environment); err != nil {
		s.logger.ErrorContext(ctx, "failed to add domain to routing rule",
			"domain", normalized, "error", err.Error())
	}

	s.metrics.IncOperation("register", "success")
	s.publisher.Emit(ctx, events.Event{
		Type:   events.TypeDomainRegistered,
		Domain: normalized,
		Detail: map[string]string{"environment": s.environment},
	})
	s.logger.InfoContext(ctx, "domain registered",
		"domain", normalized, "environment", s.environment)

	return s.registration(record), nil
}

// Get returns the domain, refreshing a pending verification from the
// provider so callers see transitions without a separate poll endpoint.
func (s *Service) Get(ctx context.Context, domain string) (*Registration, error) {
	normalized, err := s.validDomain(domain)
	if err != nil {
		return nil, err
	}
	record, err := s.getRecord(ctx, normalized)
	if err != nil {
		return nil, err
	}

	if record.Status == models.StatusPending {
		record = s.refreshVerification(ctx, record)
	}
	return s.registration(record), nil
}

// Update changes the webhook destination. Verification state and the owning
// environment are immutable through this path.
func (s *Service) Update(ctx context.Context, domain, webhookURL string) (*Registration, error) {
	normalized, err := s.validDomain(domain)
	if err != nil {
		return nil, err
	}
	if !models.ValidWebhookURL(webhookURL) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "webhook_url must be an absolute http(s) URL")
	}
	record, err := s.getRecord(ctx, normalized)
	if err != nil {
		return nil, err
	}

	record.WebhookURL = webhookURL
	record.UpdatedAt = time.Now().UTC()
	if err := s.domains.Update(ctx, record); err != nil {
		s.metrics.IncOperation("update", "error")
		return nil, fmt.Errorf("update domain: %w", err)
	}
	s.metrics.IncOperation("update", "success")
	return s.registration(record), nil
}

// Delete removes a domain. The routing rule entry goes first and a failure
// there aborts the delete: a registry row may outlive its routing entry, but
// a routing entry must never outlive its registry row.
func (s *Service) Delete(ctx context.Context, domain string) error {
	normalized, err := s.validDomain(domain)
	if err != nil {
		return err
	}
	record, err := s.getRecord(ctx, normalized)
	if err != nil {
		return err
	}

	if err := s.sync.SyncDomainRemove(ctx, normalized); err != nil {
		s.metrics.IncOperation("delete", "sync_failed")
		return dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "failed to remove domain from routing rule", err)
	}

	if err := s.verifier.RevokeVerification(ctx, normalized); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke domain verification",
			"domain", normalized, "error", err.Error())
	}

	if err := s.domains.Delete(ctx, normalized); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "domain is not registered")
		}
		s.metrics.IncOperation("delete", "error")
		return fmt.Errorf("delete domain: %w", err)
	}

	s.metrics.IncOperation("delete", "success")
	s.publisher.Emit(ctx, events.Event{
		Type:   events.TypeDomainDeleted,
		Domain: normalized,
		Detail: map[string]string{"environment": record.OwningEnvironment},
	})
	s.logger.InfoContext(ctx, "domain deleted", "domain", normalized)
	return nil
}

// Resync rebuilds the routing rule from the registry's verified domains.
func (s *Service) Resync(ctx context.Context) (routing.ResyncResult, error) {
	result, err := s.sync.FullResync(ctx)
	if err != nil {
		s.metrics.IncOperation("resync", "error")
		return routing.ResyncResult{}, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "routing resync failed", err)
	}
	s.metrics.IncOperation("resync", "success")
	s.logger.InfoContext(ctx, "routing rule resynced",
		"domains", result.DomainsCount, "dropped", len(result.Dropped))
	return result, nil
}

// refreshVerification pulls the provider's current status and persists a
// transition. On provider errors the stored state is returned unchanged.
func (s *Service) refreshVerification(ctx context.Context, record *models.DomainRecord) *models.DomainRecord {
	status, err := s.verifier.GetVerificationStatus(ctx, record.Domain)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to refresh verification status",
			"domain", record.Domain, "error", err.Error())
		return record
	}

	var next models.VerificationStatus
	switch status {
	case verification.StatusSuccess:
		next = models.StatusVerified
	case verification.StatusFailed:
		next = models.StatusFailed
	default:
		return record
	}

	record.Status = next
	record.UpdatedAt = time.Now().UTC()
	if err := s.domains.Update(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist verification transition",
			"domain", record.Domain, "error", err.Error())
		return record
	}
	s.logger.InfoContext(ctx, "verification status changed",
		"domain", record.Domain, "status", next)

	// A freshly verified domain becomes routable immediately.
	if next == models.StatusVerified {
		if err := s.sync.SyncDomainAdd(ctx, record.Domain, record.OwningEnvironment); err != nil {
			s.logger.ErrorContext(ctx, "failed to add verified domain to routing rule",
				"domain", record.Domain, "error", err.Error())
		}
	}
	return record
}

func (s *Service) registration(record *models.DomainRecord) *Registration {
	reg := &Registration{DomainRecord: *record}
	if record.Status != models.StatusVerified {
		reg.DNSRecords = s.verifier.DNSRecords(record.Domain, verification.Result{
			VerificationToken: record.VerificationToken,
			DKIMTokens:        record.DKIMTokens,
		})
	}
	return reg
}

func (s *Service) getRecord(ctx context.Context, domain string) (*models.DomainRecord, error) {
	record, err := s.domains.Get(ctx, domain)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "domain is not registered")
		}
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return record, nil
}

func (s *Service) validDomain(domain string) (string, error) {
	normalized := models.NormalizeDomain(domain)
	if !models.ValidDomain(normalized) {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid domain name")
	}
	return normalized, nil
}
