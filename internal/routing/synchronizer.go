package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"mailhook/internal/routing/metrics"
	"mailhook/pkg/sentinel"
)

// ErrSyncConflict is returned once the retry budget for versioned writes is
// exhausted. Callers may retry the whole operation later.
var ErrSyncConflict = errors.New("routing rule sync conflict")

const defaultMaxAttempts = 5

// VerifiedLister supplies the desired recipient set for a full reconciliation.
// The domain registry is the source of truth; only verified domains route.
type VerifiedLister interface {
	ListVerifiedRecipients(ctx context.Context) ([]Recipient, error)
}

// ResyncResult reports a full reconciliation outcome. Dropped domains stay
// registered; they just no longer fit the external rule's capacity.
type ResyncResult struct {
	DomainsCount int      `json:"domains_count"`
	Dropped      []string `json:"dropped,omitempty"`
}

// Synchronizer reconciles the registry against the external routing rule
// using optimistic concurrency. It is safe for concurrent use; conflicting
// writers converge through the read-retry loop.
type Synchronizer struct {
	rules       RulePort
	ruleName    string
	ranker      *Ranker
	capacity    int
	lister      VerifiedLister
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
	retryMin    time.Duration
	retryMax    time.Duration
}

func NewSynchronizer(rules RulePort, ruleName string, ranker *Ranker, capacity int, lister VerifiedLister, logger *slog.Logger, m *metrics.Metrics) *Synchronizer {
	return &Synchronizer{
		rules:       rules,
		ruleName:    ruleName,
		ranker:      ranker,
		capacity:    capacity,
		lister:      lister,
		logger:      logger,
		metrics:     m,
		maxAttempts: defaultMaxAttempts,
		retryMin:    200 * time.Millisecond,
		retryMax:    5 * time.Second,
	}
}

// SyncDomainAdd inserts a domain into the rule's recipient list. Adding an
// already-present domain is a no-op success unless the new registration
// outranks the existing one, in which case the entry moves to the winning
// environment.
func (s *Synchronizer) SyncDomainAdd(ctx context.Context, domain, environment string) error {
	return s.withRetry(ctx, "add", func(state RuleState) ([]Recipient, bool) {
		recipients := append([]Recipient(nil), state.Recipients...)
		for i, r := range recipients {
			if r.Domain != domain {
				continue
			}
			if s.ranker.Rank(environment) >= s.ranker.Rank(r.Environment) {
				return nil, false
			}
			recipients[i].Environment = environment
			return recipients, true
		}
		recipients = append(recipients, Recipient{Domain: domain, Environment: environment})
		return recipients, true
	})
}

// SyncDomainRemove removes a domain from the rule. Removing an absent domain
// is a no-op success.
func (s *Synchronizer) SyncDomainRemove(ctx context.Context, domain string) error {
	return s.withRetry(ctx, "remove", func(state RuleState) ([]Recipient, bool) {
		recipients := make([]Recipient, 0, len(state.Recipients))
		found := false
		for _, r := range state.Recipients {
			if r.Domain == domain {
				found = true
				continue
			}
			recipients = append(recipients, r)
		}
		return recipients, found
	})
}

// FullResync replaces the rule's recipient list with the rank-ordered set of
// verified domains from the registry. Domains beyond the capacity are dropped
// and reported, not treated as a failure.
func (s *Synchronizer) FullResync(ctx context.Context) (ResyncResult, error) {
	desired, err := s.lister.ListVerifiedRecipients(ctx)
	if err != nil {
		return ResyncResult{}, fmt.Errorf("list verified domains: %w", err)
	}

	var result ResyncResult
	err = s.withRetry(ctx, "resync", func(RuleState) ([]Recipient, bool) {
		return append([]Recipient(nil), desired...), true
	})
	if err != nil {
		return ResyncResult{}, err
	}

	ordered := append([]Recipient(nil), desired...)
	s.ranker.Sort(ordered)
	kept, dropped := s.trim(ordered)
	result.DomainsCount = len(kept)
	for _, r := range dropped {
		result.Dropped = append(result.Dropped, r.Domain)
	}
	return result, nil
}

// withRetry runs the read-compute-write loop. compute receives the current
// state and returns the desired recipient list plus whether a write is needed
// at all; ordering and capacity trimming are applied uniformly afterwards.
func (s *Synchronizer) withRetry(ctx context.Context, operation string, compute func(RuleState) ([]Recipient, bool)) error {
	bo := &backoff.Backoff{
		Min:    s.retryMin,
		Max:    s.retryMax,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		state, err := s.rules.ReadRule(ctx, s.ruleName)
		if err != nil {
			s.metrics.ObserveSync(operation, "error")
			return fmt.Errorf("read routing rule: %w", err)
		}

		recipients, dirty := compute(state)
		if !dirty {
			s.metrics.ObserveSync(operation, "noop")
			return nil
		}

		s.ranker.Sort(recipients)
		kept, dropped := s.trim(recipients)
		if len(dropped) > 0 {
			s.metrics.ObserveDropped(len(dropped))
			s.logger.WarnContext(ctx, "routing rule capacity exceeded, dropping lowest-priority recipients",
				"operation", operation,
				"capacity", s.capacity,
				"dropped", len(dropped),
			)
		}

		_, err = s.rules.WriteRule(ctx, s.ruleName, kept, state.Version)
		if err == nil {
			s.metrics.ObserveSync(operation, "ok")
			s.metrics.SetRecipientCount(len(kept))
			return nil
		}
		if !errors.Is(err, sentinel.ErrVersionConflict) {
			s.metrics.ObserveSync(operation, "error")
			return fmt.Errorf("write routing rule: %w", err)
		}

		s.metrics.ObserveConflict()
		s.logger.DebugContext(ctx, "routing rule version conflict, retrying",
			"operation", operation,
			"attempt", attempt,
		)

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.Duration()):
		}
	}

	s.metrics.ObserveSync(operation, "conflict")
	return ErrSyncConflict
}

func (s *Synchronizer) trim(recipients []Recipient) (kept, dropped []Recipient) {
	if s.capacity <= 0 || len(recipients) <= s.capacity {
		return recipients, nil
	}
	return recipients[:s.capacity], recipients[s.capacity:]
}
