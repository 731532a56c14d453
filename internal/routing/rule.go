// Package routing keeps the provider-level mail routing rule's recipient list
// consistent with the domain registry. The external rule object has no
// transactional multi-writer API, so every mutation follows the same protocol:
// read-version → compute-diff → write-if-version-unchanged → retry-on-stale.
package routing

import "context"

// Recipient is one entry of the routing rule: a domain and the environment
// that owns its registration. Environment decides ordering when the same
// domain is registered more than once.
type Recipient struct {
	Domain      string `json:"domain"`
	Environment string `json:"environment"`
}

// RuleState mirrors the external rule: the ordered recipient list plus the
// opaque version token of the read. A write is only valid against the version
// it was computed from.
type RuleState struct {
	Recipients []Recipient
	Version    string
}

// RulePort is the compare-and-swap contract against the external rule object.
// WriteRule returns pkg/sentinel.ErrVersionConflict when another writer
// updated the rule since the expectedVersion read.
type RulePort interface {
	ReadRule(ctx context.Context, name string) (RuleState, error)
	WriteRule(ctx context.Context, name string, recipients []Recipient, expectedVersion string) (newVersion string, err error)
}
