// Package verification abstracts provider-side domain ownership verification.
// One implementation exists per mail/identity provider so provider protocols
// stay out of registry logic.
package verification

import "context"

// Status is the provider's view of a domain verification.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusPending    Status = "pending"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Result carries the tokens issued when verification is requested. The
// operator publishes these as DNS records.
type Result struct {
	VerificationToken string
	DKIMTokens        []string
}

// DNSRecord is one record the domain owner must publish.
type DNSRecord struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	Priority int    `json:"priority,omitempty"`
}

// Verifier is the verification port.
type Verifier interface {
	// RequestVerification initiates (or re-reads) provider verification for
	// the domain and returns the issued tokens.
	RequestVerification(ctx context.Context, domain string) (Result, error)
	// GetVerificationStatus reports the provider's current view.
	GetVerificationStatus(ctx context.Context, domain string) (Status, error)
	// RevokeVerification removes the provider-side identity.
	RevokeVerification(ctx context.Context, domain string) error
	// DNSRecords renders the provider-specific records the owner must publish.
	DNSRecords(domain string, result Result) []DNSRecord
}
