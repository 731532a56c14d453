package models

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// VerificationStatus tracks provider-side domain ownership verification.
type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusPending    VerificationStatus = "pending"
	StatusVerified   VerificationStatus = "verified"
	StatusFailed     VerificationStatus = "failed"
)

// FunctionRef points at the user-supplied serverless function for a domain.
// Nil means no function; Enabled=false keeps the deployment but skips
// invocation.
type FunctionRef struct {
	CodeRef     string `json:"code_ref"`
	InvokeURL   string `json:"invoke_url"`
	Environment string `json:"environment"`
	Enabled     bool   `json:"enabled"`
}

// DomainRecord is the registry's aggregate: one registered inbound domain and
// its delivery configuration.
//
// Invariants:
//   - Domain is a lowercase FQDN and is the unique key
//   - DKIMTokens are provider-issued and immutable once set
//   - OwningEnvironment never changes after registration
type DomainRecord struct {
	Domain            string             `json:"domain"`
	Status            VerificationStatus `json:"verification_status"`
	VerificationToken string             `json:"verification_token,omitempty"`
	DKIMTokens        []string           `json:"dkim_tokens,omitempty"`
	WebhookURL        string             `json:"webhook_url,omitempty"`
	Function          *FunctionRef       `json:"function_ref,omitempty"`
	OwningEnvironment string             `json:"owning_environment"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// FunctionEnabled reports whether the pipeline should invoke a function for
// this domain.
func (r *DomainRecord) FunctionEnabled() bool {
	return r.Function != nil && r.Function.Enabled && r.Function.InvokeURL != ""
}

// hostnamePattern is the syntactic check only; no DNS lookup happens here.
var hostnamePattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)

// NormalizeDomain lowercases and trims a domain name for use as a key.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimSuffix(domain, ".")))
}

// ValidDomain reports whether domain looks like an RFC-shaped hostname.
// Callers must normalize first.
func ValidDomain(domain string) bool {
	return len(domain) <= 253 && hostnamePattern.MatchString(domain)
}

// ValidWebhookURL accepts absolute http(s) URLs with a host.
func ValidWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
