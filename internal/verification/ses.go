package verification

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"mailhook/pkg/sentinel"
)

// SESAPI is the subset of the SES client the adapter uses. Tests substitute a
// fake.
type SESAPI interface {
	VerifyDomainIdentity(ctx context.Context, params *ses.VerifyDomainIdentityInput, optFns ...func(*ses.Options)) (*ses.VerifyDomainIdentityOutput, error)
	VerifyDomainDkim(ctx context.Context, params *ses.VerifyDomainDkimInput, optFns ...func(*ses.Options)) (*ses.VerifyDomainDkimOutput, error)
	GetIdentityVerificationAttributes(ctx context.Context, params *ses.GetIdentityVerificationAttributesInput, optFns ...func(*ses.Options)) (*ses.GetIdentityVerificationAttributesOutput, error)
	DeleteIdentity(ctx context.Context, params *ses.DeleteIdentityInput, optFns ...func(*ses.Options)) (*ses.DeleteIdentityOutput, error)
}

// SES verifies domains through Amazon SES identities.
type SES struct {
	client    SESAPI
	inboundMX string
}

func NewSES(client SESAPI, inboundMX string) *SES {
	return &SES{client: client, inboundMX: inboundMX}
}

func (s *SES) RequestVerification(ctx context.Context, domain string) (Result, error) {
	identity, err := s.client.VerifyDomainIdentity(ctx, &ses.VerifyDomainIdentityInput{
		Domain: aws.String(domain),
	})
	if err != nil {
		return Result{}, fmt.Errorf("verify domain identity: %w: %w", sentinel.ErrUnavailable, err)
	}

	dkim, err := s.client.VerifyDomainDkim(ctx, &ses.VerifyDomainDkimInput{
		Domain: aws.String(domain),
	})
	if err != nil {
		return Result{}, fmt.Errorf("verify domain dkim: %w: %w", sentinel.ErrUnavailable, err)
	}

	return Result{
		VerificationToken: aws.ToString(identity.VerificationToken),
		DKIMTokens:        dkim.DkimTokens,
	}, nil
}

func (s *SES) GetVerificationStatus(ctx context.Context, domain string) (Status, error) {
	out, err := s.client.GetIdentityVerificationAttributes(ctx, &ses.GetIdentityVerificationAttributesInput{
		Identities: []string{domain},
	})
	if err != nil {
		return "", fmt.Errorf("get verification attributes: %w: %w", sentinel.ErrUnavailable, err)
	}

	attrs, ok := out.VerificationAttributes[domain]
	if !ok {
		return StatusNotStarted, nil
	}
	switch attrs.VerificationStatus {
	case types.VerificationStatusSuccess:
		return StatusSuccess, nil
	case types.VerificationStatusPending, types.VerificationStatusTemporaryFailure:
		return StatusPending, nil
	case types.VerificationStatusFailed:
		return StatusFailed, nil
	default:
		return StatusNotStarted, nil
	}
}

func (s *SES) RevokeVerification(ctx context.Context, domain string) error {
	_, err := s.client.DeleteIdentity(ctx, &ses.DeleteIdentityInput{
		Identity: aws.String(domain),
	})
	if err != nil {
		return fmt.Errorf("delete identity: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *SES) DNSRecords(domain string, result Result) []DNSRecord {
	records := []DNSRecord{
		{Type: "MX", Name: domain, Value: s.inboundMX, Priority: 10},
		{Type: "TXT", Name: "_amazonses." + domain, Value: result.VerificationToken},
	}
	for _, token := range result.DKIMTokens {
		records = append(records, DNSRecord{
			Type:  "CNAME",
			Name:  token + "._domainkey." + domain,
			Value: token + ".dkim.amazonses.com",
		})
	}
	return records
}
