package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/smithy-go"

	"mailhook/pkg/sentinel"
)

// S3MirrorAPI is the subset of the S3 client the rule adapter uses.
type S3MirrorAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ReceiptRuleAPI is the subset of the SES client the rule adapter uses.
type ReceiptRuleAPI interface {
	DescribeReceiptRule(ctx context.Context, params *ses.DescribeReceiptRuleInput, optFns ...func(*ses.Options)) (*ses.DescribeReceiptRuleOutput, error)
	UpdateReceiptRule(ctx context.Context, params *ses.UpdateReceiptRuleInput, optFns ...func(*ses.Options)) (*ses.UpdateReceiptRuleOutput, error)
}

// SESRule implements RulePort against an Amazon SES receipt rule.
//
// SES offers no compare-and-swap on receipt rules, so the authoritative
// versioned state is a mirror document in S3 written with conditional
// requests (If-Match on the ETag). A successful mirror write is then pushed
// to the receipt rule; SES push failures leave the mirror ahead, and the next
// successful write repairs the rule.
type SESRule struct {
	s3client  S3MirrorAPI
	sesclient ReceiptRuleAPI
	bucket    string
	ruleSet   string
	logger    *slog.Logger
}

func NewSESRule(s3client S3MirrorAPI, sesclient ReceiptRuleAPI, bucket, ruleSet string, logger *slog.Logger) *SESRule {
	return &SESRule{
		s3client:  s3client,
		sesclient: sesclient,
		bucket:    bucket,
		ruleSet:   ruleSet,
		logger:    logger,
	}
}

type mirrorDocument struct {
	Recipients []Recipient `json:"recipients"`
}

func mirrorKey(name string) string {
	return "routing/" + name + ".json"
}

func (r *SESRule) ReadRule(ctx context.Context, name string) (RuleState, error) {
	out, err := r.s3client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(mirrorKey(name)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			// Rule never written: empty list, no version yet.
			return RuleState{}, nil
		}
		return RuleState{}, fmt.Errorf("read rule mirror: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return RuleState{}, fmt.Errorf("read rule mirror body: %w", err)
	}
	var doc mirrorDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return RuleState{}, fmt.Errorf("decode rule mirror: %w", err)
	}
	return RuleState{
		Recipients: doc.Recipients,
		Version:    aws.ToString(out.ETag),
	}, nil
}

func (r *SESRule) WriteRule(ctx context.Context, name string, recipients []Recipient, expectedVersion string) (string, error) {
	doc, err := json.Marshal(mirrorDocument{Recipients: recipients})
	if err != nil {
		return "", fmt.Errorf("encode rule mirror: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(mirrorKey(name)),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/json"),
	}
	if expectedVersion == "" {
		// First writer wins; a concurrent creation surfaces as a conflict.
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(expectedVersion)
	}

	out, err := r.s3client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailure(err) {
			return "", sentinel.ErrVersionConflict
		}
		return "", fmt.Errorf("write rule mirror: %w: %w", sentinel.ErrUnavailable, err)
	}

	if err := r.pushToSES(ctx, name, recipients); err != nil {
		// The mirror already advanced; the receipt rule catches up on the
		// next successful write or full resync.
		r.logger.WarnContext(ctx, "receipt rule update failed, mirror is ahead",
			"rule", name,
			"error", err,
		)
	}

	return aws.ToString(out.ETag), nil
}

func (r *SESRule) pushToSES(ctx context.Context, name string, recipients []Recipient) error {
	described, err := r.sesclient.DescribeReceiptRule(ctx, &ses.DescribeReceiptRuleInput{
		RuleSetName: aws.String(r.ruleSet),
		RuleName:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("describe receipt rule: %w", err)
	}

	rule := described.Rule
	if rule == nil {
		return fmt.Errorf("receipt rule %q not found in rule set %q", name, r.ruleSet)
	}
	rule.Recipients = make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		rule.Recipients = append(rule.Recipients, recipient.Domain)
	}

	if _, err := r.sesclient.UpdateReceiptRule(ctx, &ses.UpdateReceiptRuleInput{
		RuleSetName: aws.String(r.ruleSet),
		Rule:        rule,
	}); err != nil {
		return fmt.Errorf("update receipt rule: %w", err)
	}
	return nil
}

// isPreconditionFailure detects a lost conditional write: HTTP 412 for
// If-Match, PreconditionFailed/409 variants for If-None-Match.
func isPreconditionFailure(err error) bool {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		if code == 412 || code == 409 {
			return true
		}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
