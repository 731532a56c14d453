// Package ingest orchestrates message processing: fetch the raw message,
// parse it, upload attachments, run the domain's function, deliver to the
// webhook, and record the outcome for idempotency.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"mailhook/internal/events"
	"mailhook/internal/functions"
	"mailhook/internal/ingest/attachments"
	"mailhook/internal/ingest/delivery"
	"mailhook/internal/ingest/metrics"
	"mailhook/internal/ingest/parser"
	"mailhook/internal/ingest/webhook"
	"mailhook/internal/objectstore"
	"mailhook/internal/registry/models"
	"mailhook/internal/registry/store"
	"mailhook/pkg/sentinel"
)

// Outcome is the terminal state of one trigger for one message.
type Outcome string

const (
	OutcomeDelivered        Outcome = "delivered"
	OutcomeAlreadyDelivered Outcome = "already_delivered"
	OutcomeInFlight         Outcome = "in_flight"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeUnknownDomain    Outcome = "unknown_domain"
	OutcomeNoWebhook        Outcome = "no_webhook"
	OutcomeWebhookFailed    Outcome = "webhook_failed"
)

// Pipeline wires the processing stages together. All stages run under one
// deadline so a stuck upstream cannot hold a trigger open indefinitely.
type Pipeline struct {
	raw      objectstore.Store
	uploader *attachments.Uploader
	domains  store.Store
	invoker  *functions.Invoker
	webhook  *webhook.Client
	records  delivery.Store
	claims   ClaimStore
	events   events.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// ClaimStore is the cross-process duplicate guard: a SetNX-style claim keeps
// two nodes from processing the same trigger concurrently. Nil disables the
// guard; the delivery record remains the durable idempotency check.
type ClaimStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

func NewPipeline(
	raw objectstore.Store,
	uploader *attachments.Uploader,
	domains store.Store,
	invoker *functions.Invoker,
	wh *webhook.Client,
	records delivery.Store,
	claims ClaimStore,
	publisher events.Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
	timeout time.Duration,
) *Pipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{
		raw:      raw,
		uploader: uploader,
		domains:  domains,
		invoker:  invoker,
		webhook:  wh,
		records:  records,
		claims:   claims,
		events:   publisher,
		logger:   logger,
		metrics:  m,
		timeout:  timeout,
	}
}

// Run processes one stored message. bucket/key address the raw message
// object; the object key's basename is the provider message ID and the
// idempotency key.
func (p *Pipeline) Run(ctx context.Context, bucket, key string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	messageID := path.Base(key)
	logger := p.logger.With("message_id", messageID)

	if p.claims != nil {
		ok, err := p.claims.Claim(ctx, "ingest:claim:"+messageID, p.timeout)
		if err != nil {
			logger.WarnContext(ctx, "claim check failed, proceeding without guard", "error", err.Error())
		} else if !ok {
			p.metrics.IncMessage(string(OutcomeInFlight))
			return OutcomeInFlight, nil
		} else {
			defer p.claims.Release(ctx, "ingest:claim:"+messageID)
		}
	}

	record, fresh, err := p.claimRecord(ctx, messageID)
	if err != nil {
		return "", err
	}
	if !fresh && record.WebhookDelivered() {
		p.metrics.IncMessage(string(OutcomeAlreadyDelivered))
		logger.InfoContext(ctx, "message already delivered, skipping")
		return OutcomeAlreadyDelivered, nil
	}

	outcome, err := p.process(ctx, logger, bucket, key, messageID, record)
	if err != nil {
		return "", err
	}

	p.metrics.IncMessage(string(outcome))
	p.metrics.ObserveProcessing(time.Since(start).Seconds())
	return outcome, nil
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, bucket, key, messageID string, record *delivery.Record) (Outcome, error) {
	raw, err := p.raw.Get(ctx, bucket, key)
	if err != nil {
		return "", fmt.Errorf("fetch raw message %s/%s: %w", bucket, key, err)
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		if errors.Is(err, parser.ErrMalformed) {
			record.ProcessingError = err.Error()
			p.saveRecord(ctx, logger, record)
			logger.WarnContext(ctx, "message is malformed", "error", err.Error())
			return OutcomeMalformed, nil
		}
		return "", fmt.Errorf("parse message: %w", err)
	}
	record.Domain = msg.Domain
	logger = logger.With("domain", msg.Domain, "recipient", msg.Recipient)

	domain, err := p.domains.Get(ctx, msg.Domain)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			record.ProcessingError = "recipient domain is not registered"
			p.saveRecord(ctx, logger, record)
			logger.WarnContext(ctx, "recipient domain is not registered")
			return OutcomeUnknownDomain, nil
		}
		return "", fmt.Errorf("lookup domain %s: %w", msg.Domain, err)
	}

	refs, err := p.uploader.Upload(ctx, msg.Attachments)
	if err != nil {
		return "", fmt.Errorf("upload attachments: %w", err)
	}

	payload, err := BuildPayload(messageID, msg, refs)
	if err != nil {
		return "", fmt.Errorf("build payload: %w", err)
	}
	record.PayloadSnapshot = payload

	payload = p.runFunction(ctx, logger, domain, record, payload)

	if domain.WebhookURL == "" {
		record.ProcessingError = "no webhook configured"
		p.saveRecord(ctx, logger, record)
		logger.InfoContext(ctx, "processed without delivery, no webhook configured")
		return OutcomeNoWebhook, nil
	}

	result := p.webhook.Deliver(ctx, domain.WebhookURL, payload)
	record.WebhookInvoked = true
	record.WebhookStatusCode = result.StatusCode
	record.WebhookResponse = result.Body
	if result.Err != nil {
		record.WebhookResponse = result.Err.Error()
	}
	record.ProcessingError = ""
	p.saveRecord(ctx, logger, record)

	if !result.Succeeded() {
		p.metrics.IncWebhook("failure")
		p.events.Emit(ctx, events.Event{
			Type:      events.TypeMessageFailed,
			Domain:    msg.Domain,
			MessageID: messageID,
		})
		logger.ErrorContext(ctx, "webhook delivery failed",
			"webhook_url", domain.WebhookURL, "error", webhookFailure(result))
		return OutcomeWebhookFailed, nil
	}

	p.metrics.IncWebhook("success")
	p.events.Emit(ctx, events.Event{
		Type:      events.TypeMessageDelivered,
		Domain:    msg.Domain,
		MessageID: messageID,
	})
	logger.InfoContext(ctx, "message delivered", "webhook_status", *result.StatusCode)
	return OutcomeDelivered, nil
}

// runFunction invokes the domain's function when enabled. The function is
// fail-open: only a 2xx JSON response replaces the payload, every other
// outcome leaves the original payload in effect and is recorded as metadata.
func (p *Pipeline) runFunction(ctx context.Context, logger *slog.Logger, domain *models.DomainRecord, record *delivery.Record, payload []byte) []byte {
	if !domain.FunctionEnabled() {
		return payload
	}

	result := p.invoker.Invoke(ctx, domain.Function, payload)
	record.FunctionInvoked = true
	record.FunctionStatusCode = result.StatusCode
	if result.Err != nil {
		record.FunctionResponse = result.Err.Error()
		p.metrics.IncFunction("error")
		logger.WarnContext(ctx, "function invocation failed, delivering original payload",
			"error", result.Err.Error())
		return payload
	}
	record.FunctionResponse = string(result.Body)

	transformed, ok := result.TransformedPayload()
	if !ok {
		p.metrics.IncFunction("rejected")
		logger.WarnContext(ctx, "function response unusable, delivering original payload",
			"function_status", *result.StatusCode)
		return payload
	}
	p.metrics.IncFunction("success")
	return transformed
}

// claimRecord creates the delivery record or, when another trigger got there
// first, loads the existing one. fresh is true when this call created it.
func (p *Pipeline) claimRecord(ctx context.Context, messageID string) (*delivery.Record, bool, error) {
	record := &delivery.Record{MessageID: messageID}
	err := p.records.Create(ctx, record)
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, sentinel.ErrAlreadyExists) {
		return nil, false, fmt.Errorf("create delivery record: %w", err)
	}
	existing, err := p.records.Get(ctx, messageID)
	if err != nil {
		return nil, false, fmt.Errorf("load delivery record: %w", err)
	}
	return existing, false, nil
}

func (p *Pipeline) saveRecord(ctx context.Context, logger *slog.Logger, record *delivery.Record) {
	if err := p.records.Update(ctx, record); err != nil {
		logger.ErrorContext(ctx, "failed to persist delivery record", "error", err.Error())
	}
}

func webhookFailure(result webhook.Result) string {
	if result.Err != nil {
		return result.Err.Error()
	}
	return fmt.Sprintf("status %d", *result.StatusCode)
}
