// Package delivery persists the lifecycle record of each processed message.
// The record's primary key is the idempotency guard that turns at-least-once
// triggering into exactly-once side effects.
package delivery

import (
	"context"
	"encoding/json"
	"time"
)

// Record tracks one inbound message through parse → function → webhook.
// It is created once per message ID and updated in place as stages complete;
// the pipeline never deletes records.
type Record struct {
	MessageID          string          `json:"message_id"`
	Domain             string          `json:"domain"`
	FunctionInvoked    bool            `json:"function_invoked"`
	FunctionStatusCode *int            `json:"function_status_code"`
	FunctionResponse   string          `json:"function_response,omitempty"`
	WebhookInvoked     bool            `json:"webhook_invoked"`
	WebhookStatusCode  *int            `json:"webhook_status_code"`
	WebhookResponse    string          `json:"webhook_response,omitempty"`
	PayloadSnapshot    json.RawMessage `json:"payload_snapshot,omitempty"`
	ProcessingError    string          `json:"processing_error,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// WebhookDelivered reports whether the webhook stage already succeeded, which
// lets a redelivered trigger skip the POST entirely.
func (r *Record) WebhookDelivered() bool {
	return r.WebhookInvoked && r.WebhookStatusCode != nil &&
		*r.WebhookStatusCode >= 200 && *r.WebhookStatusCode < 300
}

// Store persists delivery records. Create returns
// pkg/sentinel.ErrAlreadyExists when the message ID is already claimed, which
// is how concurrent duplicate triggers lose the race.
type Store interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, messageID string) (*Record, error)
	Update(ctx context.Context, record *Record) error
}
