// Package events emits operational events to Kafka for downstream consumers
// (billing, analytics, alerting). Emission is fail-open: a broker outage
// never blocks registration or message delivery.
package events

import (
	"context"
	"time"
)

// Type classifies an event.
type Type string

const (
	TypeDomainRegistered Type = "domain.registered"
	TypeDomainDeleted    Type = "domain.deleted"
	TypeMessageDelivered Type = "message.delivered"
	TypeMessageFailed    Type = "message.failed"
)

// Event is the wire payload. Domain is the Kafka record key so all events for
// one domain stay ordered within a partition.
type Event struct {
	Type      Type              `json:"type"`
	Domain    string            `json:"domain"`
	MessageID string            `json:"message_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Publisher emits events without blocking the caller on broker I/O.
type Publisher interface {
	Emit(ctx context.Context, event Event)
	Close()
}

// Noop discards all events. Used when no brokers are configured.
type Noop struct{}

func (Noop) Emit(context.Context, Event) {}
func (Noop) Close()                      {}
