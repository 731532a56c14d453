// Package metrics exposes Prometheus metrics for the message pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	messages  *prometheus.CounterVec
	webhooks  *prometheus.CounterVec
	functions *prometheus.CounterVec
	duration  prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		messages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailhook_messages_processed_total",
			Help: "Messages processed by final outcome.",
		}, []string{"outcome"}),
		webhooks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailhook_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		functions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailhook_function_invocations_total",
			Help: "Function invocations by outcome.",
		}, []string{"outcome"}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailhook_message_processing_seconds",
			Help:    "End-to-end processing time per message.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncMessage(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncFunction(outcome string) {
	if m == nil {
		return
	}
	m.functions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveProcessing(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}
