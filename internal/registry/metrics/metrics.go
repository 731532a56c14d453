// Package metrics exposes Prometheus metrics for the domain registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects registry operation counters. A nil *Metrics is valid and
// records nothing, so tests can pass nil.
type Metrics struct {
	operations        *prometheus.CounterVec
	verificationState *prometheus.GaugeVec
}

func New() *Metrics {
	return &Metrics{
		operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailhook_registry_operations_total",
			Help: "Registry operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		verificationState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailhook_registry_domains",
			Help: "Registered domains by verification status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) SetDomainCount(status string, n float64) {
	if m == nil {
		return
	}
	m.verificationState.WithLabelValues(status).Set(n)
}
