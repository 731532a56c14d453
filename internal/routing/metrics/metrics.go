package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SyncOperations     *prometheus.CounterVec
	VersionConflicts   prometheus.Counter
	RecipientsDropped  prometheus.Counter
	RuleRecipientCount prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		SyncOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailhook_routing_sync_operations_total",
			Help: "Total routing rule sync operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailhook_routing_version_conflicts_total",
			Help: "Total versioned rule writes lost to a concurrent writer",
		}),
		RecipientsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailhook_routing_recipients_dropped_total",
			Help: "Total recipients dropped because the rule capacity was exceeded",
		}),
		RuleRecipientCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mailhook_routing_rule_recipients",
			Help: "Recipient count written on the last successful rule update",
		}),
	}
}

func (m *Metrics) ObserveSync(operation, outcome string) {
	if m == nil {
		return
	}
	m.SyncOperations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}

func (m *Metrics) ObserveDropped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.RecipientsDropped.Add(float64(n))
}

func (m *Metrics) SetRecipientCount(n int) {
	if m == nil {
		return
	}
	m.RuleRecipientCount.Set(float64(n))
}
