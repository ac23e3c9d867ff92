package annotations

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "annostore"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	WritesTotal    *prometheus.CounterVec
	ConflictsTotal *prometheus.CounterVec
	DeletesTotal   *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "writes_total",
			Help:      "Committed annotation writes by scope and outcome (create, head, archive).",
		}, []string{"dataset", "kind", "outcome"}),
		ConflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "write_conflicts_total",
			Help:      "Writes abandoned after the store exhausted transaction retries.",
		}, []string{"dataset", "kind"}),
		DeletesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "deletes_total",
			Help:      "Administrative deletes by scope.",
		}, []string{"dataset", "kind"}),
	}
}

func (m *Metrics) write(scope Scope, outcome Outcome) {
	if m == nil {
		return
	}
	m.WritesTotal.WithLabelValues(scope.Dataset, scope.Kind, string(outcome)).Inc()
}

func (m *Metrics) conflict(scope Scope) {
	if m == nil {
		return
	}
	m.ConflictsTotal.WithLabelValues(scope.Dataset, scope.Kind).Inc()
}

func (m *Metrics) delete(scope Scope) {
	if m == nil {
		return
	}
	m.DeletesTotal.WithLabelValues(scope.Dataset, scope.Kind).Inc()
}
