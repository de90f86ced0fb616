package observability

import (
	"context"

	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by graph lifecycle hooks.
type Metrics struct {
	NodeVisits     *prometheus.CounterVec
	NodeFailures   *prometheus.CounterVec
	NodeDuration   *prometheus.HistogramVec
	Routes         *prometheus.CounterVec
	Invocations    *prometheus.CounterVec
	InvokeDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg (skipped when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stategraph_node_visits_total",
				Help: "Total number of node visits",
			},
			[]string{"graph", "node_id"},
		),
		NodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stategraph_node_failures_total",
				Help: "Node executions that returned an error, panicked or produced an invalid update",
			},
			[]string{"graph", "node_id"},
		),
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stategraph_node_duration_seconds",
				Help:    "Duration of node executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"graph", "node_id"},
		),
		Routes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stategraph_routes_total",
				Help: "Routing decisions by source, target and mechanism",
			},
			[]string{"graph", "from", "to", "via"},
		),
		Invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stategraph_invocations_total",
				Help: "Finished invocations by status",
			},
			[]string{"graph", "status"},
		),
		InvokeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stategraph_invocation_duration_seconds",
				Help:    "Duration of whole invocations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"graph"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.NodeVisits, m.NodeFailures, m.NodeDuration, m.Routes, m.Invocations, m.InvokeDuration)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.Graph, e.NodeID).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeDuration.WithLabelValues(e.Graph, e.NodeID).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.NodeFailures.WithLabelValues(e.Graph, e.NodeID).Inc()
			}
		},
		OnRoute: func(_ context.Context, e *domain.RouteEvent) {
			m.Routes.WithLabelValues(e.Graph, e.From, e.To, e.Via).Inc()
		},
		OnInvokeEnd: func(_ context.Context, e *domain.InvokeEvent) {
			m.Invocations.WithLabelValues(e.Graph, string(e.Status)).Inc()
			m.InvokeDuration.WithLabelValues(e.Graph).Observe(e.Duration.Seconds())
		},
	}
}
