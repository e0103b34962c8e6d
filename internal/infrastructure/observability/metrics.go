package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry          *prometheus.Registry
	EventsTotal       *prometheus.CounterVec
	SpinsTotal        *prometheus.CounterVec
	CorrelationMisses prometheus.Counter
	PendingEntries    prometheus.Gauge
	ForceExpiredTotal prometheus.Counter
	SpinsDroppedTotal *prometheus.CounterVec
	DuplicatesTotal   *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	AnalyzeDuration   prometheus.Histogram
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsscapt",
			Name:      "events_total",
			Help:      "Ingested transport events by type and result",
		}, []string{"type", "result"}),
		SpinsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsscapt",
			Name:      "spins_total",
			Help:      "Spins appended by resolution state",
		}, []string{"state"}),
		CorrelationMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsscapt",
			Name:      "correlation_miss_total",
			Help:      "Responses that expired without a matching screenshot",
		}),
		PendingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsscapt",
			Name:      "pending_entries",
			Help:      "Responses currently awaiting a screenshot",
		}),
		ForceExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsscapt",
			Name:      "force_expired_total",
			Help:      "Pending entries expired early by buffer backpressure or session close",
		}),
		SpinsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsscapt",
			Name:      "spins_dropped_total",
			Help:      "Resolved entries discarded without storage by reason",
		}, []string{"reason"}),
		DuplicatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsscapt",
			Name:      "duplicates_total",
			Help:      "Repeated response fingerprints by scope",
		}, []string{"scope"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsscapt",
			Name:      "active_sessions",
			Help:      "Number of active capture sessions",
		}),
		AnalyzeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wsscapt",
			Name:      "analyze_duration_seconds",
			Help:      "Pattern analysis wall time",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	r.MustRegister(m.EventsTotal, m.SpinsTotal, m.CorrelationMisses, m.PendingEntries,
		m.ForceExpiredTotal, m.SpinsDroppedTotal, m.DuplicatesTotal, m.ActiveSessions, m.AnalyzeDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
