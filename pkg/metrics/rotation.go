package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RotationMetrics tracks account switches and the ledger traffic that drives them.
type RotationMetrics struct {
	switches           *prometheus.CounterVec
	allocationFailures prometheus.Counter
	usageDeltas        *prometheus.CounterVec
	syncFailures       prometheus.Counter
	resets             *prometheus.CounterVec
}

// NewRotationMetrics registers the rotation metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewRotationMetrics(reg prometheus.Registerer) *RotationMetrics {
	if reg == nil {
		return &RotationMetrics{}
	}
	m := &RotationMetrics{
		switches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rotation",
			Name:      "switches_total",
			Help:      "Active merchant account switches by reason.",
		}, []string{"reason"}),
		allocationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rotation",
			Name:      "allocation_failures_total",
			Help:      "Switch attempts that found no account to activate.",
		}),
		usageDeltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "usage_deltas_total",
			Help:      "Usage mutations applied to merchant accounts by kind.",
		}, []string{"kind"}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "sync_failures_total",
			Help:      "Failed credential pushes to the gateway settings store.",
		}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "resets_total",
			Help:      "Usage resets by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.switches, m.allocationFailures, m.usageDeltas, m.syncFailures, m.resets)
	return m
}

func (m *RotationMetrics) IncSwitch(reason string) {
	if m == nil || m.switches == nil {
		return
	}
	m.switches.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *RotationMetrics) IncAllocationFailure() {
	if m == nil || m.allocationFailures == nil {
		return
	}
	m.allocationFailures.Inc()
}

// IncUsageDelta counts a ledger mutation; kind is charge, refund or recompute.
func (m *RotationMetrics) IncUsageDelta(kind string) {
	if m == nil || m.usageDeltas == nil {
		return
	}
	m.usageDeltas.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *RotationMetrics) IncSyncFailure() {
	if m == nil || m.syncFailures == nil {
		return
	}
	m.syncFailures.Inc()
}

func (m *RotationMetrics) IncReset(resetType string) {
	if m == nil || m.resets == nil {
		return
	}
	m.resets.WithLabelValues(normalizeLabel(resetType)).Inc()
}
