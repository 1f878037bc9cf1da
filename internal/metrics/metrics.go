// Package metrics exposes Prometheus instruments for the booking engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics counts admissions and transitions and times slot queries.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	slotQueryLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Subsystem: "booking",
			Name:      "create_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Subsystem: "booking",
			Name:      "transition_total",
			Help:      "Total appointment state transitions by action and outcome",
		}, []string{"action", "outcome"}),
		slotQueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medibook",
			Subsystem: "booking",
			Name:      "slot_query_seconds",
			Help:      "Latency of free slot derivation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.slotQueryLatency)
	return m
}

// Booking outcomes as recorded on create attempts.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

func (m *BookingMetrics) ObserveCreate(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *BookingMetrics) ObserveSlotQuery(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.slotQueryLatency.WithLabelValues(outcome).Observe(seconds)
}
