package threading

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes scheduler counters and the pending-queue depth. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	submitted prometheus.Counter
	claimed   prometheus.Counter
	joined    prometheus.Counter
	pending   prometheus.Gauge
}

// NewMetrics creates and registers the scheduler metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enclave",
			Subsystem: "threading",
			Name:      "threads_submitted_total",
			Help:      "Number of start routines submitted to the scheduler.",
		}),
		claimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enclave",
			Subsystem: "threading",
			Name:      "threads_claimed_total",
			Help:      "Number of queued threads claimed by donated vehicles.",
		}),
		joined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enclave",
			Subsystem: "threading",
			Name:      "threads_joined_total",
			Help:      "Number of threads joined and reclaimed.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "enclave",
			Subsystem: "threading",
			Name:      "threads_pending",
			Help:      "Current depth of the pending thread queue.",
		}),
	}
	reg.MustRegister(m.submitted, m.claimed, m.joined, m.pending)
	return m
}

func (m *Metrics) threadSubmitted(pending int) {
	if m == nil {
		return
	}
	m.submitted.Inc()
	m.pending.Set(float64(pending))
}

func (m *Metrics) threadClaimed(pending int) {
	if m == nil {
		return
	}
	m.claimed.Inc()
	m.pending.Set(float64(pending))
}

func (m *Metrics) threadWithdrawn(pending int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
}

func (m *Metrics) threadJoined() {
	if m == nil {
		return
	}
	m.joined.Inc()
}
