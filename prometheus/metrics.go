// Package prometheus implements submitonce.Metrics on Prometheus
// collectors, so a server can expose controller and ledger telemetry
// through promhttp.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clearway/submitonce"
)

const namespace = "submitonce"

// submitDurationBuckets cover an in-memory ledger: most decisions land in
// well under a millisecond, the tail covers a loaded process.
var submitDurationBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// Metrics implements submitonce.Metrics. Construct it with New once per
// registry; registering the same collectors twice panics.
type Metrics struct {
	submitDuration prometheus.Histogram
	submissions    prometheus.Counter
	replays        prometheus.Counter
	retries        prometheus.Counter
	completions    prometheus.Counter
	failures       prometheus.Counter
	pending        prometheus.Gauge
}

var _ submitonce.Metrics = (*Metrics)(nil)

// New builds the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to feed the default /metrics handler, or a
// private registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Time the ledger spent deciding a submit, replays included.",
			Buckets:   submitDurationBuckets,
		}),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Count of first-time submissions that created a ledger record.",
		}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Count of duplicate submissions answered from the recorded outcome.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Count of retry dispatches scheduled by controllers.",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Count of delayed submissions completed by their timer.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Count of submissions that ended in a terminal error.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_records",
			Help:      "Number of ledger records still pending.",
		}),
	}

	reg.MustRegister(
		m.submitDuration,
		m.submissions,
		m.replays,
		m.retries,
		m.completions,
		m.failures,
		m.pending,
	)

	return m
}

// ObserveSubmitDuration implements submitonce.Metrics.
func (m *Metrics) ObserveSubmitDuration(duration time.Duration) {
	m.submitDuration.Observe(duration.Seconds())
}

// AddSubmissions implements submitonce.Metrics.
func (m *Metrics) AddSubmissions(count int) {
	m.submissions.Add(float64(count))
}

// AddReplays implements submitonce.Metrics.
func (m *Metrics) AddReplays(count int) {
	m.replays.Add(float64(count))
}

// AddRetries implements submitonce.Metrics.
func (m *Metrics) AddRetries(count int) {
	m.retries.Add(float64(count))
}

// AddCompletions implements submitonce.Metrics.
func (m *Metrics) AddCompletions(count int) {
	m.completions.Add(float64(count))
}

// AddFailures implements submitonce.Metrics.
func (m *Metrics) AddFailures(count int) {
	m.failures.Add(float64(count))
}

// SetPending implements submitonce.Metrics.
func (m *Metrics) SetPending(count int) {
	m.pending.Set(float64(count))
}
