package rank

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricPassTotal         = "rank_pass_total"
	MetricPassErrors        = "rank_pass_errors_total"
	MetricPassDuration      = "rank_pass_duration_seconds"
	MetricAgentFailures     = "rank_agent_failures_total"
	MetricLastPassTimestamp = "rank_last_pass_timestamp"
	MetricLastPassAgents    = "rank_last_pass_agent_count"
)

// Metrics contains Prometheus metrics for recompute passes.
// All operations are thread-safe.
type Metrics struct {
	passTotal         prometheus.Counter
	passErrors        prometheus.Counter
	passDuration      prometheus.Histogram
	agentFailures     prometheus.Counter
	lastPassTimestamp prometheus.Gauge
	lastPassAgents    prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		passTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPassTotal,
			Help: "Total number of committed ranking passes",
		}),
		passErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPassErrors,
			Help: "Total number of ranking passes that failed to commit",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPassDuration,
			Help:    "Histogram of full recompute pass duration in seconds",
			Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		}),
		agentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAgentFailures,
			Help: "Total number of per-agent scoring failures carried forward",
		}),
		lastPassTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastPassTimestamp,
			Help: "Unix timestamp of the last committed ranking pass",
		}),
		lastPassAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastPassAgents,
			Help: "Number of agents ranked in the last committed pass",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.passTotal,
		m.passErrors,
		m.passDuration,
		m.agentFailures,
		m.lastPassTimestamp,
		m.lastPassAgents,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncPassTotal increments the committed pass counter.
func (m *Metrics) IncPassTotal() {
	m.passTotal.Inc()
}

// IncPassErrors increments the failed pass counter.
func (m *Metrics) IncPassErrors() {
	m.passErrors.Inc()
}

// ObservePassDuration records a pass duration sample.
func (m *Metrics) ObservePassDuration(seconds float64) {
	m.passDuration.Observe(seconds)
}

// IncAgentFailures increments the per-agent failure counter.
func (m *Metrics) IncAgentFailures() {
	m.agentFailures.Inc()
}

// SetLastPassTimestamp sets the last pass timestamp gauge.
func (m *Metrics) SetLastPassTimestamp(timestamp float64) {
	m.lastPassTimestamp.Set(timestamp)
}

// SetLastPassAgents sets the last pass agent count gauge.
func (m *Metrics) SetLastPassAgents(count float64) {
	m.lastPassAgents.Set(count)
}
