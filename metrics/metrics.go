package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the orchestration core
type Metrics struct {
	WorkflowRuns      *prometheus.CounterVec
	ActivityAttempts  *prometheus.CounterVec
	ActivityLatency   *prometheus.HistogramVec
	Compensations     *prometheus.CounterVec
	ApprovalDecisions *prometheus.CounterVec
	DurableHealth     prometheus.Gauge
}

// NewMetrics creates and registers all metrics on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Track workflow runs by name, execution mode and outcome
		WorkflowRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateflow_workflow_runs_total",
				Help: "The total number of finished workflow runs",
			},
			[]string{"workflow", "mode", "outcome"},
		),

		// Every attempt counts, retries included
		ActivityAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateflow_activity_attempts_total",
				Help: "The total number of activity attempts",
			},
			[]string{"activity", "outcome"},
		),

		ActivityLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "estateflow_activity_latency_seconds",
				Help:    "Activity attempt latency distribution in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // From 1ms to ~16s
			},
			[]string{"activity"},
		),

		Compensations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateflow_compensations_total",
				Help: "The total number of compensating actions executed",
			},
			[]string{"activity", "outcome"},
		),

		ApprovalDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateflow_approval_decisions_total",
				Help: "The total number of listing review decisions",
			},
			[]string{"decision", "automatic"},
		),

		// 1 = durable backend reachable, 0 = circuit open
		DurableHealth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "estateflow_durable_backend_health",
				Help: "Health of the durable workflow backend (1 = healthy, 0 = unhealthy)",
			},
		),
	}
}

// ObserveRun records a finished workflow run. Nil receivers are ignored so
// callers can run without metrics.
func (m *Metrics) ObserveRun(workflow, mode string, err error) {
	if m == nil {
		return
	}
	m.WorkflowRuns.WithLabelValues(workflow, mode, outcome(err)).Inc()
}

// ObserveAttempt records one activity attempt and its latency
func (m *Metrics) ObserveAttempt(activity string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.ActivityAttempts.WithLabelValues(activity, outcome(err)).Inc()
	m.ActivityLatency.WithLabelValues(activity).Observe(seconds)
}

// ObserveCompensation records a compensating action
func (m *Metrics) ObserveCompensation(activity string, err error) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(activity, outcome(err)).Inc()
}

// ObserveDecision records an approval decision
func (m *Metrics) ObserveDecision(decision string, automatic bool) {
	if m == nil {
		return
	}
	m.ApprovalDecisions.WithLabelValues(decision, strconv.FormatBool(automatic)).Inc()
}

// SetDurableHealthy updates the durable backend gauge
func (m *Metrics) SetDurableHealthy(healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.DurableHealth.Set(1)
	} else {
		m.DurableHealth.Set(0)
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
