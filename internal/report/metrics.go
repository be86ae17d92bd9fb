package report

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dashpay/functest-runner/internal/job"
)

// Metrics are boring counters about one run. Every value is explainable by
// looking at the launches and results of that run.
type Metrics struct {
	registry *prometheus.Registry

	launches    prometheus.Counter
	retries     prometheus.Counter
	results     *prometheus.CounterVec
	running     prometheus.Gauge
	pending     prometheus.Gauge
	durations   *prometheus.HistogramVec
	runDuration prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry. runID is attached
// as a constant label so textfiles from different runs never merge.
func NewMetrics(runID string) *Metrics {
	labels := prometheus.Labels{"run_id": runID}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		launches: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "testrunner_launches_total",
			Help:        "Test script processes started, retries included",
			ConstLabels: labels,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "testrunner_retries_total",
			Help:        "Failed attempts that were relaunched",
			ConstLabels: labels,
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "testrunner_results_total",
			Help:        "Terminal test results by status",
			ConstLabels: labels,
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "testrunner_jobs_running",
			Help:        "Test script processes currently running",
			ConstLabels: labels,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "testrunner_jobs_pending",
			Help:        "Test specifications not started yet",
			ConstLabels: labels,
		}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "testrunner_job_duration_seconds",
			Help:        "Duration of the final attempt of each test",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"status"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "testrunner_run_duration_seconds",
			Help:        "Wall-clock duration of the whole run",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(m.launches, m.retries, m.results, m.running, m.pending, m.durations, m.runDuration)

	// Ensure all statuses exist (even if 0)
	for _, s := range []job.Status{job.StatusPassed, job.StatusSkipped, job.StatusFailed} {
		m.results.WithLabelValues(string(s))
	}
	return m
}

// Registry exposes the registry for HTTP serving and textfile export.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrLaunched is called for every process start.
func (m *Metrics) IncrLaunched() {
	if m == nil {
		return
	}
	m.launches.Inc()
}

// IncrRetried is called when a failed attempt is relaunched.
func (m *Metrics) IncrRetried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// SetQueue records the in-flight and pending counts.
func (m *Metrics) SetQueue(running, pending int) {
	if m == nil {
		return
	}
	m.running.Set(float64(running))
	m.pending.Set(float64(pending))
}

// RecordResult updates counters from a single immutable Result.
func (m *Metrics) RecordResult(r job.Result) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(string(r.Status)).Inc()
	m.durations.WithLabelValues(string(r.Status)).Observe(r.Elapsed.Seconds())
}

// SetRunDuration records the total runtime.
func (m *Metrics) SetRunDuration(seconds float64) {
	if m == nil {
		return
	}
	m.runDuration.Set(seconds)
}
