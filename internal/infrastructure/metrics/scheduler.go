package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics holds Prometheus metrics for background jobs.
type SchedulerMetrics struct {
	Runs        *prometheus.CounterVec
	Skipped     *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
}

// NewSchedulerMetrics creates and registers scheduler metrics on the given registry.
func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of job runs by job and result.",
		}, []string{"job", "result"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_skipped_total",
			Help:      "Triggers dropped because the previous run was still in progress.",
		}, []string{"job"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"job"}),
	}

	reg.MustRegister(m.Runs, m.Skipped, m.RunDuration)
	return m
}
