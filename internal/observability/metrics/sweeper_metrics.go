package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SweepErrorTypeDeadlineExceeded = "deadline_exceeded"
	SweepErrorTypeDB               = "db"
	SweepErrorTypeUnknown          = "unknown"
)

// SweeperMetrics captures retention sweep health signals.
type SweeperMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	rowsRemoved *prometheus.CounterVec
}

var (
	sweeperMetricsOnce sync.Once
	sweeperMetrics     *SweeperMetrics
)

// Sweeper returns the singleton sweeper metrics registry.
func Sweeper() *SweeperMetrics {
	return SweeperWithConfig(Config{})
}

// SweeperWithConfig returns the singleton sweeper metrics registry using config labels.
func SweeperWithConfig(cfg Config) *SweeperMetrics {
	sweeperMetricsOnce.Do(func() {
		sweeperMetrics = newSweeperMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweeperMetrics
}

// ResetSweeperMetricsForTest resets the sweeper metrics singleton for tests.
func ResetSweeperMetricsForTest() {
	sweeperMetricsOnce = sync.Once{}
	sweeperMetrics = nil
}

func newSweeperMetrics(registerer prometheus.Registerer, cfg Config) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "kassa"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SweeperMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "kassa_sweeper_job_runs_total",
			Help:        "Retention sweep job executions.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "kassa_sweeper_job_duration_seconds",
			Help:        "Retention sweep job duration.",
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "kassa_sweeper_job_errors_total",
			Help:        "Retention sweep job failures by error type.",
			ConstLabels: constLabels,
		}, []string{"job", "error_type"}),
		rowsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "kassa_sweeper_rows_removed_total",
			Help:        "Rows removed by retention sweeps.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	for _, collector := range []prometheus.Collector{m.jobRuns, m.jobDuration, m.jobErrors, m.rowsRemoved} {
		if err := registerer.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = already
				continue
			}
		}
	}

	return m
}

// IncJobRun counts a sweep run.
func (m *SweeperMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records a sweep duration.
func (m *SweeperMetrics) ObserveJobDuration(job string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// IncJobError counts a sweep failure.
func (m *SweeperMetrics) IncJobError(job, errorType string) {
	if m == nil {
		return
	}
	if strings.TrimSpace(errorType) == "" {
		errorType = SweepErrorTypeUnknown
	}
	m.jobErrors.WithLabelValues(job, errorType).Inc()
}

// AddRowsRemoved counts rows deleted by a sweep.
func (m *SweeperMetrics) AddRowsRemoved(job string, removed int64) {
	if m == nil || removed <= 0 {
		return
	}
	m.rowsRemoved.WithLabelValues(job).Add(float64(removed))
}
