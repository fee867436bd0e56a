// Package metrics exports engine events as Prometheus metrics.
//
// Metrics:
//   - c4h_provider_attempts_total{backend,result}
//   - c4h_provider_attempt_duration_seconds{backend}
//   - c4h_backend_skipped_total{backend}
//   - c4h_stage_duration_seconds{stage,result}
//   - c4h_backups_created_total
//   - c4h_rollbacks_total
//   - c4h_runs_total{status}
//   - c4h_run_iterations{status}
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
)

const namespace = "c4h"

// Recorder implements output.MetricsRecorder on its own registry, so several
// recorders can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	providerAttempts *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	backendSkipped   *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	backupsCreated   prometheus.Counter
	rollbacks        prometheus.Counter
	runsTotal        *prometheus.CounterVec
	runIterations    *prometheus.HistogramVec
}

var _ output.MetricsRecorder = (*Recorder)(nil)

// NewRecorder creates a recorder with a fresh registry that also carries the
// Go runtime and process collectors
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		providerAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Model backend attempts by result",
		}, []string{"backend", "result"}),
		providerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Duration of model backend attempts",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"backend"}),
		backendSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_skipped_total",
			Help:      "Backends skipped because their availability check failed",
		}, []string{"backend"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of workflow stages",
			Buckets:   prometheus.ExponentialBuckets(0.1, 3, 8),
		}, []string{"stage", "result"}),
		backupsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_created_total",
			Help:      "Numbered backups written before file mutations",
		}),
		rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "File mutations rolled back",
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished workflow runs by status",
		}, []string{"status"}),
		runIterations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_iterations",
			Help:      "Iterations used by finished runs",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}, []string{"status"}),
	}
}

// Registry returns the registry the recorder writes to
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ProviderAttempt(backend string, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.providerAttempts.WithLabelValues(backend, result).Inc()
	r.providerDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (r *Recorder) BackendSkipped(backend string) {
	r.backendSkipped.WithLabelValues(backend).Inc()
}

func (r *Recorder) StageFinished(stage string, result string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage, result).Observe(d.Seconds())
}

func (r *Recorder) BackupCreated() {
	r.backupsCreated.Inc()
}

func (r *Recorder) Rollback() {
	r.rollbacks.Inc()
}

func (r *Recorder) RunFinished(status string, iterations int) {
	r.runsTotal.WithLabelValues(status).Inc()
	r.runIterations.WithLabelValues(status).Observe(float64(iterations))
}
