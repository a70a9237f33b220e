// Package metrics collects trial and batch counters for one cardbench run and
// writes them in the Prometheus text format, for node_exporter's textfile
// collector or any other scraper that reads files.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/signalnine/cardbench/internal/runner"
)

// Metrics holds the collectors of one run. Each Metrics owns its registry so
// several runs in one process do not share counters.
type Metrics struct {
	Registry *prometheus.Registry

	TrialsTotal   *prometheus.CounterVec
	TrialDuration *prometheus.HistogramVec
	BatchesTotal  *prometheus.CounterVec
	PeakMemory    *prometheus.GaugeVec

	mu    sync.Mutex
	peaks map[string]int64
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		peaks:    map[string]int64{},
		TrialsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardbench_trials_total",
				Help: "Trials run, by estimator and outcome",
			},
			[]string{"estimator", "outcome"},
		),
		TrialDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cardbench_trial_duration_seconds",
				Help:    "Wall-clock time of a trial including worker startup",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"estimator"},
		),
		BatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardbench_batches_total",
				Help: "Batches run, by estimator and final status",
			},
			[]string{"estimator", "status"},
		),
		PeakMemory: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cardbench_peak_memory_bytes",
				Help: "Largest peak resident memory reported by any batch",
			},
			[]string{"estimator"},
		),
	}
}

// ObserveTrial returns a callback suitable for runner.Batch.OnTrial.
func (m *Metrics) ObserveTrial(estimator string) func(runner.Outcome) {
	return func(o runner.Outcome) {
		m.TrialsTotal.WithLabelValues(estimator, o.Kind.String()).Inc()
		m.TrialDuration.WithLabelValues(estimator).Observe(o.Wall.Seconds())
	}
}

// RecordBatch counts a finished batch and raises the peak memory gauge.
func (m *Metrics) RecordBatch(estimator, status string, peakMemory int64) {
	m.BatchesTotal.WithLabelValues(estimator, status).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	if peakMemory > m.peaks[estimator] {
		m.peaks[estimator] = peakMemory
		m.PeakMemory.WithLabelValues(estimator).Set(float64(peakMemory))
	}
}

// WriteFile writes the registry to path atomically.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
