package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the patch pipeline.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	MarkersFound      prometheus.Histogram
	PatchesApplied    prometheus.Counter
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	BatchSize         prometheus.Histogram
	ActiveRuns        prometheus.Gauge
}

// NewMetrics creates and registers pipeline metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sindano",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total pipeline runs by terminal status.",
		}, []string{"status"}),
		MarkersFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sindano",
			Subsystem: "pipeline",
			Name:      "markers_per_document",
			Help:      "Marker occurrences per scanned document.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		PatchesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sindano",
			Subsystem: "pipeline",
			Name:      "patches_applied_total",
			Help:      "Total marker substitutions performed.",
		}),
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sindano",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Total sandbox executions by status.",
		}, []string{"status"}),
		ExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sindano",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution duration in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sindano",
			Subsystem: "batch",
			Name:      "size_documents",
			Help:      "Documents per batch run.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sindano",
			Subsystem: "pipeline",
			Name:      "active_runs",
			Help:      "Pipeline runs currently in flight.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.MarkersFound,
		m.PatchesApplied,
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.BatchSize,
		m.ActiveRuns,
	)

	return m
}
