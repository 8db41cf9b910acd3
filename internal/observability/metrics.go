package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// aggregation run.
type Metrics struct {
	PointsProcessed  prometheus.Counter
	PointsExcluded   *prometheus.CounterVec // labels: reason={nonfinite_precip,bl_range,joint_range}
	SubsetsCompleted prometheus.Counter
	RunRunning       prometheus.Gauge

	SubsetPoints   prometheus.Histogram
	SubsetDuration prometheus.Histogram
	RunDuration    prometheus.Histogram
}

// NewMetrics creates and registers all run metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PointsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "convstats",
			Name:      "points_processed_total",
			Help:      "Total space-time points offered to the accumulators.",
		}),
		PointsExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convstats",
			Name:      "points_excluded_total",
			Help:      "Points excluded from an accumulation scheme, by reason.",
		}, []string{"reason"}),
		SubsetsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "convstats",
			Name:      "subsets_completed_total",
			Help:      "Region-month subsets fully accumulated.",
		}),
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "convstats",
			Name:      "run_running",
			Help:      "1 while an aggregation run is active, 0 otherwise.",
		}),
		SubsetPoints: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "convstats",
			Name:      "subset_points",
			Help:      "Number of points in one region-month subset.",
			Buckets:   prometheus.ExponentialBuckets(1e3, 10, 7),
		}),
		SubsetDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "convstats",
			Name:      "subset_duration_seconds",
			Help:      "Duration of one subset-and-accumulate cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "convstats",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete aggregation run.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 7200},
		}),
	}

	prometheus.MustRegister(
		m.PointsProcessed,
		m.PointsExcluded,
		m.SubsetsCompleted,
		m.RunRunning,
		m.SubsetPoints,
		m.SubsetDuration,
		m.RunDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PointsProcessed:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "convstats", Name: "points_processed_total"}),
		PointsExcluded:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "convstats", Name: "points_excluded_total"}, []string{"reason"}),
		SubsetsCompleted: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "convstats", Name: "subsets_completed_total"}),
		RunRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "convstats", Name: "run_running"}),
		SubsetPoints:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "convstats", Name: "subset_points"}),
		SubsetDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "convstats", Name: "subset_duration_seconds"}),
		RunDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "convstats", Name: "run_duration_seconds"}),
	}
}
