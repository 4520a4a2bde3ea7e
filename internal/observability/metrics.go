package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_features"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// feature pipeline.
type Metrics struct {
	TicksTotal      *prometheus.CounterVec // labels: outcome={success,empty,load_error}
	TickDuration    prometheus.Histogram
	PipelineRunning prometheus.Gauge

	// Source fetch metrics.
	BlobsFetched  *prometheus.CounterVec   // labels: source, outcome={success,error}
	FetchDuration *prometheus.HistogramVec // labels: source

	// Decode and align metrics.
	LinesDecoded *prometheus.CounterVec // labels: source
	LinesSkipped *prometheus.CounterVec // labels: source
	PartialLines *prometheus.CounterVec // labels: source
	Duplicates   *prometheus.CounterVec // labels: source

	// Feature metrics.
	CategoryFailures *prometheus.CounterVec // labels: category
	RecordsProduced  prometheus.Counter
	NullComfort      prometheus.Counter
	LoadErrors       prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Hourly ticks processed by outcome.",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a complete fetch-build-load tick.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BlobsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blobs_fetched_total",
			Help:      "Raw feed fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Feed API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		LinesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_decoded_total",
			Help:      "Data lines decoded into records by source.",
		}, []string{"source"}),
		LinesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_skipped_total",
			Help:      "Data lines skipped as malformed by source.",
		}, []string{"source"}),
		PartialLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_lines_total",
			Help:      "Lines kept with some measurements missing, by source.",
		}, []string{"source"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_discarded_total",
			Help:      "Records discarded because a later record had the same key.",
		}, []string{"source"}),
		CategoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_failures_total",
			Help:      "Feature categories nulled by a derivation error.",
		}, []string{"category"}),
		RecordsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_produced_total",
			Help:      "Feature records handed to the loaders.",
		}),
		NullComfort: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "null_comfort_scores_total",
			Help:      "Feature records with no category available for the comfort score.",
		}),
		LoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Failed attempts to load a feature batch.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TicksTotal,
		m.TickDuration,
		m.PipelineRunning,
		m.BlobsFetched,
		m.FetchDuration,
		m.LinesDecoded,
		m.LinesSkipped,
		m.PartialLines,
		m.Duplicates,
		m.CategoryFailures,
		m.RecordsProduced,
		m.NullComfort,
		m.LoadErrors,
	}
}
