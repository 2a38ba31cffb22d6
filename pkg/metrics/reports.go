package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReportMetrics records dataset loads and report builds.
type ReportMetrics struct {
	datasetLoads *prometheus.CounterVec
	cached       prometheus.Gauge
	builds       *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewReportMetrics registers the analytics metrics on the provided registerer.
func NewReportMetrics(reg prometheus.Registerer) *ReportMetrics {
	if reg == nil {
		return &ReportMetrics{}
	}
	datasetLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dataset_loads_total",
		Help: "Dataset uploads by outcome (hit, parsed, rejected).",
	}, []string{"outcome"})
	cached := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datasets_cached",
		Help: "Parsed datasets currently resident in the cache.",
	})
	builds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_builds_total",
		Help: "Report builds by report kind and outcome.",
	}, []string{"report", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "report_build_duration_seconds",
		Help:    "Duration of report builds in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"report"})
	reg.MustRegister(datasetLoads, cached, builds, duration)
	return &ReportMetrics{
		datasetLoads: datasetLoads,
		cached:       cached,
		builds:       builds,
		duration:     duration,
	}
}

// IncDatasetLoad increments the dataset load counter for the given outcome.
func (m *ReportMetrics) IncDatasetLoad(outcome string) {
	if m == nil || m.datasetLoads == nil {
		return
	}
	m.datasetLoads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// SetDatasetsCached records the current cache size.
func (m *ReportMetrics) SetDatasetsCached(n int) {
	if m == nil || m.cached == nil {
		return
	}
	m.cached.Set(float64(n))
}

// IncReportBuild increments the build counter for the named report.
func (m *ReportMetrics) IncReportBuild(report, outcome string) {
	if m == nil || m.builds == nil {
		return
	}
	m.builds.WithLabelValues(normalizeLabel(report), normalizeLabel(outcome)).Inc()
}

// ObserveReportDuration records the build duration for the named report.
func (m *ReportMetrics) ObserveReportDuration(report string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(report)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
