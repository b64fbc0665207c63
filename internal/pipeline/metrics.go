package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/lrsweek/internal/features"
	"github.com/roach88/lrsweek/internal/xapi"
)

// Metrics are the batch counters of one lrsweek invocation. They live in a
// private registry and are flushed to a node-exporter textfile at the end
// of a run.
type Metrics struct {
	registry    *prometheus.Registry
	statements  prometheus.Counter
	events      *prometheus.CounterVec
	degraded    prometheus.Counter
	featureRows prometheus.Counter
	weeks       prometheus.Counter
	pageSeconds prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewMetrics creates and registers the pipeline collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		statements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrsweek_statements_total",
			Help: "Total number of xAPI statements normalized.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lrsweek_events_total",
			Help: "Total number of normalized records by verb.",
		}, []string{"action"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrsweek_degraded_course_ids_total",
			Help: "Events whose course id fell back to the object id.",
		}),
		featureRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrsweek_feature_rows_total",
			Help: "Total number of weekly feature rows exported.",
		}),
		weeks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrsweek_weeks_total",
			Help: "Total number of weekly feature files exported.",
		}),
		pageSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lrsweek_statement_page_seconds",
			Help:    "Time spent fetching and normalizing one statement page.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lrsweek_last_success_timestamp_seconds",
			Help: "Unix time of the last successful feature export.",
		}),
	}
	m.registry.MustRegister(m.statements, m.events, m.degraded, m.featureRows, m.weeks, m.pageSeconds, m.lastSuccess)
	return m
}

// ObservePage records the duration of one statement page.
func (m *Metrics) ObservePage(d time.Duration) {
	m.pageSeconds.Observe(d.Seconds())
}

// ObserveLog records the normalized statement counts of a log.
func (m *Metrics) ObserveLog(l *xapi.Log) {
	m.statements.Add(float64(l.Total))
	m.degraded.Add(float64(l.Degraded))
	for action, n := range l.ActionCounts() {
		m.events.WithLabelValues(action).Add(float64(n))
	}
}

// ObserveTable records an exported feature table.
func (m *Metrics) ObserveTable(t features.Table) {
	m.featureRows.Add(float64(t.Len()))
	m.weeks.Add(float64(len(t.Weeks)))
}

// MarkSuccess sets the last-success gauge.
func (m *Metrics) MarkSuccess(at time.Time) {
	m.lastSuccess.Set(float64(at.Unix()))
}

// WriteFile writes the metrics in Prometheus text format. The file is
// written atomically.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
