// Package metrics exposes pipeline run and stage metrics through Prometheus.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/onion-topology/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric the pipeline records. It implements
// session.Observer.
type Registry struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	StageDuration   *prometheus.HistogramVec
	StagesInFlight  *prometheus.GaugeVec
	LastRunSuccess  prometheus.Gauge
	LastRunUnixTime prometheus.Gauge

	SessionOriginalRows prometheus.Gauge
	SessionCleanedRows  prometheus.Gauge
	SessionRemovedRows  *prometheus.GaugeVec
	SessionDoors        prometheus.Gauge
	SessionMaxLayer     prometheus.Gauge
	SessionFlags        *prometheus.GaugeVec
	SessionCompliance   prometheus.Gauge
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with all metrics initialized.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initRunMetrics()
	r.initSessionMetrics()
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

func (r *Registry) initRunMetrics() {
	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "onion_runs_total",
			Help: "Total number of generate runs by outcome",
		},
		[]string{"status"}, // completed, empty, failed
	)

	r.RunDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onion_run_duration_seconds",
			Help:    "Duration of generate runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onion_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	r.StagesInFlight = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "onion_stage_in_progress",
			Help: "Whether a pipeline stage is currently running (1=yes, 0=no)",
		},
		[]string{"stage"},
	)

	r.LastRunSuccess = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "onion_last_run_success",
			Help: "Whether the most recent run produced a session (1=yes, 0=no)",
		},
	)

	r.LastRunUnixTime = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "onion_last_run_timestamp_seconds",
			Help: "Unix time the most recent run finished",
		},
	)
}

func (r *Registry) initSessionMetrics() {
	r.SessionOriginalRows = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "onion_session_original_rows",
			Help: "Rows in the uploaded log of the current session",
		},
	)

	r.SessionCleanedRows = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "onion_session_cleaned_rows",
			Help: "Events left after cleaning in the current session",
		},
	)

	r.SessionRemovedRows = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "onion_session_removed_rows",
			Help: "Rows removed during cleaning by reason",
		},
		[]string{"reason"}, // unparseable, filtered, duplicate, ping_pong
	)

	r.SessionDoors = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "onion_session_doors",
			Help: "Doors observed in the current session",
		},
	)

	r.SessionMaxLayer = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "onion_session_max_layer",
			Help: "Deepest onion layer in the current session",
		},
	)

	r.SessionFlags = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "onion_session_anomaly_flags",
			Help: "Anomaly flags raised in the current session by kind",
		},
		[]string{"kind"},
	)

	r.SessionCompliance = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "onion_session_compliance_score",
			Help: "Compliance score of the current session (0-100)",
		},
	)
}

// StageStarted implements session.Observer.
func (r *Registry) StageStarted(stage session.Stage) {
	r.StagesInFlight.WithLabelValues(string(stage)).Set(1)
}

// StageFinished implements session.Observer.
func (r *Registry) StageFinished(stage session.Stage, elapsed time.Duration) {
	r.StagesInFlight.WithLabelValues(string(stage)).Set(0)
	r.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// RunFinished implements session.Observer.
func (r *Registry) RunFinished(status session.Status, elapsed time.Duration) {
	r.RunsTotal.WithLabelValues(string(status)).Inc()
	r.RunDuration.Observe(elapsed.Seconds())
	r.LastRunUnixTime.Set(float64(time.Now().Unix()))

	// A failed run can stop mid-stage.
	for _, stage := range session.Stages {
		r.StagesInFlight.WithLabelValues(string(stage)).Set(0)
	}

	if status == session.StatusFailed {
		r.LastRunSuccess.Set(0)
		r.resetSession()
		return
	}
	r.LastRunSuccess.Set(1)
}

// RecordSession publishes the figures of a finished session. A nil session clears
// them.
func (r *Registry) RecordSession(c *session.Context) {
	r.resetSession()
	if c == nil {
		return
	}

	r.SessionOriginalRows.Set(float64(c.OriginalRowCount))
	r.SessionCleanedRows.Set(float64(c.CleanedRowCount))
	r.SessionRemovedRows.WithLabelValues("unparseable").Set(float64(c.Cleaning.UnparseableRows))
	r.SessionRemovedRows.WithLabelValues("filtered").Set(float64(c.Cleaning.FilteredRows))
	r.SessionRemovedRows.WithLabelValues("duplicate").Set(float64(c.Cleaning.DuplicateEvents))
	r.SessionRemovedRows.WithLabelValues("ping_pong").Set(float64(c.Cleaning.PingPongEvents))
	r.SessionDoors.Set(float64(len(c.Doors)))
	if c.Graph != nil {
		r.SessionMaxLayer.Set(float64(c.Graph.MaxLayer))
	}
	r.SessionCompliance.Set(c.Stats.ComplianceScore)

	for _, f := range c.Flags {
		r.SessionFlags.WithLabelValues(string(f.Kind)).Inc()
	}
}

func (r *Registry) resetSession() {
	r.SessionOriginalRows.Set(0)
	r.SessionCleanedRows.Set(0)
	r.SessionRemovedRows.Reset()
	r.SessionDoors.Set(0)
	r.SessionMaxLayer.Set(0)
	r.SessionFlags.Reset()
	r.SessionCompliance.Set(0)
}

// WriteTextfile writes every metric in the text exposition format, for the node
// exporter's textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
