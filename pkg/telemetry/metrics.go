package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for provisio.
type Metrics struct {
	config MetricsConfig

	// Pass metrics
	passesStarted   *prometheus.CounterVec
	passesCompleted *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec

	// Evaluation metrics
	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec

	// Probe metrics
	probeRuns     *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec

	// Marker metrics
	markerHits prometheus.Counter

	// Conflict metrics
	conflicts prometheus.Counter

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activePasses prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		passesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_started_total",
				Help:      "Total number of configuration passes started",
			},
			[]string{"catalog"},
		),
		passesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_completed_total",
				Help:      "Total number of configuration passes completed",
			},
			[]string{"status"},
		),
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pass_duration_seconds",
				Help:      "Duration of a configuration pass in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of package evaluations by verdict",
			},
			[]string{"verdict"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of a package evaluation in seconds",
				Buckets:   buckets,
			},
			[]string{"verdict"},
		),

		probeRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_runs_total",
				Help:      "Total number of probe executions",
			},
			[]string{"kind", "runtime", "outcome"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of probe executions in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "runtime"},
		),

		markerHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "marker_hits_total",
				Help:      "Total number of evaluations decided by a prior-build marker",
			},
		),

		conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_conflicts_total",
				Help:      "Total number of forced-system conflicts that aborted a pass",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activePasses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_passes",
				Help:      "Current number of running configuration passes",
			},
		),
	}

	registry.MustRegister(
		m.passesStarted,
		m.passesCompleted,
		m.passDuration,
		m.evaluations,
		m.evaluationDuration,
		m.probeRuns,
		m.probeDuration,
		m.markerHits,
		m.conflicts,
		m.errorsByClass,
		m.errorsByCode,
		m.activePasses,
	)

	return m, nil
}

// Pass Metrics

// RecordPassStarted increments the counter for started passes.
func (m *Metrics) RecordPassStarted(catalog string) {
	if m.passesStarted == nil {
		return
	}
	m.passesStarted.WithLabelValues(catalog).Inc()
	m.activePasses.Inc()
}

// RecordPassCompleted records a completed pass with its status and duration.
func (m *Metrics) RecordPassCompleted(status string, duration time.Duration) {
	if m.passesCompleted == nil {
		return
	}
	m.passesCompleted.WithLabelValues(status).Inc()
	m.passDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activePasses.Dec()
}

// Evaluation Metrics

// RecordEvaluation records a package evaluation with its verdict.
func (m *Metrics) RecordEvaluation(verdict string, duration time.Duration) {
	if m.evaluations == nil {
		return
	}
	m.evaluations.WithLabelValues(verdict).Inc()
	m.evaluationDuration.WithLabelValues(verdict).Observe(duration.Seconds())
}

// Probe Metrics

// RecordProbeRun records a probe execution.
func (m *Metrics) RecordProbeRun(kind, runtime, outcome string, duration time.Duration) {
	if m.probeRuns == nil {
		return
	}
	m.probeRuns.WithLabelValues(kind, runtime, outcome).Inc()
	m.probeDuration.WithLabelValues(kind, runtime).Observe(duration.Seconds())
}

// Marker Metrics

// RecordMarkerHit records an evaluation short-circuited by a build marker.
func (m *Metrics) RecordMarkerHit() {
	if m.markerHits == nil {
		return
	}
	m.markerHits.Inc()
}

// Conflict Metrics

// RecordConflict records a forced-system conflict.
func (m *Metrics) RecordConflict() {
	if m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
