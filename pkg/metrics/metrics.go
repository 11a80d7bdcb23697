// Package metrics defines the Prometheus collectors for the index store and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so library code can take one optionally.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	CommitsTotal     *prometheus.CounterVec
	CommitDuration   prometheus.Histogram
	CommitGeneration prometheus.Gauge
	SegmentsLoaded   prometheus.Gauge

	DiscoveryAttemptsTotal   *prometheus.CounterVec
	DiscoveryLookaheadsTotal prometheus.Counter
	GenFileRetriesTotal      prometheus.Counter

	CompoundFilesWritten prometheus.Counter
	CompoundBytesCopied  prometheus.Counter

	NotifyPublishTotal  *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so they can build Metrics more than once.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_commits_total",
				Help: "Total segments_N writes by status.",
			},
			[]string{"status"},
		),
		CommitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_commit_duration_seconds",
				Help:    "Time to write a segments_N file and its pointer.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
		),
		CommitGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_commit_generation",
				Help: "Generation of the last segments_N written or loaded.",
			},
		),
		SegmentsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_segments_loaded",
				Help: "Number of segments in the last loaded commit.",
			},
		),
		DiscoveryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_discovery_attempts_total",
				Help: "segments_N load attempts during discovery by outcome (success, previous, error).",
			},
			[]string{"outcome"},
		),
		DiscoveryLookaheadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_discovery_lookaheads_total",
				Help: "Generations guessed past the listed maximum.",
			},
		),
		GenFileRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_segments_gen_retries_total",
				Help: "Failed segments.gen reads that were retried.",
			},
		),
		CompoundFilesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_compound_files_written_total",
				Help: "Compound files sealed.",
			},
		),
		CompoundBytesCopied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_compound_bytes_copied_total",
				Help: "Sub-file bytes copied into compound files.",
			},
		),
		NotifyPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_notify_publish_total",
				Help: "Commit notifications by sink and status.",
			},
			[]string{"sink", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CommitsTotal,
		m.CommitDuration,
		m.CommitGeneration,
		m.SegmentsLoaded,
		m.DiscoveryAttemptsTotal,
		m.DiscoveryLookaheadsTotal,
		m.GenFileRetriesTotal,
		m.CompoundFilesWritten,
		m.CompoundBytesCopied,
		m.NotifyPublishTotal,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) DiscoveryAttempt(outcome string) {
	if m == nil {
		return
	}
	m.DiscoveryAttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DiscoveryLookahead() {
	if m == nil {
		return
	}
	m.DiscoveryLookaheadsTotal.Inc()
}

func (m *Metrics) GenFileRetry() {
	if m == nil {
		return
	}
	m.GenFileRetriesTotal.Inc()
}

// CommitLoaded records a commit that was read or written.
func (m *Metrics) CommitLoaded(generation int64, segments int) {
	if m == nil {
		return
	}
	m.CommitGeneration.Set(float64(generation))
	m.SegmentsLoaded.Set(float64(segments))
}

func (m *Metrics) CommitWritten(status string, seconds float64) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(status).Inc()
	m.CommitDuration.Observe(seconds)
}

func (m *Metrics) CompoundCopied(bytes int64) {
	if m == nil {
		return
	}
	m.CompoundBytesCopied.Add(float64(bytes))
}

func (m *Metrics) CompoundSealed() {
	if m == nil {
		return
	}
	m.CompoundFilesWritten.Inc()
}

func (m *Metrics) NotifyPublished(sink, status string) {
	if m == nil {
		return
	}
	m.NotifyPublishTotal.WithLabelValues(sink, status).Inc()
}

func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
