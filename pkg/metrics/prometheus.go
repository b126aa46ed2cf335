// Package metrics provides Prometheus metrics for the callscore engine.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the callscore service.
type Manager struct {
	namespace   string
	subsystem   string
	runBuckets  []float64
	enabled     atomic.Bool
	constLabels map[string]string
	prefix      string
	registry    prometheus.Registerer

	// Ledger and registry
	recommendationsRecorded *prometheus.CounterVec
	analystsCreated         prometheus.Counter

	// Evaluator
	evaluations         *prometheus.CounterVec
	evaluationErrors    *prometheus.CounterVec
	evaluatorRuns       *prometheus.CounterVec
	evaluatorRunSeconds prometheus.Histogram
	pendingGauge        prometheus.Gauge
	scoreDelta          prometheus.Histogram
	lanesInFlight       prometheus.Gauge

	// Price oracle
	oracleLatency   *prometheus.HistogramVec
	oracleErrors    *prometheus.CounterVec
	oracleCacheHits *prometheus.CounterVec

	// Consensus
	consensusRequests *prometheus.CounterVec

	// Store
	storeTxConflicts prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:   "callscore",
		subsystem:   "engine",
		runBuckets:  prometheus.DefBuckets,
		constLabels: make(map[string]string),
		registry:    prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.prefix == "" {
		return n
	}
	return m.prefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.recommendationsRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("recommendations_recorded_total"),
		Help:        "Recommendations opened by the ledger, by action",
		ConstLabels: labels,
	}, []string{"action"})

	m.analystsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("analysts_created_total"),
		Help:        "Analyst profiles created",
		ConstLabels: labels,
	})

	m.evaluations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("evaluations_total"),
		Help:        "Recommendations evaluated and closed, by action and outcome",
		ConstLabels: labels,
	}, []string{"action", "outcome"})

	m.evaluationErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("evaluation_errors_total"),
		Help:        "Evaluation items left open because of an error, by kind",
		ConstLabels: labels,
	}, []string{"kind"})

	m.evaluatorRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("evaluator_runs_total"),
		Help:        "Evaluator batch runs, by result",
		ConstLabels: labels,
	}, []string{"result"})

	m.evaluatorRunSeconds = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("evaluator_run_seconds"),
		Help:        "Wall time of an evaluator batch run",
		Buckets:     m.runBuckets,
		ConstLabels: labels,
	})

	m.pendingGauge = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("recommendations_pending"),
		Help:        "Open recommendations whose horizon was not reached at the last run",
		ConstLabels: labels,
	})

	m.scoreDelta = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("score_delta"),
		Help:        "Score change applied to analysts per evaluation",
		Buckets:     []float64{-6, -4, -2, -1, -0.5, 0, 0.5, 1, 2, 4, 6},
		ConstLabels: labels,
	})

	m.lanesInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("worker_lanes_in_flight"),
		Help:        "Analyst lanes currently being evaluated",
		ConstLabels: labels,
	})

	m.oracleLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("oracle_latency_milliseconds"),
		Help:        "Price oracle call latency in milliseconds",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		ConstLabels: labels,
	}, []string{"source"})

	m.oracleErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("oracle_errors_total"),
		Help:        "Price oracle failures, by reason",
		ConstLabels: labels,
	}, []string{"reason"})

	m.oracleCacheHits = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("oracle_cache_lookups_total"),
		Help:        "Price cache lookups, by result (hit, miss, error)",
		ConstLabels: labels,
	}, []string{"result"})

	m.consensusRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("consensus_requests_total"),
		Help:        "Weighted consensus computations, by resulting action",
		ConstLabels: labels,
	}, []string{"consensus"})

	m.storeTxConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("store_tx_conflicts_total"),
		Help:        "Store transactions aborted by a conflicting writer",
		ConstLabels: labels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_errors_total"),
		Help:        "HTTP responses with an error status, by endpoint, type and severity",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "error_type", "severity"})
}

// RecordRecommendation counts a recommendation opened by the ledger.
func RecordRecommendation(action string) {
	m := active()
	if m == nil {
		return
	}
	m.recommendationsRecorded.WithLabelValues(action).Inc()
}

// RecordAnalystCreated counts a new analyst profile.
func RecordAnalystCreated() {
	m := active()
	if m == nil {
		return
	}
	m.analystsCreated.Inc()
}

// RecordEvaluation counts a closed recommendation and observes its score delta.
func RecordEvaluation(action, outcome string, delta float64) {
	m := active()
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(action, outcome).Inc()
	m.scoreDelta.Observe(delta)
}

// RecordEvaluationError counts an evaluation item that stays open.
func RecordEvaluationError(kind string) {
	m := active()
	if m == nil {
		return
	}
	m.evaluationErrors.WithLabelValues(kind).Inc()
}

// RecordEvaluatorRun records a finished batch run.
func RecordEvaluatorRun(result string, took time.Duration) {
	m := active()
	if m == nil {
		return
	}
	m.evaluatorRuns.WithLabelValues(result).Inc()
	m.evaluatorRunSeconds.Observe(took.Seconds())
}

// UpdatePending sets the number of open recommendations still inside their horizon.
func UpdatePending(n int) {
	m := active()
	if m == nil {
		return
	}
	m.pendingGauge.Set(float64(n))
}

// AddLanesInFlight adjusts the in-flight lane gauge.
func AddLanesInFlight(delta int) {
	m := active()
	if m == nil {
		return
	}
	m.lanesInFlight.Add(float64(delta))
}

// RecordOracleLatency records a price lookup latency in milliseconds.
func RecordOracleLatency(source string, latencyMs float64) {
	m := active()
	if m == nil {
		return
	}
	m.oracleLatency.WithLabelValues(source).Observe(latencyMs)
}

// RecordOracleError counts a failed price lookup.
func RecordOracleError(reason string) {
	m := active()
	if m == nil {
		return
	}
	m.oracleErrors.WithLabelValues(reason).Inc()
}

// RecordOracleCache counts a price cache lookup result.
func RecordOracleCache(result string) {
	m := active()
	if m == nil {
		return
	}
	m.oracleCacheHits.WithLabelValues(result).Inc()
}

// RecordConsensus counts a consensus computation.
func RecordConsensus(consensus string) {
	m := active()
	if m == nil {
		return
	}
	m.consensusRequests.WithLabelValues(consensus).Inc()
}

// RecordTxConflict counts an aborted store transaction.
func RecordTxConflict() {
	m := active()
	if m == nil {
		return
	}
	m.storeTxConflicts.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	m := active()
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	m := active()
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError counts an HTTP response with status >= 400.
func RecordHTTPError(endpoint, method, errorType, severity string) {
	m := active()
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(endpoint, method, errorType, severity).Inc()
}

// GetRegistry returns the custom registry the global manager is registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// SetEnabled turns the package-level recorders on or off.
func SetEnabled(on bool) {
	globalManager.enabled.Store(on)
}

// Enabled reports whether the package-level recorders are recording.
func Enabled() bool {
	return globalManager.enabled.Load()
}

func active() *Manager {
	if !globalManager.enabled.Load() {
		return nil
	}
	return globalManager
}
