package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the Prometheus collectors for an estimation run.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Batch metrics
	areasReceived     prometheus.Counter
	areasEstimated    prometheus.Counter
	areasRejected     *prometheus.CounterVec
	areasDegraded     prometheus.Counter
	zeroExposureAreas prometheus.Counter

	// Estimation performance
	estimationLatency  prometheus.Histogram
	quantileIterations prometheus.Histogram

	// Queue metrics
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueDequeued prometheus.Counter

	// Worker metrics
	workerActiveCount prometheus.Gauge

	// Prior and run metrics
	priorAlpha0       prometheus.Gauge
	priorBeta0        prometheus.Gauge
	runDuration       prometheus.Gauge
	lastSuccessUnix   prometheus.Gauge
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// variableLabels are used by the vector collectors and cannot be constant.
var variableLabels = []string{"reason", "component", "kind"}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it before anything is recorded; it is not safe to use
// concurrently with the Record and Update functions.
func Configure(opts ...Option) error {
	registry := prometheus.NewRegistry()
	m := newManager(append(opts, WithPrometheusRegistry(registry))...)
	if err := m.validate(); err != nil {
		return err
	}
	m.initializeMetrics()
	globalManager = m
	customRegistry = registry
	return nil
}

// validate reports names outside the legacy metric charset and settings that
// would make collector registration panic.
func (m *Manager) validate() error {
	if !nameRe.MatchString(m.namespace) {
		return fmt.Errorf("%w: namespace %q", ErrInvalidOption, m.namespace)
	}
	if !nameRe.MatchString(m.subsystem) {
		return fmt.Errorf("%w: subsystem %q", ErrInvalidOption, m.subsystem)
	}
	for name := range m.customLabels {
		if !nameRe.MatchString(name) || strings.HasPrefix(name, "__") || slices.Contains(variableLabels, name) {
			return fmt.Errorf("%w: label %q", ErrInvalidOption, name)
		}
	}
	if !sort.Float64sAreSorted(m.histogramBuckets) {
		return fmt.Errorf("%w: buckets %v are not increasing", ErrInvalidOption, m.histogramBuckets)
	}
	for i := 1; i < len(m.histogramBuckets); i++ {
		if m.histogramBuckets[i] == m.histogramBuckets[i-1] {
			return fmt.Errorf("%w: duplicate bucket %g", ErrInvalidOption, m.histogramBuckets[i])
		}
	}
	return nil
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := newManager(opts...)
	m.initializeMetrics()
	return m
}

func newManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "arearisk",
		subsystem:        "estimator",
		histogramBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.areasReceived = auto.NewCounter(m.counterOpts("areas_received_total",
		"Total number of input rows read"))
	m.areasEstimated = auto.NewCounter(m.counterOpts("areas_estimated_total",
		"Total number of areas with a posterior estimate"))
	m.areasRejected = auto.NewCounterVec(m.counterOpts("areas_rejected_total",
		"Total number of rows rejected by reason"), []string{"reason"})
	m.areasDegraded = auto.NewCounter(m.counterOpts("areas_degraded_total",
		"Total number of estimates reported without an interval"))
	m.zeroExposureAreas = auto.NewCounter(m.counterOpts("zero_exposure_areas_total",
		"Total number of areas estimated from the prior alone"))

	m.estimationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "estimation_latency_milliseconds",
		Help:        "Per-area posterior and interval latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
	m.quantileIterations = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "quantile_iterations",
		Help:        "Root-finder iterations per credible interval",
		Buckets:     prometheus.ExponentialBuckets(2, 2, 8),
		ConstLabels: m.customLabels,
	})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of queued area jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum number of queued area jobs"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Total number of jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Total number of jobs dequeued"))

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of running estimation workers"))

	m.priorAlpha0 = auto.NewGauge(m.gaugeOpts("prior_alpha0", "Alpha0 of the run's global prior"))
	m.priorBeta0 = auto.NewGauge(m.gaugeOpts("prior_beta0", "Beta0 of the run's global prior"))
	m.runDuration = auto.NewGauge(m.gaugeOpts("run_duration_seconds", "Wall time of the last run"))
	m.lastSuccessUnix = auto.NewGauge(m.gaugeOpts("last_success_timestamp_seconds",
		"Unix time of the last successful run"))
	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total",
		"Errors by component and kind"), []string{"component", "kind"})
}

// RecordAreaReceived increments the received rows counter.
func RecordAreaReceived() {
	globalManager.areasReceived.Inc()
}

// RecordAreaEstimated increments the estimated areas counter.
func RecordAreaEstimated() {
	globalManager.areasEstimated.Inc()
}

// RecordAreaRejected increments the rejected rows counter for reason.
func RecordAreaRejected(reason string) {
	globalManager.areasRejected.WithLabelValues(reason).Inc()
}

// RecordAreaDegraded increments the counter of estimates without an interval.
func RecordAreaDegraded() {
	globalManager.areasDegraded.Inc()
}

// RecordZeroExposure increments the prior-only estimate counter.
func RecordZeroExposure() {
	globalManager.zeroExposureAreas.Inc()
}

// RecordEstimationLatency records per-area estimation latency.
func RecordEstimationLatency(latencyMs float64) {
	globalManager.estimationLatency.Observe(latencyMs)
}

// RecordQuantileIterations records iterations spent on one interval.
func RecordQuantileIterations(n int) {
	globalManager.quantileIterations.Observe(float64(n))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdatePrior exports the run's prior shape parameters.
func UpdatePrior(alpha0, beta0 float64) {
	globalManager.priorAlpha0.Set(alpha0)
	globalManager.priorBeta0.Set(beta0)
}

// RecordRunCompleted records the wall time of a finished run and marks it
// as the last success.
func RecordRunCompleted(d time.Duration) {
	globalManager.runDuration.Set(d.Seconds())
	globalManager.lastSuccessUnix.SetToCurrentTime()
}

// RecordErrorByComponent records an error with component and kind labels.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the current registry in the text exposition format,
// suitable for the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}
