// Package metrics provides Prometheus metrics for the padel league service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every metric the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// League
	matchesCreated    *prometheus.CounterVec
	matchConflicts    prometheus.Counter
	noOpponent        prometheus.Counter
	transitions       *prometheus.CounterVec
	finalizations     *prometheus.CounterVec
	teamsByStatus     *prometheus.GaugeVec
	matchesByStatus   *prometheus.GaugeVec
	matchmakingTiming prometheus.Histogram

	// Sweeps
	sweepRuns     *prometheus.CounterVec
	sweepItems    *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec

	// Notifications
	notificationsEnqueued  prometheus.Counter
	notificationsPublished prometheus.Counter
	notificationsDuplicate prometheus.Counter
	notificationsFailed    *prometheus.CounterVec
	wsConnections          prometheus.Gauge

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueueErrors      prometheus.Counter
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Repository
	repositoryTx           *prometheus.CounterVec
	repositoryTxLatency    *prometheus.HistogramVec
	repositoryQueryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package level helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps Go runtime collectors out of /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. Without WithPrometheusRegistry the
// default registerer is used.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "padel",
		subsystem:        "league",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.matchesCreated = auto.NewCounterVec(m.counterOpts("matches_created_total",
		"Matches created by matchmaking"), []string{"mode"})
	m.matchConflicts = auto.NewCounter(m.counterOpts("match_conflicts_total",
		"Match creations lost to a concurrent claim on a team"))
	m.noOpponent = auto.NewCounter(m.counterOpts("no_opponent_total",
		"Matchmaking attempts that found no opponent"))
	m.transitions = auto.NewCounterVec(m.counterOpts("match_transitions_total",
		"Match lifecycle transitions"), []string{"from", "to"})
	m.finalizations = auto.NewCounterVec(m.counterOpts("match_finalizations_total",
		"Matches finalized"), []string{"mode", "auto"})
	m.teamsByStatus = auto.NewGaugeVec(m.gaugeOpts("teams",
		"Teams by status"), []string{"status"})
	m.matchesByStatus = auto.NewGaugeVec(m.gaugeOpts("matches",
		"Matches by status"), []string{"status"})
	m.matchmakingTiming = auto.NewHistogram(m.histogramOpts("matchmaking_duration_seconds",
		"Time spent selecting an opponent and creating the match"))

	m.sweepRuns = auto.NewCounterVec(m.counterOpts("sweep_runs_total",
		"Sweep job runs"), []string{"job", "outcome"})
	m.sweepItems = auto.NewCounterVec(m.counterOpts("sweep_items_total",
		"Items handled by sweep jobs"), []string{"job", "result"})
	m.sweepDuration = auto.NewHistogramVec(m.histogramOpts("sweep_duration_seconds",
		"Sweep job duration"), []string{"job"})

	m.notificationsEnqueued = auto.NewCounter(m.counterOpts("notifications_enqueued_total",
		"Notifications handed to the delivery queue"))
	m.notificationsPublished = auto.NewCounter(m.counterOpts("notifications_published_total",
		"Notifications published to the push sink"))
	m.notificationsDuplicate = auto.NewCounter(m.counterOpts("notifications_duplicate_total",
		"Notifications skipped because they were already delivered"))
	m.notificationsFailed = auto.NewCounterVec(m.counterOpts("notifications_failed_total",
		"Notification delivery failures"), []string{"stage"})
	m.wsConnections = auto.NewGauge(m.gaugeOpts("ws_connections",
		"Open websocket connections"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Notifications waiting in the delivery queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Capacity of the delivery queue"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Enqueue attempts rejected by the delivery queue"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("workers",
		"Running delivery workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_seconds",
		"Time a worker spends delivering one notification"))

	m.repositoryTx = auto.NewCounterVec(m.counterOpts("repository_transactions_total",
		"Store transactions by outcome"), []string{"store", "outcome"})
	m.repositoryTxLatency = auto.NewHistogramVec(m.histogramOpts("repository_transaction_seconds",
		"Store transaction latency"), []string{"store"})
	m.repositoryQueryLatency = auto.NewHistogramVec(m.histogramOpts("repository_query_seconds",
		"Store read latency"), []string{"store", "op"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests"), []string{"endpoint", "method", "status"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_seconds",
		"HTTP request duration"), []string{"endpoint", "method", "status"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total",
		"Errors by component and kind"), []string{"component", "kind"})
}

// RecordMatchCreated counts a new match of the given mode.
func RecordMatchCreated(mode string) {
	globalManager.matchesCreated.WithLabelValues(mode).Inc()
}

// RecordMatchConflict counts a lost race for a team.
func RecordMatchConflict() {
	globalManager.matchConflicts.Inc()
}

// RecordNoOpponent counts an empty search.
func RecordNoOpponent() {
	globalManager.noOpponent.Inc()
}

// RecordMatchmakingDuration observes one find-and-create call in seconds.
func RecordMatchmakingDuration(seconds float64) {
	globalManager.matchmakingTiming.Observe(seconds)
}

// RecordTransition counts a match status change.
func RecordTransition(from, to string) {
	globalManager.transitions.WithLabelValues(from, to).Inc()
}

// RecordFinalization counts a finalized match.
func RecordFinalization(mode string, auto bool) {
	globalManager.finalizations.WithLabelValues(mode, strconv.FormatBool(auto)).Inc()
}

// UpdateTeamsByStatus sets the team gauge for one status.
func UpdateTeamsByStatus(status string, count int) {
	globalManager.teamsByStatus.WithLabelValues(status).Set(float64(count))
}

// UpdateMatchesByStatus sets the match gauge for one status.
func UpdateMatchesByStatus(status string, count int) {
	globalManager.matchesByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordSweepRun records one job run and how long it took.
func RecordSweepRun(job, outcome string, seconds float64) {
	globalManager.sweepRuns.WithLabelValues(job, outcome).Inc()
	globalManager.sweepDuration.WithLabelValues(job).Observe(seconds)
}

// RecordSweepItems adds n items with the given result for a job.
func RecordSweepItems(job, result string, n int) {
	if n <= 0 {
		return
	}
	globalManager.sweepItems.WithLabelValues(job, result).Add(float64(n))
}

// RecordNotificationEnqueued counts a notification handed to the queue.
func RecordNotificationEnqueued() {
	globalManager.notificationsEnqueued.Inc()
}

// RecordNotificationPublished counts a successful push.
func RecordNotificationPublished() {
	globalManager.notificationsPublished.Inc()
}

// RecordNotificationDuplicate counts a skipped redelivery.
func RecordNotificationDuplicate() {
	globalManager.notificationsDuplicate.Inc()
}

// RecordNotificationFailed counts a failure at the given stage.
func RecordNotificationFailed(stage string) {
	globalManager.notificationsFailed.WithLabelValues(stage).Inc()
}

// UpdateWSConnections sets the number of open websocket connections.
func UpdateWSConnections(count int) {
	globalManager.wsConnections.Set(float64(count))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency observes one delivery in seconds.
func RecordWorkerProcessingLatency(seconds float64) {
	globalManager.workerProcessingLatency.Observe(seconds)
}

// RecordRepositoryTx counts a transaction and observes its latency.
func RecordRepositoryTx(store, outcome string, seconds float64) {
	globalManager.repositoryTx.WithLabelValues(store, outcome).Inc()
	globalManager.repositoryTxLatency.WithLabelValues(store).Observe(seconds)
}

// RecordRepositoryQueryLatency observes a read in seconds.
func RecordRepositoryQueryLatency(store, op string, seconds float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(store, op).Observe(seconds)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error of a kind inside a component.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the registry served on /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
