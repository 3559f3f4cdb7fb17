package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// Manager handles application metrics
type Manager struct {
	registry *prometheus.Registry

	// Timeline metrics
	timelineRequestsTotal *prometheus.CounterVec
	timelineTierTotal     *prometheus.CounterVec
	reconstructDuration   prometheus.Histogram

	// Cache metrics
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// Circuit breaker metrics
	breakerOpenTotal prometheus.Counter
	upstreamFailures *prometheus.CounterVec

	// Summarization metrics
	summariesTotal *prometheus.CounterVec
}

// New creates a new metrics manager with its own registry
func New(namespace string) *Manager {
	registry := prometheus.NewRegistry()

	m := &Manager{
		registry: registry,

		timelineRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeline_requests_total",
				Help:      "Total number of timeline requests",
			},
			[]string{"outcome"},
		),

		timelineTierTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeline_tier_total",
				Help:      "Timelines served by fidelity tier",
			},
			[]string{"tier"},
		),

		reconstructDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconstruct_duration_seconds",
				Help:      "Timeline reconstruction duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Cache hits by cache name",
			},
			[]string{"cache"},
		),

		cacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Cache misses by cache name",
			},
			[]string{"cache"},
		),

		breakerOpenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_open_total",
				Help:      "Number of times a refresh was suppressed by an open breaker",
			},
		),

		upstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_failures_total",
				Help:      "Upstream engine fetch failures by operation",
			},
			[]string{"op"},
		),

		summariesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summaries_total",
				Help:      "Summaries produced by strategy",
			},
			[]string{"strategy"},
		),
	}

	registry.MustRegister(
		m.timelineRequestsTotal,
		m.timelineTierTotal,
		m.reconstructDuration,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.breakerOpenTotal,
		m.upstreamFailures,
		m.summariesTotal,
	)

	return m
}

// Handler returns a fiber handler exposing the registry
func (m *Manager) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// RecordTimelineRequest records a timeline request outcome (ok, error, cached)
func (m *Manager) RecordTimelineRequest(outcome string) {
	m.timelineRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordTier records the fidelity tier that served a timeline
func (m *Manager) RecordTier(tier string) {
	m.timelineTierTotal.WithLabelValues(tier).Inc()
}

// ObserveReconstruct records a reconstruction duration
func (m *Manager) ObserveReconstruct(seconds float64) {
	m.reconstructDuration.Observe(seconds)
}

// RecordCacheHit records a hit on the named cache
func (m *Manager) RecordCacheHit(cache string) {
	m.cacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a miss on the named cache
func (m *Manager) RecordCacheMiss(cache string) {
	m.cacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordBreakerOpen records a suppressed refresh
func (m *Manager) RecordBreakerOpen() {
	m.breakerOpenTotal.Inc()
}

// RecordUpstreamFailure records a failed engine call
func (m *Manager) RecordUpstreamFailure(op string) {
	m.upstreamFailures.WithLabelValues(op).Inc()
}

// RecordSummary records a produced summary by strategy name
func (m *Manager) RecordSummary(strategy string) {
	m.summariesTotal.WithLabelValues(strategy).Inc()
}
