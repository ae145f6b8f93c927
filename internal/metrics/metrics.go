// Package metrics provides Prometheus metrics for the bus arrival service.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Provider fetch outcomes used as the "result" label.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

// Estimator outcomes used as the "outcome" label.
const (
	OutcomeEstimate  = "estimate"
	OutcomeNoService = "no_service"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream metrics
	ProviderFetchTotal    *prometheus.CounterVec
	ProviderFetchDuration *prometheus.HistogramVec
	EstimatorCallsTotal   *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     *prometheus.CounterVec
	CacheRefreshDuration *prometheus.HistogramVec
	SnapshotArrivals     *prometheus.GaugeVec

	// Timetable database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge

	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busarrival_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "busarrival_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ProviderFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busarrival_provider_fetch_total",
			Help: "Upstream arrival provider calls by result",
		}, []string{"provider", "result"}),
		ProviderFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "busarrival_provider_fetch_duration_seconds",
			Help:    "Upstream arrival provider call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 3, 5},
		}, []string{"provider"}),
		EstimatorCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busarrival_estimator_calls_total",
			Help: "Timetable estimator calls by outcome",
		}, []string{"outcome"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busarrival_cache_hits_total",
			Help: "Arrival snapshot cache hits",
		}, []string{"station"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busarrival_cache_misses_total",
			Help: "Arrival snapshot cache misses and expiries",
		}, []string{"station"}),
		CacheRefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "busarrival_cache_refresh_duration_seconds",
			Help:    "Time spent aggregating a fresh snapshot",
			Buckets: prometheus.DefBuckets,
		}, []string{"station"}),
		SnapshotArrivals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "busarrival_snapshot_arrivals",
			Help: "Number of arrivals in the latest snapshot per station",
		}, []string{"station"}),
		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busarrival_timetable_db_connections_open",
			Help: "Number of open timetable database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busarrival_timetable_db_connections_in_use",
			Help: "Number of timetable database connections currently in use",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busarrival_timetable_db_connections_idle",
			Help: "Number of idle timetable database connections",
		}),
		logger: logger,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProviderFetchTotal,
		m.ProviderFetchDuration,
		m.EstimatorCallsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheRefreshDuration,
		m.SnapshotArrivals,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
	)

	return m
}

// ObserveProviderFetch records one provider call. Safe on a nil receiver.
func (m *Metrics) ObserveProviderFetch(provider, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderFetchTotal.WithLabelValues(provider, result).Inc()
	m.ProviderFetchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveEstimate records one estimator call. Safe on a nil receiver.
func (m *Metrics) ObserveEstimate(outcome string) {
	if m == nil {
		return
	}
	m.EstimatorCallsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheHit records a cache hit. Safe on a nil receiver.
func (m *Metrics) ObserveCacheHit(station string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(station).Inc()
}

// ObserveRefresh records a miss followed by a refresh. Safe on a nil receiver.
func (m *Metrics) ObserveRefresh(station string, d time.Duration, arrivals int) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(station).Inc()
	m.CacheRefreshDuration.WithLabelValues(station).Observe(d.Seconds())
	m.SnapshotArrivals.WithLabelValues(station).Set(float64(arrivals))
}

// StartDBStatsCollector periodically copies the timetable database pool
// statistics into gauges. Calling it more than once has no effect.
// Call Shutdown to stop the collector.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}

	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in timetable DB stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
				m.DBConnectionsIdle.Set(float64(stats.Idle))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m == nil {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
