package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every method is safe to call on a
// nil *Metrics so components can run without monitoring attached.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Process metrics
	ProcessesRunning prometheus.Gauge
	ProcessSpawns    *prometheus.CounterVec
	ProcessDeaths    *prometheus.CounterVec
	ProcessRestarts  prometheus.Counter
	SpawnBreaker     *prometheus.CounterVec

	// Launch metrics
	LaunchesTotal  *prometheus.CounterVec
	LaunchDuration *prometheus.HistogramVec

	// Process cache metrics
	CacheSize         prometheus.Gauge
	CacheCapacity     prometheus.Gauge
	CachePends        *prometheus.CounterVec
	CacheEvictions    prometheus.Counter
	CacheKillFailures prometheus.Counter
	CacheReuses       prometheus.Counter
	CacheStateChanges *prometheus.CounterVec

	// Event stream metrics
	StreamConnections prometheus.Gauge
	EventsDropped     prometheus.Counter

	Latency *LatencyStats
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appmgr_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appmgr_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		ProcessesRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "appmgr_processes_running",
			Help: "Number of tracked application processes",
		}),
		ProcessSpawns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appmgr_process_spawns_total",
				Help: "Total number of process spawn attempts",
			},
			[]string{"result"},
		),
		ProcessDeaths: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appmgr_process_deaths_total",
				Help: "Total number of observed process exits",
			},
			[]string{"keep_alive"},
		),
		ProcessRestarts: f.NewCounter(prometheus.CounterOpts{
			Name: "appmgr_process_restarts_total",
			Help: "Total number of resident process restarts",
		}),
		SpawnBreaker: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appmgr_spawn_breaker_transitions_total",
				Help: "Total number of spawn circuit breaker state transitions",
			},
			[]string{"state"},
		),

		LaunchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appmgr_launches_total",
				Help: "Total number of ability launches by start path",
			},
			[]string{"path"},
		),
		LaunchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appmgr_launch_duration_seconds",
				Help:    "Ability launch duration in seconds by start path",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"path"},
		),

		CacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "appmgr_process_cache_size",
			Help: "Number of processes in the warm process cache",
		}),
		CacheCapacity: f.NewGauge(prometheus.GaugeOpts{
			Name: "appmgr_process_cache_capacity",
			Help: "Configured warm process cache capacity",
		}),
		CachePends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appmgr_process_cache_pends_total",
				Help: "Total number of cache admission attempts",
			},
			[]string{"result"},
		),
		CacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "appmgr_process_cache_evictions_total",
			Help: "Total number of processes evicted from the cache",
		}),
		CacheKillFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "appmgr_process_cache_kill_failures_total",
			Help: "Total number of failed kill requests for evicted processes",
		}),
		CacheReuses: f.NewCounter(prometheus.CounterOpts{
			Name: "appmgr_process_cache_reuses_total",
			Help: "Total number of cached processes reused for a launch",
		}),
		CacheStateChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appmgr_process_cache_state_changes_total",
				Help: "Total number of state changes made by the cache",
			},
			[]string{"state"},
		),

		StreamConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "appmgr_stream_connections",
			Help: "Number of connected event stream clients",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "appmgr_stream_events_dropped_total",
			Help: "Total number of events dropped for slow subscribers",
		}),

		Latency: NewLatencyStats(DefaultLatencyWindow),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetProcessesRunning sets the number of tracked processes
func (m *Metrics) SetProcessesRunning(count int) {
	if m == nil {
		return
	}
	m.ProcessesRunning.Set(float64(count))
}

// RecordSpawn records a spawn attempt
func (m *Metrics) RecordSpawn(ok bool) {
	if m == nil {
		return
	}
	m.ProcessSpawns.WithLabelValues(result(ok)).Inc()
}

// RecordDeath records a process exit
func (m *Metrics) RecordDeath(keepAlive bool) {
	if m == nil {
		return
	}
	label := "false"
	if keepAlive {
		label = "true"
	}
	m.ProcessDeaths.WithLabelValues(label).Inc()
}

// IncRestarts increments the resident restart counter
func (m *Metrics) IncRestarts() {
	if m == nil {
		return
	}
	m.ProcessRestarts.Inc()
}

// RecordBreakerState records a spawn breaker entering state
func (m *Metrics) RecordBreakerState(state string) {
	if m == nil {
		return
	}
	m.SpawnBreaker.WithLabelValues(state).Inc()
}

// RecordLaunch records a launch and its latency for the given start path
func (m *Metrics) RecordLaunch(path string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LaunchesTotal.WithLabelValues(path).Inc()
	m.LaunchDuration.WithLabelValues(path).Observe(duration.Seconds())
	m.Latency.Observe(path, duration)
}

// SetCache sets the cache size and capacity gauges
func (m *Metrics) SetCache(size, capacity int) {
	if m == nil {
		return
	}
	m.CacheSize.Set(float64(size))
	m.CacheCapacity.Set(float64(capacity))
}

// RecordPend records a cache admission attempt
func (m *Metrics) RecordPend(accepted bool) {
	if m == nil {
		return
	}
	label := "rejected"
	if accepted {
		label = "accepted"
	}
	m.CachePends.WithLabelValues(label).Inc()
}

// RecordEviction records an eviction and whether its kill request failed
func (m *Metrics) RecordEviction(killFailed bool) {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
	if killFailed {
		m.CacheKillFailures.Inc()
	}
}

// IncReuses increments the cache reuse counter
func (m *Metrics) IncReuses() {
	if m == nil {
		return
	}
	m.CacheReuses.Inc()
}

// RecordCacheState records a state written by the cache
func (m *Metrics) RecordCacheState(state string) {
	if m == nil {
		return
	}
	m.CacheStateChanges.WithLabelValues(state).Inc()
}

// IncStreamConnections increments connected stream clients
func (m *Metrics) IncStreamConnections() {
	if m == nil {
		return
	}
	m.StreamConnections.Inc()
}

// DecStreamConnections decrements connected stream clients
func (m *Metrics) DecStreamConnections() {
	if m == nil {
		return
	}
	m.StreamConnections.Dec()
}

// IncEventsDropped increments the dropped event counter
func (m *Metrics) IncEventsDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
