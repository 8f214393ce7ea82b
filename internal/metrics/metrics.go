// Package metrics exposes Prometheus instrumentation for the running
// server: session counts, dispatch throughput, script execution
// latency, and hot-reload outcomes.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric descriptor the server publishes.
type Metrics struct {
	startTime time.Time

	sessionsConnected *prometheus.GaugeVec
	dispatchesTotal   *prometheus.CounterVec
	dispatchDuration  prometheus.Histogram
	scriptTimeouts    prometheus.Counter
	registrySwaps     prometheus.Counter
	registryVerbs     prometheus.Gauge
	reloadFailures    prometheus.Counter
	uptimeSeconds     prometheus.Gauge
	memoryHeapBytes   prometheus.Gauge
	goroutines        prometheus.Gauge
}

// New creates and registers every metric against reg. Pass
// prometheus.NewRegistry() in tests to avoid the global default
// registry's cross-test collision.
func New(reg prometheus.Registerer, startTime time.Time) *Metrics {
	m := &Metrics{
		startTime: startTime,
		sessionsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lattice_sessions_connected",
			Help: "Currently connected sessions by lifecycle state.",
		}, []string{"state"}),
		dispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_dispatches_total",
			Help: "Dispatch attempts by outcome.",
		}, []string{"outcome"}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lattice_dispatch_duration_seconds",
			Help:    "Wall-clock time spent in Dispatch, including script execution.",
			Buckets: prometheus.DefBuckets,
		}),
		scriptTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lattice_script_timeouts_total",
			Help: "Script invocations aborted for exceeding their execution budget.",
		}),
		registrySwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lattice_registry_swaps_total",
			Help: "Successful hot-reload registry swaps.",
		}),
		registryVerbs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lattice_registry_verbs",
			Help: "Verb count in the currently published registry snapshot.",
		}),
		reloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lattice_reload_failures_total",
			Help: "Hot-reload rebuild attempts that left the registry unchanged.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lattice_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lattice_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lattice_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	reg.MustRegister(
		m.sessionsConnected, m.dispatchesTotal, m.dispatchDuration, m.scriptTimeouts,
		m.registrySwaps, m.registryVerbs, m.reloadFailures,
		m.uptimeSeconds, m.memoryHeapBytes, m.goroutines,
	)
	return m
}

// ObserveDispatch records one completed dispatch.
func (m *Metrics) ObserveDispatch(outcome string, d time.Duration) {
	m.dispatchesTotal.WithLabelValues(outcome).Inc()
	m.dispatchDuration.Observe(d.Seconds())
}

// ObserveScriptTimeout records one script invocation aborted by the
// execution budget.
func (m *Metrics) ObserveScriptTimeout() { m.scriptTimeouts.Inc() }

// ObserveReload records a hot-reload attempt's outcome and, on success,
// the resulting verb count.
func (m *Metrics) ObserveReload(ok bool, verbCount int) {
	if ok {
		m.registrySwaps.Inc()
		m.registryVerbs.Set(float64(verbCount))
		return
	}
	m.reloadFailures.Inc()
}

// SetSessionCounts publishes the current session count for each
// lifecycle state.
func (m *Metrics) SetSessionCounts(counts map[string]int) {
	for state, n := range counts {
		m.sessionsConnected.WithLabelValues(state).Set(float64(n))
	}
}

func (m *Metrics) refreshProcessStats() {
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler serving the registered metrics in the
// Prometheus exposition format, refreshing process-level gauges first.
func (m *Metrics) Handler(gatherer prometheus.Gatherer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.refreshProcessStats()
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
