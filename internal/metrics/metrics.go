// Package metrics owns the Prometheus registry served on the admin port.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/version"
)

// ServerMetrics is safe for concurrent use. Labels are limited to bounded
// values (method, route pattern, status, tier) to keep cardinality flat.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight  prometheus.Gauge
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
	errTotal  *prometheus.CounterVec
	panics    prometheus.Counter

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	ratelimitDenied   prometheus.Counter
	ratelimitOffender prometheus.Counter

	resolutions    *prometheus.CounterVec
	defaultCreated prometheus.Counter

	syncRuns        *prometheus.CounterVec
	syncFiles       prometheus.Counter
	syncDuration    prometheus.Histogram
	syncRelease     *prometheus.GaugeVec
	syncLastSuccess prometheus.Gauge
}

func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"method", "route"}),
		errTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx responses by method and route",
		}, []string{"method", "route"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is running (1) or not (0)",
		}),
		ratelimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the per-ip limiter",
		}),
		ratelimitOffender: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_clients_total",
			Help: "Total clients that hit the per-ip limit (once per limiter entry)",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "markdown_resolutions_total",
			Help: "Welcome document lookups by selected tier and whether a document was returned",
		}, []string{"tier", "found"}),
		defaultCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "markdown_default_created_total",
			Help: "Times the default chainlit.md was written because none existed",
		}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docsync_runs_total",
			Help: "Docs release sync attempts by result",
		}, []string{"result"}),
		syncFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docsync_files_written_total",
			Help: "Documents written into the project root by docs sync",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docsync_duration_seconds",
			Help:    "Time to fetch, verify, and write a docs release",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		syncRelease: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docsync_release_info",
			Help: "Docs release currently on disk (label carries identity, value is always 1)",
		}, []string{"release"}),
		syncLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docsync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful docs sync",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errTotal,
		m.panics,
		m.buildInfo,
		m.profilingActive,
		m.ratelimitDenied,
		m.ratelimitOffender,
		m.resolutions,
		m.defaultCreated,
		m.syncRuns,
		m.syncFiles,
		m.syncDuration,
		m.syncRelease,
		m.syncLastSuccess,
	)

	m.reg = reg
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry is exposed for tests and for components that register their own
// collectors.
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncHTTPPanic() { m.panics.Inc() }

// SetBuildInfo is called once at startup.
func (m *ServerMetrics) SetBuildInfo(component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         vi.App,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildID,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(b2f(active)) }

func (m *ServerMetrics) IncRateLimitDenied() { m.ratelimitDenied.Inc() }

func (m *ServerMetrics) IncRateLimitOffender() { m.ratelimitOffender.Inc() }

// ObserveResolution counts one welcome document lookup.
func (m *ServerMetrics) ObserveResolution(tier string, found bool) {
	m.resolutions.WithLabelValues(tier, strconv.FormatBool(found)).Inc()
}

func (m *ServerMetrics) IncDefaultCreated() { m.defaultCreated.Inc() }

// ObserveSync records one docs sync attempt. result is "success" or
// "error"; release and files are only used on success.
func (m *ServerMetrics) ObserveSync(result, release string, files int, took time.Duration) {
	m.syncRuns.WithLabelValues(result).Inc()
	m.syncDuration.Observe(took.Seconds())
	if result == "error" {
		return
	}
	m.syncFiles.Add(float64(files))
	m.syncRelease.Reset()
	m.syncRelease.WithLabelValues(release).Set(1)
	m.syncLastSuccess.Set(float64(time.Now().Unix()))
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
