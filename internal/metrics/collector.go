package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes metrics
type Collector struct {
	registry       *prometheus.Registry
	requestsTotal  *prometheus.CounterVec
	retriesTotal   prometheus.Counter
	rateLimitWaits prometheus.Counter
	stageDuration  *prometheus.HistogramVec
	projectsTotal  prometheus.Gauge
	requestLatency prometheus.Histogram
}

// New creates a new metrics collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitlab_api_requests_total",
				Help: "Total number of API requests by status class",
			},
			[]string{"status"},
		),
		retriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gitlab_api_retries_total",
				Help: "Total number of API request retries",
			},
		),
		rateLimitWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gitlab_api_rate_limit_waits_total",
				Help: "Times the client slept to respect the rate budget",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_stage_duration_seconds",
				Help:    "Time taken to run one pipeline stage",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"stage"},
		),
		projectsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "analysis_projects_total",
				Help: "Number of projects being analyzed",
			},
		),
		requestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gitlab_api_request_duration_seconds",
				Help:    "API request latency",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	// Register metrics
	c.registry.MustRegister(c.requestsTotal)
	c.registry.MustRegister(c.retriesTotal)
	c.registry.MustRegister(c.rateLimitWaits)
	c.registry.MustRegister(c.stageDuration)
	c.registry.MustRegister(c.projectsTotal)
	c.registry.MustRegister(c.requestLatency)

	return c
}

// IncRequest records one API request outcome ("2xx", "4xx", "5xx", "error")
func (c *Collector) IncRequest(statusClass string) {
	c.requestsTotal.WithLabelValues(statusClass).Inc()
}

// IncRetry records one retried request attempt
func (c *Collector) IncRetry() {
	c.retriesTotal.Inc()
}

// IncRateLimitWait records one enforced rate-limit sleep
func (c *Collector) IncRateLimitWait() {
	c.rateLimitWaits.Inc()
}

// ObserveStageDuration observes one stage's wall-clock duration
func (c *Collector) ObserveStageDuration(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRequestLatency observes one API request's latency
func (c *Collector) ObserveRequestLatency(d time.Duration) {
	c.requestLatency.Observe(d.Seconds())
}

// SetProjectCount sets the number of projects under analysis
func (c *Collector) SetProjectCount(n int) {
	c.projectsTotal.Set(float64(n))
}

// StartServer starts the metrics HTTP server
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
