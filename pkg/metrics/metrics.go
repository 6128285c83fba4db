// Package metrics collects Prometheus metrics for requests, crawls and sweeps.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records twscraper metrics on a registry
type Collector struct {
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	crawls         *prometheus.CounterVec
	discovered     *prometheus.CounterVec
	sweepProcessed *prometheus.CounterVec
	sweepFailed    *prometheus.CounterVec
	syncs          *prometheus.CounterVec
	queuedJobs     prometheus.Gauge
}

// NewCollector creates a Collector and registers it on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twscraper_requests_total",
			Help: "Upstream request attempts by endpoint and status code",
		}, []string{"endpoint", "status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "twscraper_request_duration_seconds",
			Help:    "Upstream request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		crawls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twscraper_crawls_total",
			Help: "Finished timeline crawls by phase and outcome",
		}, []string{"phase", "outcome"}),
		discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twscraper_discovered_ids_total",
			Help: "Content ids returned by timeline crawls",
		}, []string{"phase"}),
		sweepProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twscraper_sweep_processed_total",
			Help: "Elements moved by lifecycle sweeps",
		}, []string{"sweep"}),
		sweepFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twscraper_sweep_failed_total",
			Help: "Elements a lifecycle sweep failed to move",
		}, []string{"sweep"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twscraper_syncs_total",
			Help: "Subscription syncs by outcome",
		}, []string{"outcome"}),
		queuedJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "twscraper_jobs_queued",
			Help: "Jobs waiting for a worker",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestLatency,
		c.crawls,
		c.discovered,
		c.sweepProcessed,
		c.sweepFailed,
		c.syncs,
		c.queuedJobs,
	)
	return c
}

// ObserveRequest records one upstream HTTP attempt. A zero status means
// the attempt failed before a response arrived.
func (c *Collector) ObserveRequest(endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	if statusCode == 0 {
		status = "error"
	}
	c.requests.WithLabelValues(endpoint, status).Inc()
	c.requestLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveCrawl records a finished crawl
func (c *Collector) ObserveCrawl(phase string, ids int, nothingFound bool, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case nothingFound:
		outcome = "nothing_found"
	}
	c.crawls.WithLabelValues(phase, outcome).Inc()
	c.discovered.WithLabelValues(phase).Add(float64(ids))
}

// ObserveSweep records the outcome of one sweep run
func (c *Collector) ObserveSweep(kind string, processed, failed int) {
	c.sweepProcessed.WithLabelValues(kind).Add(float64(processed))
	c.sweepFailed.WithLabelValues(kind).Add(float64(failed))
}

// ObserveSync records the outcome of one subscription sync
func (c *Collector) ObserveSync(outcome string) {
	c.syncs.WithLabelValues(outcome).Inc()
}

// SetQueued reports the number of jobs waiting for a worker
func (c *Collector) SetQueued(n int) {
	c.queuedJobs.Set(float64(n))
}

// Handler returns the Prometheus scrape handler
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Router serves /metrics and /healthz. Every check must pass for /healthz
// to answer 200.
func Router(gatherer prometheus.Gatherer, checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", Handler(gatherer))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
