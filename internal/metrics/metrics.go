package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	PointsCreated     prometheus.Counter
	PointCreateErrors *prometheus.CounterVec
	DiscoveryResults  prometheus.Histogram
	ItemCacheRequests *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ecoleta_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ecoleta_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PointsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "ecoleta_points_created_total",
			Help: "Total number of collection points created",
		}),
		PointCreateErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ecoleta_point_create_failures_total",
			Help: "Rejected or failed point creations by error code",
		}, []string{"code"}),
		DiscoveryResults: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ecoleta_discovery_results",
			Help:    "Number of points returned per discovery query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		ItemCacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ecoleta_item_cache_requests_total",
			Help: "Item cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
