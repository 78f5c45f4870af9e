// Package telemetry exposes Prometheus metrics for the clinic server: HTTP
// request counters and latencies, in-flight requests, connection pool gauges
// and counters for multi-step domain operations such as cascades and uploads.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const namespace = "clinic"

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// RuntimeMetrics adds the Go runtime and process collectors.
	RuntimeMetrics bool
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "clinic-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// Provider owns a private registry so tests and multiple servers in one
// process never collide on the global one.
type Provider struct {
	cfg      Config
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	operations *prometheus.CounterVec
}

func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()

	p := &Provider{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_operations_total",
			Help:      "Multi-step domain operations by outcome.",
		}, []string{"operation", "outcome"}),
	}

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Service identity.",
		ConstLabels: prometheus.Labels{"service": cfg.ServiceName, "version": cfg.ServiceVersion, "env": cfg.Environment},
	})
	info.Set(1)

	p.registry.MustRegister(p.requests, p.duration, p.inFlight, p.operations, info)
	if cfg.RuntimeMetrics {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p
}

func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// Middleware records one observation per request. Unmatched routes share a
// single label value to keep cardinality bounded.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.inFlight.Inc()
			start := time.Now()

			err := next(c)

			p.inFlight.Dec()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			status := c.Response().Status
			if err != nil {
				status = statusOf(err)
			}

			p.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			p.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func statusOf(err error) int {
	if kind := apperr.KindOf(err); kind != "" {
		return apperr.HTTPStatus(kind)
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
	return echo.WrapHandler(h)
}

// Operation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomeCompensated means a partial write was undone by later writes.
	OutcomeCompensated = "compensated"
	// OutcomeRolledBack means a database transaction discarded the writes.
	OutcomeRolledBack = "rolled_back"
)

// RecordOperation counts a domain operation such as "patient_cascade_delete"
// or "photo_upload".
func (p *Provider) RecordOperation(operation, outcome string) {
	if p == nil {
		return
	}
	p.operations.WithLabelValues(operation, outcome).Inc()
}
