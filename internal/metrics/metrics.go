// Package metrics exports Prometheus metrics fed from eventbus events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/graphcms/internal/eventbus"
	events "github.com/hanpama/graphcms/internal/events"
)

const namespace = "graphcms"

// Collector holds every metric the service exports.
type Collector struct {
	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// GraphQL
	OperationsTotal *prometheus.CounterVec
	OperationErrors *prometheus.CounterVec

	AuthorizationDenied *prometheus.CounterVec
	IndexMirrorFailures *prometheus.CounterVec

	SchemaTypes prometheus.Gauge
	SchemaReady prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the metrics on a fresh registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphql_operations_total",
				Help:      "Total number of executed GraphQL operations",
			},
			[]string{"type"},
		),
		OperationErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphql_errors_total",
				Help:      "Total number of errors returned in GraphQL responses",
			},
			[]string{"type"},
		),
		AuthorizationDenied: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authorization_denied_total",
				Help:      "Fields refused by the authorization guard",
			},
			[]string{"required", "anonymous"},
		),
		IndexMirrorFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_mirror_failures_total",
				Help:      "Documents stored without a matching search index write",
			},
			[]string{"index"},
		),
		SchemaTypes: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "schema_types",
				Help:      "Number of named types in the composed schema",
			},
		),
		SchemaReady: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "schema_ready",
				Help:      "1 once the composed schema is serving, 0 otherwise",
			},
		),
		gatherer: reg,
	}
}

// Attach subscribes the collector to bus.
func (c *Collector) Attach(bus *eventbus.Bus) (detach func()) {
	unsubs := []func(){
		eventbus.On(bus, func(_ context.Context, e events.HTTPFinish) {
			c.RequestsTotal.WithLabelValues(e.Route, e.Request.Method, strconv.Itoa(e.Status)).Inc()
			c.RequestDuration.WithLabelValues(e.Route).Observe(e.Duration.Seconds())
		}),
		eventbus.On(bus, func(_ context.Context, e events.GraphQLFinish) {
			c.OperationsTotal.WithLabelValues(e.OperationType).Inc()
			if e.Errors > 0 {
				c.OperationErrors.WithLabelValues(e.OperationType).Add(float64(e.Errors))
			}
		}),
		eventbus.On(bus, func(_ context.Context, e events.AuthorizationDenied) {
			c.AuthorizationDenied.WithLabelValues(e.Required, strconv.FormatBool(e.Anonymous)).Inc()
		}),
		eventbus.On(bus, func(_ context.Context, e events.IndexMirrorFailed) {
			c.IndexMirrorFailures.WithLabelValues(e.Index).Inc()
		}),
		eventbus.On(bus, func(_ context.Context, e events.SchemaMaterialized) {
			if e.Err != nil {
				c.SchemaReady.Set(0)
				return
			}
			c.SchemaTypes.Set(float64(e.Types))
			c.SchemaReady.Set(1)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
