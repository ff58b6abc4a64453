// Package metrics expõe as métricas Prometheus do serviço num registry próprio.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	dbdomain "dbconn-gateway/dbconn/domain"
	rldomain "dbconn-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	rateLimitDecisions *prometheus.CounterVec

	dbQueryDuration *prometheus.HistogramVec
	dbQueryErrors   *prometheus.CounterVec

	mu     sync.Mutex
	pools  map[string]bool
	logger *zap.Logger
}

func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		pools:    make(map[string]bool),
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.rateLimitDecisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by outcome",
		},
		[]string{"path", "outcome"}, // outcome: allowed, rejected
	)

	c.dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Time to obtain a connection and run the query, per strategy",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"strategy"},
	)

	c.dbQueryErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_query_errors_total",
			Help:      "Failed queries per strategy and error kind",
		},
		[]string{"strategy", "kind"}, // kind: exhausted, connection, fatal, query
	)

	return c
}

// RecordHTTPRequest implementa httplog.Recorder.
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Record implementa o StatsStore do rate limit. Nunca falha.
func (c *Collector) Record(_ context.Context, ev rldomain.StatsEvent) error {
	outcome := "rejected"
	if ev.Allowed {
		outcome = "allowed"
	}
	c.rateLimitDecisions.WithLabelValues(ev.Path, outcome).Inc()
	return nil
}

// ObserveQuery implementa o QueryObserver dos handlers.
func (c *Collector) ObserveQuery(strategy string, d time.Duration, err error) {
	c.dbQueryDuration.WithLabelValues(strategy).Observe(d.Seconds())
	if err != nil {
		c.dbQueryErrors.WithLabelValues(strategy, errorKind(err)).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, dbdomain.ErrPoolExhausted):
		return "exhausted"
	case dbdomain.IsConnectionError(err):
		return "connection"
	case dbdomain.IsConnFatal(err):
		return "fatal"
	default:
		return "query"
	}
}

// RegisterPool publica os gauges e contadores de um pool. Registrar o mesmo
// nome duas vezes é ignorado.
func (c *Collector) RegisterPool(namespace, name string, stats func() dbdomain.PoolStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pools[name] {
		return nil
	}
	if err := c.registry.Register(newPoolCollector(namespace, name, stats)); err != nil {
		return err
	}
	c.pools[name] = true
	c.logger.Debug("pool metrics registered", zap.String("pool", name))
	return nil
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
