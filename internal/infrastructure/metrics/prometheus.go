package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager holds the escrow Prometheus metrics on a private registry.
type Manager struct {
	Registry           *prometheus.Registry
	TransitionsTotal   *prometheus.CounterVec   // by op and outcome ("ok", "authorization", ...)
	TransitionDuration *prometheus.HistogramVec // by op
	HTTPRequestsTotal  *prometheus.CounterVec   // by method, route and status
}

func NewManager(namespace string) *Manager {
	if namespace == "" {
		namespace = "title_escrow"
	}
	registry := prometheus.NewRegistry()

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Escrow transitions by operation and outcome.",
	}, []string{"op", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transition_duration_seconds",
		Help:      "Escrow transition latency, lock wait included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	registry.MustRegister(
		transitions,
		duration,
		requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Manager{
		Registry:           registry,
		TransitionsTotal:   transitions,
		TransitionDuration: duration,
		HTTPRequestsTotal:  requests,
	}
}

// ObserveTransition implements escrow.Observer.
func (m *Manager) ObserveTransition(op, outcome string, d time.Duration) {
	m.TransitionsTotal.WithLabelValues(op, outcome).Inc()
	m.TransitionDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Middleware counts every request once the handler chain has run.
func (m *Manager) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		return err
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Manager) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}
