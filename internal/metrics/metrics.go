// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

// Package metrics defines the Prometheus metrics exported by the TFS proxy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tfs_proxy"

// Collector records request, backend and ping metrics.
// All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	payloadsTotal   *prometheus.CounterVec
	backendTotal    *prometheus.CounterVec
	backendDuration prometheus.Histogram
	pingsTotal      *prometheus.CounterVec
}

// New creates a Collector and registers its metrics with the given registry.
func New(registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests received by the proxy",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		payloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payloads_total",
				Help:      "Invocation payloads by detected format",
			},
			[]string{"format"},
		),
		backendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_responses_total",
				Help:      "Responses received from TensorFlow Serving by status code",
			},
			[]string{"status"},
		),
		backendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_duration_seconds",
				Help:      "Duration of prediction requests forwarded to TensorFlow Serving",
				Buckets:   prometheus.DefBuckets,
			},
		),
		pingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pings_total",
				Help:      "Health checks by probe mode and result",
			},
			[]string{"mode", "result"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.payloadsTotal,
		c.backendTotal,
		c.backendDuration,
		c.pingsTotal,
	)
	return c
}

// Handler returns an HTTP handler exposing all registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// ObserveRequest records a request served by the proxy.
func (c *Collector) ObserveRequest(method, path string, status int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObservePayload records the detected format of an invocation payload.
func (c *Collector) ObservePayload(format string) {
	c.payloadsTotal.WithLabelValues(format).Inc()
}

// ObserveBackendResponse records the status code returned by the backend.
func (c *Collector) ObserveBackendResponse(status int) {
	c.backendTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveBackendDuration records how long a prediction request took.
func (c *Collector) ObserveBackendDuration(duration time.Duration) {
	c.backendDuration.Observe(duration.Seconds())
}

// ObservePing records the result of a health check.
func (c *Collector) ObservePing(mode string, healthy bool) {
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	c.pingsTotal.WithLabelValues(mode, result).Inc()
}
