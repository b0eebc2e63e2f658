// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportim_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportim_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	Connections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supportim_ws_connections",
			Help: "Open realtime connections",
		},
		[]string{"role"},
	)

	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportim_messages_total",
			Help: "Messages appended to the store",
		},
		[]string{"sender"},
	)

	Recalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportim_recalls_total",
			Help: "Messages recalled",
		},
		[]string{"by"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportim_rate_limit_hits_total",
			Help: "Requests or events rejected by a rate limiter",
		},
		[]string{"limiter"},
	)

	TranslateRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportim_translate_requests_total",
			Help: "Translation requests by winning provider",
		},
		[]string{"provider"},
	)

	OnlineThreads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "supportim_online_threads",
			Help: "Threads with at least one connected customer",
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportim_uploads_total",
			Help: "Upload outcomes",
		},
		[]string{"result"},
	)
)
