// Package metrics exposes Prometheus instrumentation for the HTTP surface
// and the chat relay.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_http_requests_total",
		Help: "HTTP requests processed, by method, route and status code.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// StreamsTotal counts chat streams by terminal status
	// (completed, stopped, error).
	StreamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_streams_total",
		Help: "Chat streams by terminal status.",
	}, []string{"status"})

	// TokensTotal accumulates token usage by side (prompt, completion).
	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_tokens_total",
		Help: "Tokens consumed, by side.",
	}, []string{"side"})
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, status int, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// ObserveUsage records token consumption for one completed turn.
func ObserveUsage(promptTokens, completionTokens int) {
	TokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	TokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
}
