// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// requestDuration tracks HTTP latency by route template.
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "climbs_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by method, route and status",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
	}, []string{"method", "route", "status"})

	// submissionsTotal counts public submissions by outcome.
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "climbs_submissions_total",
		Help: "Public submissions by result",
	}, []string{"result"})

	// decisionsTotal counts moderation decisions by kind, decision and outcome.
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "climbs_moderation_decisions_total",
		Help: "Moderation decisions by kind, decision and result",
	}, []string{"kind", "decision", "result"})

	// exportsTotal counts dataset exports by destination.
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "climbs_exports_total",
		Help: "Dataset exports by destination and result",
	}, []string{"destination", "result"})
)

func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Result labels: "ok" or the error code of the failure.
func ObserveSubmission(result string) {
	submissionsTotal.WithLabelValues(result).Inc()
}

func ObserveDecision(kind, decision, result string) {
	decisionsTotal.WithLabelValues(kind, decision, result).Inc()
}

func ObserveExport(destination, result string) {
	exportsTotal.WithLabelValues(destination, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
