// Package metrics provides Prometheus instrumentation for the vault service.
package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AnalysesTotal counts completed risk analyses by recommended action.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Name:      "analyses_total",
			Help:      "Total risk analyses by recommended action.",
		},
		[]string{"action"},
	)

	// AnalysisErrors counts analyses rejected before scoring.
	AnalysisErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Name:      "analysis_errors_total",
			Help:      "Total analyses that failed validation or were cancelled.",
		},
	)

	// RiskScore observes the final clamped score of each analysis.
	RiskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vaultguard",
			Name:      "risk_score",
			Help:      "Distribution of final risk scores.",
			Buckets:   []float64{0, 20, 30, 40, 50, 70, 80, 100},
		},
	)

	// QueueTransitionsTotal counts pending transaction lifecycle events.
	QueueTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Subsystem: "timelock",
			Name:      "transitions_total",
			Help:      "Pending transaction transitions by resulting status.",
		},
		[]string{"status"},
	)

	// FreezeActivationsTotal counts emergency freeze activations and releases.
	FreezeActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Subsystem: "freeze",
			Name:      "changes_total",
			Help:      "Emergency freeze state changes by kind.",
		},
		[]string{"kind"},
	)

	// NotificationsDropped counts events dropped because the buffer was full.
	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Subsystem: "alerting",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the dispatch buffer was full.",
		},
	)

	// NotificationFailures counts sink delivery failures.
	NotificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Subsystem: "alerting",
			Name:      "failures_total",
			Help:      "Notification sink delivery failures.",
		},
	)

	// HTTPRequestsTotal counts API requests by route and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by method, route and status class.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes API latency per route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vaultguard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		AnalysesTotal,
		AnalysisErrors,
		RiskScore,
		QueueTransitionsTotal,
		FreezeActivationsTotal,
		NotificationsDropped,
		NotificationFailures,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath()))
		c.Next()
		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), statusClass(c.Writer.Status())).Inc()
	}
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
