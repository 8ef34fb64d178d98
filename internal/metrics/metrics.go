// internal/metrics/metrics.go
package metrics

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Settlement outcomes.
const (
	OutcomeSettled         = "settled"
	OutcomeReplayed        = "replayed"
	OutcomeNotCompleted    = "not_completed"
	OutcomeGatewayError    = "gateway_error"
	OutcomeIdentity        = "identity_mismatch"
	OutcomeNoLicense       = "no_license"
	OutcomeInternalFailure = "failed"
)

type engineMetrics struct {
	settlements  *prometheus.CounterVec
	gateway      *prometheus.HistogramVec
	transitions  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

var (
	once     sync.Once
	registry *engineMetrics
)

func get() *engineMetrics {
	once.Do(func() {
		registry = &engineMetrics{
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketplace",
				Subsystem: "settlement",
				Name:      "attempts_total",
				Help:      "Purchase settlement attempts segmented by outcome.",
			}, []string{"outcome"}),
			gateway: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "marketplace",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency of checkout gateway calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op", "result"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketplace",
				Subsystem: "licensing",
				Name:      "transitions_total",
				Help:      "Licensing agreement state transitions segmented by target state.",
			}, []string{"to"}),
			httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketplace",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status class.",
			}, []string{"method", "route", "status"}),
		}
		prometheus.MustRegister(
			registry.settlements,
			registry.gateway,
			registry.transitions,
			registry.httpRequests,
		)
	})
	return registry
}

func SettlementOutcome(outcome string) {
	get().settlements.WithLabelValues(outcome).Inc()
}

// ObserveGateway records the duration of a gateway call started at start.
func ObserveGateway(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	get().gateway.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func LicensingTransition(to string) {
	get().transitions.WithLabelValues(to).Inc()
}

// Middleware counts requests by matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		get().httpRequests.WithLabelValues(c.Request.Method, route, statusClass(status)).Inc()
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	get()
	return gin.WrapH(promhttp.Handler())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
