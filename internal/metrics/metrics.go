package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inno_gateway_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"route", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inno_gateway_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000, 120000},
		},
		[]string{"route"},
	)
	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inno_gateway_provider_calls_total",
			Help: "Total number of upstream provider calls",
		},
		[]string{"provider", "status"},
	)
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inno_gateway_tokens_total",
			Help: "Total tokens billed, by direction",
		},
		[]string{"direction"},
	)
	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inno_gateway_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
	usageQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inno_gateway_usage_queue_depth",
			Help: "Usage events awaiting settlement",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(providerCalls)
	prometheus.MustRegister(tokensTotal)
	prometheus.MustRegister(rateLimited)
	prometheus.MustRegister(usageQueueDepth)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveRequest(route, status string, elapsed time.Duration) {
	requestsTotal.WithLabelValues(route, status).Inc()
	requestDuration.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
}

func ObserveProviderCall(provider, status string) {
	providerCalls.WithLabelValues(provider, status).Inc()
}

func AddTokens(prompt, completion int) {
	if prompt > 0 {
		tokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		tokensTotal.WithLabelValues("completion").Add(float64(completion))
	}
}

func IncRateLimited() {
	rateLimited.Inc()
}

func SetUsageQueueDepth(n int) {
	usageQueueDepth.Set(float64(n))
}
