package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce       sync.Once
	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	verdictsTotal      *prometheus.CounterVec
	evaluationSeconds  *prometheus.HistogramVec
	cacheLookupsTotal  *prometheus.CounterVec
	rejectionsTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the judge API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route"})

		verdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_verdicts_total",
			Help: "Total number of verdicts issued by code.",
		}, []string{"language", "code"})

		evaluationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_evaluation_duration_seconds",
			Help:    "Wall time of complete submission evaluations.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"language"})

		cacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_verdict_cache_lookups_total",
			Help: "Verdict cache lookups by result.",
		}, []string{"result"})

		rejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_submission_rejections_total",
			Help: "Submissions rejected before evaluation by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, verdictsTotal, evaluationSeconds, cacheLookupsTotal, rejectionsTotal)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// Verdicts exposes the verdict counter.
func Verdicts() *prometheus.CounterVec {
	RegisterMetrics()
	return verdictsTotal
}

// EvaluationDuration exposes the evaluation wall time histogram.
func EvaluationDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return evaluationSeconds
}

// CacheLookups exposes the verdict cache hit/miss counter.
func CacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return cacheLookupsTotal
}

// Rejections exposes the counter of submissions refused before evaluation.
func Rejections() *prometheus.CounterVec {
	RegisterMetrics()
	return rejectionsTotal
}

// MetricsHandler serves the default registry, which also carries the
// process runner collectors.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
