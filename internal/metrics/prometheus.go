package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder reports runtime metrics using Prometheus primitives.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInProgress *prometheus.GaugeVec
	httpExceptions *prometheus.CounterVec

	llmRequests *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec
	llmErrors   *prometheus.CounterVec

	vectorRequests *prometheus.CounterVec
	vectorDuration *prometheus.HistogramVec
	vectorResults  *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the full metric set on registry.
func NewPrometheusRecorder(registry *prometheus.Registry) (*PrometheusRecorder, error) {
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	r := &PrometheusRecorder{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "In-progress HTTP requests",
		}, []string{"method", "path"}),
		httpExceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_request_exceptions_total",
			Help: "Total HTTP request exceptions",
		}, []string{"method", "path", "exception_type"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total LLM requests",
		}, []string{"model", "operation", "status"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"model", "operation"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens",
		}, []string{"model", "type"}),
		llmErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_errors_total",
			Help: "Total LLM errors",
		}, []string{"model", "operation", "error_type"}),
		vectorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vector_db_requests_total",
			Help: "Vector database requests",
		}, []string{"operation", "status"}),
		vectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vector_db_request_duration_seconds",
			Help:    "Vector database request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		vectorResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vector_db_query_results",
			Help:    "Vector database results per query",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		}, []string{"operation"}),
	}

	collectors := []prometheus.Collector{
		r.httpRequests, r.httpDuration, r.httpInProgress, r.httpExceptions,
		r.llmRequests, r.llmDuration, r.llmTokens, r.llmErrors,
		r.vectorRequests, r.vectorDuration, r.vectorResults,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// Handler serves the registry in Prometheus text exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) ObserveHTTPStart(method, path string) {
	r.httpInProgress.WithLabelValues(method, path).Inc()
}

func (r *PrometheusRecorder) ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	r.httpRequests.WithLabelValues(method, path, status).Inc()
	r.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	r.httpInProgress.WithLabelValues(method, path).Dec()
}

func (r *PrometheusRecorder) ObserveHTTPException(method, path, errorType string) {
	r.httpExceptions.WithLabelValues(method, path, errorType).Inc()
}

func (r *PrometheusRecorder) ObserveLLMRequest(model, operation, status string, duration time.Duration) {
	r.llmRequests.WithLabelValues(model, operation, status).Inc()
	r.llmDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveLLMTokens(model string, prompt, completion, total int) {
	r.llmTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	r.llmTokens.WithLabelValues(model, "completion").Add(float64(completion))
	r.llmTokens.WithLabelValues(model, "total").Add(float64(total))
}

func (r *PrometheusRecorder) ObserveLLMError(model, operation, errorType string) {
	r.llmErrors.WithLabelValues(model, operation, errorType).Inc()
}

func (r *PrometheusRecorder) ObserveVectorRequest(operation, status string, duration time.Duration) {
	r.vectorRequests.WithLabelValues(operation, status).Inc()
	r.vectorDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveVectorResults(operation string, count int) {
	r.vectorResults.WithLabelValues(operation).Observe(float64(count))
}
