package metrics

import (
	"net/http"

	prometheus "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/llmeter/llmeter/internal/domain"
)

// Registry holds the in-process completion instruments. It owns its own
// prometheus.Registry so tests and embedders can construct a fresh instance
// instead of sharing process-wide state.
type Registry struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	costTotal        *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	timeToFirstToken *prometheus.HistogramVec
	tokensPerSecond  *prometheus.HistogramVec
	totalTokens      *prometheus.HistogramVec
	activeRequests   *prometheus.GaugeVec
}

// NewRegistry creates a registry with all completion instruments registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmeter_requests_total",
			Help: "Total completion requests by model, status, user and endpoint.",
		}, []string{"model", "status", "user_id", "endpoint"}),
		costTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmeter_cost_usd_total",
			Help: "Total USD cost of successful completions.",
		}, []string{"model", "endpoint"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmeter_request_duration_seconds",
			Help:    "Wall-clock duration of successful completions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model", "endpoint"}),
		timeToFirstToken: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmeter_time_to_first_token_seconds",
			Help:    "Simulated latency before the first token of output.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5},
		}, []string{"model", "endpoint"}),
		tokensPerSecond: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmeter_tokens_per_second",
			Help:    "Completion token throughput after the first token.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 400, 800},
		}, []string{"model", "endpoint"}),
		totalTokens: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmeter_total_tokens",
			Help:    "Total token count (prompt + completion) per request.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000},
		}, []string{"model", "endpoint"}),
		activeRequests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llmeter_active_requests",
			Help: "Completion requests currently in flight.",
		}, []string{"model", "endpoint"}),
	}

	reg.MustRegister(
		r.requestsTotal,
		r.costTotal,
		r.requestDuration,
		r.timeToFirstToken,
		r.tokensPerSecond,
		r.totalTokens,
		r.activeRequests,
	)

	return r
}

// RequestStarted increments the active-request gauge for a request entering
// the completion path.
func (r *Registry) RequestStarted(model, endpoint string) {
	r.activeRequests.WithLabelValues(model, endpoint).Inc()
}

// RequestFinished decrements the active-request gauge. Callers defer this so
// it fires on every exit path.
func (r *Registry) RequestFinished(model, endpoint string) {
	r.activeRequests.WithLabelValues(model, endpoint).Dec()
}

// Record applies one outcome to the instruments. The request counter covers
// every outcome; distributions and cost cover successful ones only.
func (r *Registry) Record(outcome domain.CompletionOutcome) {
	r.requestsTotal.WithLabelValues(outcome.Model, string(outcome.Status), outcome.UserID, outcome.Endpoint).Inc()

	if outcome.Status != domain.StatusSuccess {
		return
	}

	r.requestDuration.WithLabelValues(outcome.Model, outcome.Endpoint).Observe(outcome.TotalDuration)
	r.timeToFirstToken.WithLabelValues(outcome.Model, outcome.Endpoint).Observe(outcome.TimeToFirstToken)
	r.tokensPerSecond.WithLabelValues(outcome.Model, outcome.Endpoint).Observe(outcome.TokensPerSecond)
	r.totalTokens.WithLabelValues(outcome.Model, outcome.Endpoint).Observe(float64(outcome.TotalTokens))
	r.costTotal.WithLabelValues(outcome.Model, outcome.Endpoint).Add(outcome.CostUSD)
}

// Handler returns the pull-based exposition endpoint for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
