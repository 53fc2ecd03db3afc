package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"

	domain "github.com/llmeter/llmeter/internal/domain"
)

func successOutcome(model string) domain.CompletionOutcome {
	return domain.CompletionOutcome{
		RequestID:        "req-1",
		Timestamp:        time.Now().UTC(),
		Model:            model,
		PromptTokens:     100,
		CompletionTokens: 200,
		TotalTokens:      300,
		TimeToFirstToken: 0.5,
		TokensPerSecond:  40,
		TotalDuration:    5.5,
		CostUSD:          0.02,
		Status:           domain.StatusSuccess,
		UserID:           "alice",
		Endpoint:         "/v1/completions",
	}
}

func metricFamily(t *testing.T, r *Registry, name string) map[string]float64 {
	t.Helper()

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			key := ""
			for _, label := range m.GetLabel() {
				key += label.GetName() + "=" + label.GetValue() + ","
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return values
}

func sum(values map[string]float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func TestRegistry_Record(t *testing.T) {
	t.Run("success feeds every instrument", func(t *testing.T) {
		r := NewRegistry()
		r.Record(successOutcome("gpt-4"))

		assert.Equal(t, 1.0, sum(metricFamily(t, r, "llmeter_requests_total")))
		assert.Equal(t, 1.0, sum(metricFamily(t, r, "llmeter_request_duration_seconds")))
		assert.Equal(t, 1.0, sum(metricFamily(t, r, "llmeter_time_to_first_token_seconds")))
		assert.Equal(t, 1.0, sum(metricFamily(t, r, "llmeter_tokens_per_second")))
		assert.Equal(t, 1.0, sum(metricFamily(t, r, "llmeter_total_tokens")))
		assert.InDelta(t, 0.02, sum(metricFamily(t, r, "llmeter_cost_usd_total")), 1e-9)
	})

	t.Run("error only increments the request counter", func(t *testing.T) {
		r := NewRegistry()
		r.Record(domain.CompletionOutcome{
			RequestID:    "req-err",
			Model:        "gpt-4",
			Status:       domain.StatusError,
			ErrorMessage: "simulated generation failure",
			UserID:       "alice",
			Endpoint:     "/v1/completions",
		})

		assert.Equal(t, 1.0, sum(metricFamily(t, r, "llmeter_requests_total")))
		assert.Empty(t, metricFamily(t, r, "llmeter_request_duration_seconds"))
		assert.Empty(t, metricFamily(t, r, "llmeter_cost_usd_total"))
	})

	t.Run("status is a counter label", func(t *testing.T) {
		r := NewRegistry()
		r.Record(successOutcome("gpt-4"))
		r.Record(domain.CompletionOutcome{Model: "gpt-4", Status: domain.StatusError, UserID: "alice", Endpoint: "/v1/completions"})

		values := metricFamily(t, r, "llmeter_requests_total")
		assert.Len(t, values, 2)
	})

	t.Run("cost accumulates across requests", func(t *testing.T) {
		r := NewRegistry()
		r.Record(successOutcome("gpt-4"))
		r.Record(successOutcome("gpt-4"))

		assert.InDelta(t, 0.04, sum(metricFamily(t, r, "llmeter_cost_usd_total")), 1e-9)
	})
}

func TestRegistry_ActiveRequests(t *testing.T) {
	r := NewRegistry()

	r.RequestStarted("gpt-4", "/v1/completions")
	r.RequestStarted("gpt-4", "/v1/completions")
	assert.Equal(t, 2.0, sum(metricFamily(t, r, "llmeter_active_requests")))

	r.RequestFinished("gpt-4", "/v1/completions")
	r.RequestFinished("gpt-4", "/v1/completions")
	assert.Equal(t, 0.0, sum(metricFamily(t, r, "llmeter_active_requests")))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.Record(successOutcome("gpt-4"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "llmeter_requests_total")
	assert.Contains(t, rec.Body.String(), `model="gpt-4"`)
}
