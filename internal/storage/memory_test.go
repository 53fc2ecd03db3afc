package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"

	domain "github.com/llmeter/llmeter/internal/domain"
)

func testOutcome(id, model string, age time.Duration, status domain.CompletionStatus, cost float64) domain.CompletionOutcome {
	outcome := domain.CompletionOutcome{
		RequestID:        id,
		Timestamp:        time.Now().UTC().Add(-age),
		Model:            model,
		PromptTokens:     100,
		CompletionTokens: 200,
		TotalTokens:      300,
		TimeToFirstToken: 0.5,
		TokensPerSecond:  40,
		TotalDuration:    5.5,
		CostUSD:          cost,
		Status:           status,
		UserID:           "tester",
		Endpoint:         "/v1/completions",
	}
	if status == domain.StatusError {
		outcome.PromptTokens = 0
		outcome.CompletionTokens = 0
		outcome.TotalTokens = 0
		outcome.TimeToFirstToken = 0
		outcome.TokensPerSecond = 0
		outcome.TotalDuration = 0
		outcome.CostUSD = 0
		outcome.ErrorMessage = "simulated generation failure"
	}
	return outcome
}

func TestMemoryStore_SaveOutcome(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	t.Run("saves outcome", func(t *testing.T) {
		err := store.SaveOutcome(ctx, testOutcome("req-1", "gpt-4", 0, domain.StatusSuccess, 0.01))
		assert.NoError(t, err)
		assert.Equal(t, 1, store.OutcomeCount())
	})

	t.Run("rejects duplicate request id", func(t *testing.T) {
		err := store.SaveOutcome(ctx, testOutcome("req-1", "gpt-4", 0, domain.StatusSuccess, 0.01))
		assert.Error(t, err)
	})
}

func TestMemoryStore_Summarize(t *testing.T) {
	ctx := context.Background()

	t.Run("empty window yields zero values", func(t *testing.T) {
		store := NewMemoryStore()

		summary, err := store.Summarize(ctx, "1h", "")
		require.NoError(t, err)

		assert.Equal(t, 0, summary.TotalRequests)
		assert.Equal(t, 0.0, summary.SuccessRate)
		assert.Equal(t, 0, summary.ErrorCount)
		assert.Equal(t, 0.0, summary.AvgTimeToFirstToken)
		assert.Equal(t, 0.0, summary.AvgTokensPerSecond)
		assert.Equal(t, 0.0, summary.AvgTotalDuration)
		assert.Equal(t, 0.0, summary.TotalCostUSD)
	})

	t.Run("aggregates over the window", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("a", "gpt-4", time.Minute, domain.StatusSuccess, 0.02)))
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("b", "gpt-4", 2*time.Minute, domain.StatusSuccess, 0.04)))
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("c", "gpt-4", 3*time.Minute, domain.StatusError, 0)))

		summary, err := store.Summarize(ctx, "1h", "")
		require.NoError(t, err)

		assert.Equal(t, 3, summary.TotalRequests)
		assert.Equal(t, 1, summary.ErrorCount)
		assert.InDelta(t, 2.0/3.0, summary.SuccessRate, 1e-9)
		assert.InDelta(t, 0.06, summary.TotalCostUSD, 1e-9)
		assert.InDelta(t, 0.5, summary.AvgTimeToFirstToken, 1e-9)
		assert.InDelta(t, 300, summary.AvgTotalTokens, 1e-9)
		assert.Equal(t, 600, summary.TotalTokensProcessed)
	})

	t.Run("model filter", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("a", "gpt-4", time.Minute, domain.StatusSuccess, 0.02)))
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("b", "claude-3-haiku", time.Minute, domain.StatusSuccess, 0.001)))

		summary, err := store.Summarize(ctx, "1h", "gpt-4")
		require.NoError(t, err)

		assert.Equal(t, 1, summary.TotalRequests)
		assert.InDelta(t, 0.02, summary.TotalCostUSD, 1e-9)
	})

	t.Run("rows outside the window are excluded", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("old", "gpt-4", 2*time.Hour, domain.StatusSuccess, 0.02)))

		summary, err := store.Summarize(ctx, "1h", "")
		require.NoError(t, err)
		assert.Equal(t, 0, summary.TotalRequests)

		summary, err = store.Summarize(ctx, "6h", "")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.TotalRequests)
	})

	t.Run("reads are idempotent", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("a", "gpt-4", time.Minute, domain.StatusSuccess, 0.02)))

		first, err := store.Summarize(ctx, "1h", "")
		require.NoError(t, err)
		second, err := store.Summarize(ctx, "1h", "")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestMemoryStore_CostBreakdown(t *testing.T) {
	ctx := context.Background()

	t.Run("groups by hour bucket and model", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("a", "gpt-4", time.Minute, domain.StatusSuccess, 0.02)))
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("b", "gpt-4", time.Minute, domain.StatusSuccess, 0.04)))
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("c", "claude-3-haiku", time.Minute, domain.StatusSuccess, 0.001)))
		// errors never appear in cost breakdowns
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("d", "gpt-4", time.Minute, domain.StatusError, 0)))

		breakdowns, err := store.CostBreakdown(ctx, "24h", "hour")
		require.NoError(t, err)

		var gpt4 *domain.CostBreakdown
		for i := range breakdowns {
			if breakdowns[i].Model == "gpt-4" {
				gpt4 = &breakdowns[i]
			}
		}
		require.NotNil(t, gpt4)
		assert.Equal(t, 2, gpt4.RequestCount)
		assert.InDelta(t, 0.06, gpt4.TotalCostUSD, 1e-9)
		assert.InDelta(t, 0.03, gpt4.AvgCostPerRequest, 1e-9)
	})

	t.Run("ordered newest bucket first then model name", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("a", "zeta-model", 30*time.Hour, domain.StatusSuccess, 0.01)))
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("b", "alpha-model", time.Minute, domain.StatusSuccess, 0.01)))
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("c", "beta-model", time.Minute, domain.StatusSuccess, 0.01)))

		breakdowns, err := store.CostBreakdown(ctx, "7d", "hour")
		require.NoError(t, err)
		require.Len(t, breakdowns, 3)

		assert.Equal(t, "alpha-model", breakdowns[0].Model)
		assert.Equal(t, "beta-model", breakdowns[1].Model)
		assert.Equal(t, "zeta-model", breakdowns[2].Model)
		assert.True(t, breakdowns[0].Bucket.After(breakdowns[2].Bucket))
	})

	t.Run("day buckets collapse hours", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("a", "gpt-4", time.Minute, domain.StatusSuccess, 0.01)))
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("b", "gpt-4", 3*time.Hour, domain.StatusSuccess, 0.01)))

		byHour, err := store.CostBreakdown(ctx, "24h", "hour")
		require.NoError(t, err)
		byDay, err := store.CostBreakdown(ctx, "24h", "day")
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(byHour), len(byDay))
	})
}

func TestMemoryStore_Events(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.SaveEvent(ctx, domain.IngestEvent{
			ID:        fmt.Sprintf("evt-%d", i),
			Source:    "social",
			EventType: "post",
			Payload:   `{"text":"hello"}`,
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, store.EventCount())
	assert.Error(t, store.SaveEvent(ctx, domain.IngestEvent{ID: "evt-0"}))
}
