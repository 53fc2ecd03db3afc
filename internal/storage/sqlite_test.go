package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"

	config "github.com/llmeter/llmeter/config"
	domain "github.com/llmeter/llmeter/internal/domain"
)

func setupTestStore(t *testing.T) (*SQLiteStore, func()) {
	tempDir, err := os.MkdirTemp("", "sqlite_test_*")
	require.NoError(t, err)

	store, err := NewSQLiteStore(config.SQLiteConfig{
		Path: filepath.Join(tempDir, "test.db"),
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = store.Close()
		_ = os.RemoveAll(tempDir)
	}

	return store, cleanup
}

func TestSQLiteStore_BasicOperations(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("health check", func(t *testing.T) {
		assert.NoError(t, store.Health(ctx))
	})

	t.Run("save outcome", func(t *testing.T) {
		err := store.SaveOutcome(ctx, testOutcome("req-1", "gpt-4", time.Minute, domain.StatusSuccess, 0.02))
		assert.NoError(t, err)
	})

	t.Run("duplicate request id fails", func(t *testing.T) {
		err := store.SaveOutcome(ctx, testOutcome("req-1", "gpt-4", time.Minute, domain.StatusSuccess, 0.02))
		assert.Error(t, err)
	})

	t.Run("save error outcome with message", func(t *testing.T) {
		err := store.SaveOutcome(ctx, testOutcome("req-2", "gpt-4", time.Minute, domain.StatusError, 0))
		assert.NoError(t, err)
	})

	t.Run("save event", func(t *testing.T) {
		err := store.SaveEvent(ctx, domain.IngestEvent{
			ID:        "evt-1",
			Source:    "social",
			EventType: "post",
			Payload:   `{"text":"hello"}`,
			CreatedAt: time.Now().UTC(),
		})
		assert.NoError(t, err)
	})
}

func TestSQLiteStore_Summarize(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("empty window yields zero values", func(t *testing.T) {
		summary, err := store.Summarize(ctx, "1h", "")
		require.NoError(t, err)

		assert.Equal(t, 0, summary.TotalRequests)
		assert.Equal(t, 0.0, summary.SuccessRate)
		assert.Equal(t, 0.0, summary.AvgTokensPerSecond)
		assert.Equal(t, 0.0, summary.TotalCostUSD)
		assert.Equal(t, 0, summary.ErrorCount)
	})

	t.Run("aggregates successes and errors", func(t *testing.T) {
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
		assert.Equal(t, 600, summary.TotalTokensProcessed)
	})

	t.Run("model filter", func(t *testing.T) {
		require.NoError(t, store.SaveOutcome(ctx, testOutcome("d", "claude-3-haiku", time.Minute, domain.StatusSuccess, 0.001)))

		summary, err := store.Summarize(ctx, "1h", "claude-3-haiku")
		require.NoError(t, err)

		assert.Equal(t, 1, summary.TotalRequests)
		assert.InDelta(t, 0.001, summary.TotalCostUSD, 1e-9)
	})

	t.Run("reads are idempotent", func(t *testing.T) {
		first, err := store.Summarize(ctx, "6h", "")
		require.NoError(t, err)
		second, err := store.Summarize(ctx, "6h", "")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestSQLiteStore_CostBreakdown(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.SaveOutcome(ctx, testOutcome("a", "gpt-4", time.Minute, domain.StatusSuccess, 0.02)))
	require.NoError(t, store.SaveOutcome(ctx, testOutcome("b", "gpt-4", 2*time.Minute, domain.StatusSuccess, 0.04)))
	require.NoError(t, store.SaveOutcome(ctx, testOutcome("c", "alpha-model", time.Minute, domain.StatusSuccess, 0.01)))
	require.NoError(t, store.SaveOutcome(ctx, testOutcome("d", "gpt-4", time.Minute, domain.StatusError, 0)))

	t.Run("hour buckets", func(t *testing.T) {
		breakdowns, err := store.CostBreakdown(ctx, "24h", "hour")
		require.NoError(t, err)
		require.NotEmpty(t, breakdowns)

		var gpt4Total float64
		var gpt4Count int
		for _, b := range breakdowns {
			assert.Equal(t, 0, b.Bucket.Minute())
			assert.Equal(t, 0, b.Bucket.Second())
			if b.Model == "gpt-4" {
				gpt4Total += b.TotalCostUSD
				gpt4Count += b.RequestCount
			}
		}
		assert.InDelta(t, 0.06, gpt4Total, 1e-9)
		assert.Equal(t, 2, gpt4Count)
	})

	t.Run("models sort ascending within a bucket", func(t *testing.T) {
		breakdowns, err := store.CostBreakdown(ctx, "24h", "hour")
		require.NoError(t, err)

		for i := 1; i < len(breakdowns); i++ {
			if breakdowns[i].Bucket.Equal(breakdowns[i-1].Bucket) {
				assert.LessOrEqual(t, breakdowns[i-1].Model, breakdowns[i].Model)
			} else {
				assert.True(t, breakdowns[i-1].Bucket.After(breakdowns[i].Bucket))
			}
		}
	})

	t.Run("day buckets", func(t *testing.T) {
		breakdowns, err := store.CostBreakdown(ctx, "7d", "day")
		require.NoError(t, err)
		require.NotEmpty(t, breakdowns)

		for _, b := range breakdowns {
			assert.Equal(t, 0, b.Bucket.Hour())
		}
	})
}
