package services

import (
	"context"
	"testing"
	"time"

	assert "github.com/stretchr/testify/assert"

	config "github.com/llmeter/llmeter/config"
	domain "github.com/llmeter/llmeter/internal/domain"
	metrics "github.com/llmeter/llmeter/internal/metrics"
	simulator "github.com/llmeter/llmeter/internal/simulator"
	storage "github.com/llmeter/llmeter/internal/storage"
)

func newDemoFixture(t *testing.T, cfg config.DemoConfig) (*DemoService, *storage.MemoryStore) {
	t.Helper()

	registry := metrics.NewRegistry()
	store := storage.NewMemoryStore()
	sim := simulator.NewWithSeed(42, func(time.Duration) {})
	completions := NewCompletionService(sim, registry, store, config.PricingConfig{}, "gpt-3.5-turbo")

	return NewDemoServiceWithSeed(completions, cfg, 7), store
}

func TestDemoService_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("produces the requested number of outcomes", func(t *testing.T) {
		demo, store := newDemoFixture(t, config.DemoConfig{ErrorRate: 0.1, MaxCount: 1000})

		outcomes := demo.Run(ctx, 25, false)
		assert.Len(t, outcomes, 25)
		assert.Equal(t, 25, store.OutcomeCount())
	})

	t.Run("without error injection every outcome succeeds", func(t *testing.T) {
		demo, _ := newDemoFixture(t, config.DemoConfig{ErrorRate: 1.0, MaxCount: 1000})

		outcomes := demo.Run(ctx, 20, false)
		for _, outcome := range outcomes {
			assert.Equal(t, domain.StatusSuccess, outcome.Status)
		}
	})

	t.Run("error rate shapes the failure fraction", func(t *testing.T) {
		demo, _ := newDemoFixture(t, config.DemoConfig{ErrorRate: 0.5, MaxCount: 10000})

		outcomes := demo.Run(ctx, 1000, true)

		errorCount := 0
		for _, outcome := range outcomes {
			if outcome.Status == domain.StatusError {
				errorCount++
				assert.NotEmpty(t, outcome.ErrorMessage)
			}
		}
		assert.Greater(t, errorCount, 400)
		assert.Less(t, errorCount, 600)
	})

	t.Run("batch size is capped", func(t *testing.T) {
		demo, store := newDemoFixture(t, config.DemoConfig{ErrorRate: 0.1, MaxCount: 5})

		outcomes := demo.Run(ctx, 50, false)
		assert.Len(t, outcomes, 5)
		assert.Equal(t, 5, store.OutcomeCount())
	})

	t.Run("samples from the known model set", func(t *testing.T) {
		demo, _ := newDemoFixture(t, config.DemoConfig{ErrorRate: 0, MaxCount: 1000})

		known := make(map[string]bool, len(demoModels))
		for _, model := range demoModels {
			known[model] = true
		}

		for _, outcome := range demo.Run(ctx, 30, false) {
			assert.True(t, known[outcome.Model], "unexpected model %q", outcome.Model)
		}
	})
}
