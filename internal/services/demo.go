package services

import (
	"context"
	"math/rand"
	"sync"
	"time"

	config "github.com/llmeter/llmeter/config"
	domain "github.com/llmeter/llmeter/internal/domain"
	logger "github.com/llmeter/llmeter/internal/logger"
)

var demoPrompts = []string{
	"Explain the difference between latency and throughput in LLM serving.",
	"Write a short summary of how token-based pricing works.",
	"What are the tradeoffs between small and large language models?",
	"Draft a status update for a metrics dashboard rollout.",
	"How should I think about caching completions in a gateway?",
	"Compare streaming and non-streaming completion APIs.",
}

var demoModels = []string{
	"gpt-3.5-turbo",
	"gpt-4",
	"gpt-4o-mini",
	"claude-3-haiku",
	"claude-3-sonnet",
	"llama-3-8b",
}

var demoUsers = []string{
	"alice", "bob", "carol", "dave", "demo-batch",
}

// DemoService drives batches of synthetic traffic through the completion
// service, optionally forcing a configurable fraction of requests into
// deliberate generation failures. Requests run sequentially with a fixed
// pause between them; the pacing is a demo choice, not a correctness
// requirement.
type DemoService struct {
	completions *CompletionService
	errorRate   float64
	pause       time.Duration
	maxCount    int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDemoService creates a demo generator seeded from the wall clock.
func NewDemoService(completions *CompletionService, cfg config.DemoConfig) *DemoService {
	return NewDemoServiceWithSeed(completions, cfg, time.Now().UnixNano())
}

// NewDemoServiceWithSeed creates a demo generator with a fixed seed for
// deterministic tests.
func NewDemoServiceWithSeed(completions *CompletionService, cfg config.DemoConfig, seed int64) *DemoService {
	return &DemoService{
		completions: completions,
		errorRate:   cfg.ErrorRate,
		pause:       time.Duration(cfg.PauseMs) * time.Millisecond,
		maxCount:    cfg.MaxCount,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Run issues count sequential requests and returns every outcome. When
// includeErrors is set, each request fails with probability equal to the
// configured error rate. Persistence failures are logged and the batch
// continues; the outcome is still part of the result set.
func (d *DemoService) Run(ctx context.Context, count int, includeErrors bool) []*domain.CompletionOutcome {
	if d.maxCount > 0 && count > d.maxCount {
		logger.Warn("Demo batch size capped", "requested", count, "max", d.maxCount)
		count = d.maxCount
	}

	outcomes := make([]*domain.CompletionOutcome, 0, count)
	for i := 0; i < count; i++ {
		req := d.sampleRequest()

		var outcome *domain.CompletionOutcome
		var err error
		if includeErrors && d.roll() < d.errorRate {
			outcome, err = d.completions.GenerateWithFault(ctx, req, ErrSimulatedFailure)
		} else {
			outcome, err = d.completions.Generate(ctx, req)
		}
		if err != nil {
			logger.Error("Demo request failed to persist", "index", i, "error", err)
		}
		outcomes = append(outcomes, outcome)

		if d.pause > 0 && i < count-1 {
			time.Sleep(d.pause)
		}
	}

	logger.Info("Demo batch complete", "count", len(outcomes), "include_errors", includeErrors)
	return outcomes
}

func (d *DemoService) sampleRequest() domain.CompletionRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	return domain.CompletionRequest{
		Prompt: demoPrompts[d.rng.Intn(len(demoPrompts))],
		Model:  demoModels[d.rng.Intn(len(demoModels))],
		UserID: demoUsers[d.rng.Intn(len(demoUsers))],
	}
}

func (d *DemoService) roll() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64()
}
