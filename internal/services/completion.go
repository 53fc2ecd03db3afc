package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	uuid "github.com/google/uuid"

	config "github.com/llmeter/llmeter/config"
	domain "github.com/llmeter/llmeter/internal/domain"
	logger "github.com/llmeter/llmeter/internal/logger"
	metrics "github.com/llmeter/llmeter/internal/metrics"
	simulator "github.com/llmeter/llmeter/internal/simulator"
	storage "github.com/llmeter/llmeter/internal/storage"
)

// CompletionEndpoint is the logical route label recorded on every outcome.
const CompletionEndpoint = "/v1/completions"

// throughputFloor is the minimum generation-phase denominator in seconds,
// preventing division blow-up when generation is near-instantaneous.
const throughputFloor = 0.1

// ErrSimulatedFailure is the deliberate generation failure injected by the
// demo batch path.
var ErrSimulatedFailure = errors.New("simulated generation failure")

// Publisher receives every completed outcome, success or error. The live
// websocket feed implements it.
type Publisher interface {
	Publish(outcome domain.CompletionOutcome)
}

// CompletionService orchestrates one generation request end to end:
// simulate, derive metrics, record to the registry, persist to the store.
// Every invocation produces exactly one outcome and records it in both
// sinks; the two writes are deliberately not transactionally coupled.
type CompletionService struct {
	sim          *simulator.Simulator
	registry     *metrics.Registry
	store        storage.OutcomeStore
	pricing      config.PricingConfig
	defaultModel string
	publisher    Publisher
}

// NewCompletionService creates a completion service with its dependencies
// injected. The registry instance is owned by the caller so tests can supply
// a fresh one.
func NewCompletionService(
	sim *simulator.Simulator,
	registry *metrics.Registry,
	store storage.OutcomeStore,
	pricing config.PricingConfig,
	defaultModel string,
) *CompletionService {
	return &CompletionService{
		sim:          sim,
		registry:     registry,
		store:        store,
		pricing:      pricing,
		defaultModel: defaultModel,
	}
}

// SetPublisher attaches an optional live outcome feed.
func (s *CompletionService) SetPublisher(p Publisher) {
	s.publisher = p
}

// Generate runs one completion request. The returned outcome is always
// well-formed, success or error; a non-nil error means persistence failed
// for this request and the caller should treat the request as failed.
func (s *CompletionService) Generate(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionOutcome, error) {
	return s.generate(ctx, req, nil)
}

// GenerateWithFault runs one completion request that fails with the
// injected error instead of invoking the simulator. The error outcome still
// flows through the registry and the store like any other.
func (s *CompletionService) GenerateWithFault(ctx context.Context, req domain.CompletionRequest, injected error) (*domain.CompletionOutcome, error) {
	return s.generate(ctx, req, injected)
}

func (s *CompletionService) generate(ctx context.Context, req domain.CompletionRequest, injected error) (*domain.CompletionOutcome, error) {
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	requestID := uuid.New().String()
	start := time.Now()

	s.registry.RequestStarted(model, CompletionEndpoint)
	defer s.registry.RequestFinished(model, CompletionEndpoint)

	var outcome domain.CompletionOutcome
	if injected != nil {
		outcome = s.errorOutcome(requestID, model, userID, start, injected)
	} else {
		response, ttft := s.sim.Generate(req.Prompt, model, req.MaxTokens, req.Temperature)
		outcome = s.successOutcome(requestID, model, userID, start, req.Prompt, response, ttft)
	}

	s.registry.Record(outcome)
	if s.publisher != nil {
		s.publisher.Publish(outcome)
	}

	if err := s.store.SaveOutcome(ctx, outcome); err != nil {
		// The registry entry stays; the two sinks are best-effort dual
		// writes and a store failure does not unwind in-memory metrics.
		logger.Error("Failed to persist outcome",
			"request_id", requestID, "model", model, "error", err)
		return &outcome, fmt.Errorf("failed to persist outcome: %w", err)
	}

	logger.Debug("Recorded completion outcome",
		"request_id", requestID, "model", model,
		"status", string(outcome.Status), "cost_usd", outcome.CostUSD)

	return &outcome, nil
}

func (s *CompletionService) successOutcome(requestID, model, userID string, start time.Time, prompt, response string, ttft time.Duration) domain.CompletionOutcome {
	totalDuration := time.Since(start).Seconds()
	ttftSeconds := ttft.Seconds()

	promptTokens := domain.EstimateTokens(prompt)
	completionTokens := domain.EstimateTokens(response)

	generationSeconds := math.Max(totalDuration-ttftSeconds, throughputFloor)
	tokensPerSecond := float64(completionTokens) / generationSeconds

	return domain.CompletionOutcome{
		RequestID:        requestID,
		Timestamp:        start.UTC(),
		Model:            model,
		Response:         response,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		TimeToFirstToken: ttftSeconds,
		TokensPerSecond:  tokensPerSecond,
		TotalDuration:    totalDuration,
		CostUSD:          s.cost(model, promptTokens, completionTokens),
		Status:           domain.StatusSuccess,
		UserID:           userID,
		Endpoint:         CompletionEndpoint,
	}
}

func (s *CompletionService) errorOutcome(requestID, model, userID string, start time.Time, cause error) domain.CompletionOutcome {
	return domain.CompletionOutcome{
		RequestID:    requestID,
		Timestamp:    start.UTC(),
		Model:        model,
		Status:       domain.StatusError,
		ErrorMessage: cause.Error(),
		UserID:       userID,
		Endpoint:     CompletionEndpoint,
	}
}

// cost prices the request at the model's per-1K-token rates. Unknown models
// fall back to the fixed minimal pricing and log a warning.
func (s *CompletionService) cost(model string, promptTokens, completionTokens int) float64 {
	pricing, known := s.pricing.PricingFor(model)
	if !known {
		logger.Warn("Unknown model, using fallback pricing", "model", model)
	}

	return float64(promptTokens)/1000*pricing.InputPricePer1K +
		float64(completionTokens)/1000*pricing.OutputPricePer1K
}
