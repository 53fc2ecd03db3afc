package simulator

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	domain "github.com/llmeter/llmeter/internal/domain"
)

// baseLatency is the pre-jitter time to first token per model. Unknown
// models get defaultLatency.
var baseLatency = map[string]time.Duration{
	"gpt-4":           900 * time.Millisecond,
	"gpt-4o":          500 * time.Millisecond,
	"gpt-4o-mini":     350 * time.Millisecond,
	"gpt-3.5-turbo":   300 * time.Millisecond,
	"claude-3-opus":   1000 * time.Millisecond,
	"claude-3-sonnet": 600 * time.Millisecond,
	"claude-3-haiku":  250 * time.Millisecond,
	"llama-3-70b":     700 * time.Millisecond,
	"llama-3-8b":      200 * time.Millisecond,
	"mistral-7b":      220 * time.Millisecond,
}

const defaultLatency = 500 * time.Millisecond

var responseTemplates = []string{
	"Here's a thoughtful response to your question. The key insight is that modern language models balance latency, throughput and cost differently depending on their size and serving stack.",
	"Based on the context you provided, there are several angles worth considering. Each approach has tradeoffs in accuracy, speed and operational complexity.",
	"That's an interesting prompt. A reasonable starting point is to break the problem into smaller parts and evaluate each one against your constraints.",
	"Let me walk through this step by step. First, establish what success looks like; second, identify the constraints; third, iterate on candidate solutions.",
	"Great question. In practice the answer depends heavily on workload shape, but a few general principles apply across most deployments.",
}

var paddingSentences = []string{
	" Additional detail can be layered in once the fundamentals are settled.",
	" Benchmarking against a representative workload is the only reliable way to validate assumptions.",
	" Note that these figures shift as providers update their serving infrastructure.",
	" Caching and batching typically recover most of the cost difference at scale.",
	" The same reasoning extends naturally to multi-region deployments.",
}

// premium models produce longer responses, which stretches the simulated
// generation phase the way larger models do in practice.
func isPremiumModel(model string) bool {
	return strings.Contains(model, "gpt-4") ||
		strings.Contains(model, "opus") ||
		strings.Contains(model, "70b")
}

// Simulator produces synthetic completion responses with realistic timing.
// It is pure apart from its two timed sleeps: one for time to first token,
// one emulating streaming generation. It has no error path of its own;
// failure injection belongs to callers.
type Simulator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(time.Duration)
}

// New creates a simulator seeded from the wall clock.
func New() *Simulator {
	return NewWithSeed(time.Now().UnixNano(), time.Sleep)
}

// NewWithSeed creates a simulator with a fixed seed and sleep function so
// tests can make latency and response-length assertions deterministic.
func NewWithSeed(seed int64, sleep func(time.Duration)) *Simulator {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Simulator{
		rng:   rand.New(rand.NewSource(seed)),
		sleep: sleep,
	}
}

// Generate produces a synthetic response for the prompt and returns it with
// the simulated time to first token. The call blocks for the full simulated
// duration; there is no cancellation once generation has begun.
func (s *Simulator) Generate(prompt, model string, maxTokens int, temperature float64) (string, time.Duration) {
	ttft := s.timeToFirstToken(model)
	s.sleep(ttft)

	response := s.buildResponse(model, maxTokens)

	outputTokens := domain.EstimateTokens(response)
	s.sleep(s.generationDelay(outputTokens))

	return response, ttft
}

// timeToFirstToken resolves the model's base latency and applies bounded
// random jitter in [0.7, 1.3).
func (s *Simulator) timeToFirstToken(model string) time.Duration {
	base, ok := baseLatency[model]
	if !ok {
		base = defaultLatency
	}

	s.mu.Lock()
	jitter := 0.7 + s.rng.Float64()*0.6
	s.mu.Unlock()

	return time.Duration(float64(base) * jitter)
}

// buildResponse selects a template, pads it pseudo-randomly (more for
// premium models) and appends a trailing sentence naming the model.
func (s *Simulator) buildResponse(model string, maxTokens int) string {
	s.mu.Lock()
	template := responseTemplates[s.rng.Intn(len(responseTemplates))]

	padCount := s.rng.Intn(3)
	if isPremiumModel(model) {
		padCount += 2 + s.rng.Intn(3)
	}

	var b strings.Builder
	b.WriteString(template)
	for i := 0; i < padCount; i++ {
		b.WriteString(paddingSentences[s.rng.Intn(len(paddingSentences))])
	}
	s.mu.Unlock()

	b.WriteString(fmt.Sprintf(" (Generated by %s.)", model))

	response := b.String()
	if maxTokens > 0 && domain.EstimateTokens(response) > maxTokens {
		response = response[:maxTokens*4]
	}

	return response
}

// generationDelay emulates streaming at 20-30 ms per output token.
func (s *Simulator) generationDelay(outputTokens int) time.Duration {
	s.mu.Lock()
	perToken := time.Duration(20+s.rng.Intn(11)) * time.Millisecond
	s.mu.Unlock()

	return time.Duration(outputTokens) * perToken
}
