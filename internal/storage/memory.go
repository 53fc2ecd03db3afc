package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/llmeter/llmeter/internal/domain"
)

// MemoryStore implements OutcomeStore in memory. It backs tests and the
// storage.type=memory demo mode where nothing needs to survive a restart.
type MemoryStore struct {
	mutex    sync.RWMutex
	outcomes map[string]domain.CompletionOutcome
	events   map[string]domain.IngestEvent
}

// NewMemoryStore creates a new in-memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		outcomes: make(map[string]domain.CompletionOutcome),
		events:   make(map[string]domain.IngestEvent),
	}
}

// SaveOutcome inserts one outcome, enforcing request_id uniqueness the way
// the relational backends' primary key does
func (m *MemoryStore) SaveOutcome(ctx context.Context, outcome domain.CompletionOutcome) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.outcomes[outcome.RequestID]; exists {
		return fmt.Errorf("duplicate request_id: %s", outcome.RequestID)
	}

	m.outcomes[outcome.RequestID] = outcome
	return nil
}

// Summarize computes aggregate metrics over the time window
func (m *MemoryStore) Summarize(ctx context.Context, timeRange, model string) (domain.MetricsSummary, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	summary := domain.MetricsSummary{
		TimeRange: timeRange,
		Model:     model,
	}

	cutoff := rangeCutoff(timeRange, time.Now().UTC())

	var successes int
	var sumTTFT, sumTPS, sumDuration float64
	var sumTokens int

	for _, outcome := range m.outcomes {
		if outcome.Timestamp.Before(cutoff) {
			continue
		}
		if model != "" && outcome.Model != model {
			continue
		}

		summary.TotalRequests++
		if outcome.Status != domain.StatusSuccess {
			summary.ErrorCount++
			continue
		}

		successes++
		sumTTFT += outcome.TimeToFirstToken
		sumTPS += outcome.TokensPerSecond
		sumDuration += outcome.TotalDuration
		sumTokens += outcome.TotalTokens
		summary.TotalCostUSD += outcome.CostUSD
	}

	if summary.TotalRequests > 0 {
		summary.SuccessRate = float64(successes) / float64(summary.TotalRequests)
	}
	if successes > 0 {
		n := float64(successes)
		summary.AvgTimeToFirstToken = sumTTFT / n
		summary.AvgTokensPerSecond = sumTPS / n
		summary.AvgTotalDuration = sumDuration / n
		summary.AvgTotalTokens = float64(sumTokens) / n
		summary.TotalTokensProcessed = sumTokens
	}

	return summary, nil
}

// CostBreakdown buckets successful outcomes by (time bucket, model)
func (m *MemoryStore) CostBreakdown(ctx context.Context, timeRange, groupBy string) ([]domain.CostBreakdown, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	cutoff := rangeCutoff(timeRange, time.Now().UTC())
	bucketWidth := NormalizeGroupBy(groupBy)

	type bucketKey struct {
		bucket time.Time
		model  string
	}

	cells := make(map[bucketKey]*domain.CostBreakdown)
	for _, outcome := range m.outcomes {
		if outcome.Timestamp.Before(cutoff) || outcome.Status != domain.StatusSuccess {
			continue
		}

		bucket := outcome.Timestamp.UTC().Truncate(time.Hour)
		if bucketWidth == "day" {
			bucket = outcome.Timestamp.UTC().Truncate(24 * time.Hour)
		}

		key := bucketKey{bucket: bucket, model: outcome.Model}
		cell, ok := cells[key]
		if !ok {
			cell = &domain.CostBreakdown{Bucket: bucket, Model: outcome.Model}
			cells[key] = cell
		}
		cell.TotalCostUSD += outcome.CostUSD
		cell.RequestCount++
	}

	breakdowns := make([]domain.CostBreakdown, 0, len(cells))
	for _, cell := range cells {
		if cell.RequestCount > 0 {
			cell.AvgCostPerRequest = cell.TotalCostUSD / float64(cell.RequestCount)
		}
		breakdowns = append(breakdowns, *cell)
	}

	sort.Slice(breakdowns, func(i, j int) bool {
		if !breakdowns[i].Bucket.Equal(breakdowns[j].Bucket) {
			return breakdowns[i].Bucket.After(breakdowns[j].Bucket)
		}
		return breakdowns[i].Model < breakdowns[j].Model
	})

	return breakdowns, nil
}

// SaveEvent inserts one broker event
func (m *MemoryStore) SaveEvent(ctx context.Context, event domain.IngestEvent) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.events[event.ID]; exists {
		return fmt.Errorf("duplicate event id: %s", event.ID)
	}

	m.events[event.ID] = event
	return nil
}

// OutcomeCount reports the number of stored outcomes (test helper)
func (m *MemoryStore) OutcomeCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.outcomes)
}

// EventCount reports the number of stored events (test helper)
func (m *MemoryStore) EventCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.events)
}

// Health checks if the storage is healthy and reachable
func (m *MemoryStore) Health(ctx context.Context) error {
	return nil
}

// Close clears the store
func (m *MemoryStore) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.outcomes = make(map[string]domain.CompletionOutcome)
	m.events = make(map[string]domain.IngestEvent)
	return nil
}
