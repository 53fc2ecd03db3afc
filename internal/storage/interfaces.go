package storage

import (
	"context"

	domain "github.com/llmeter/llmeter/internal/domain"
)

// OutcomeStore is the persistence boundary for completion outcomes and the
// aggregate queries computed over them. The ingest-event write sits on the
// same store because both tables live in the same database, but the two
// paths never touch each other's rows.
type OutcomeStore interface {
	// SaveOutcome inserts one outcome row. request_id uniqueness is
	// store-enforced; the application never upserts.
	SaveOutcome(ctx context.Context, outcome domain.CompletionOutcome) error

	// Summarize computes aggregate metrics over outcomes newer than the
	// shorthand time range, optionally filtered by model. Empty windows
	// yield zero values.
	Summarize(ctx context.Context, timeRange, model string) (domain.MetricsSummary, error)

	// CostBreakdown buckets successful outcomes into hour- or day-sized
	// windows grouped by model, newest bucket first, then model name.
	CostBreakdown(ctx context.Context, timeRange, groupBy string) ([]domain.CostBreakdown, error)

	// SaveEvent inserts one broker event into its own table.
	SaveEvent(ctx context.Context, event domain.IngestEvent) error

	// Health checks if the storage is healthy and reachable
	Health(ctx context.Context) error

	// Close closes the storage connection
	Close() error
}
