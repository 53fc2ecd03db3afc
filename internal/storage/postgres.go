package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	config "github.com/llmeter/llmeter/config"
	domain "github.com/llmeter/llmeter/internal/domain"
)

// PostgresStore implements OutcomeStore using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store instance
func NewPostgresStore(cfg config.PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates the outcome and event tables
func (s *PostgresStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS completion_outcomes (
		request_id VARCHAR(64) PRIMARY KEY,
		time TIMESTAMP WITH TIME ZONE NOT NULL,
		model VARCHAR(255) NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL,
		time_to_first_token DOUBLE PRECISION NOT NULL,
		tokens_per_second DOUBLE PRECISION NOT NULL,
		total_duration DOUBLE PRECISION NOT NULL,
		cost_usd DOUBLE PRECISION NOT NULL,
		status VARCHAR(16) NOT NULL,
		error_message TEXT,
		user_id VARCHAR(255),
		endpoint VARCHAR(255)
	);

	CREATE TABLE IF NOT EXISTS ingest_events (
		id VARCHAR(64) PRIMARY KEY,
		source VARCHAR(255) NOT NULL,
		event_type VARCHAR(255) NOT NULL,
		payload JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_time ON completion_outcomes(time DESC);
	CREATE INDEX IF NOT EXISTS idx_outcomes_model_time ON completion_outcomes(model, time DESC);
	CREATE INDEX IF NOT EXISTS idx_ingest_events_created_at ON ingest_events(created_at DESC);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveOutcome inserts one outcome row
func (s *PostgresStore) SaveOutcome(ctx context.Context, outcome domain.CompletionOutcome) error {
	var errorMessage sql.NullString
	if outcome.ErrorMessage != "" {
		errorMessage = sql.NullString{String: outcome.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completion_outcomes (
			request_id, time, model, prompt_tokens, completion_tokens, total_tokens,
			time_to_first_token, tokens_per_second, total_duration, cost_usd,
			status, error_message, user_id, endpoint
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, outcome.RequestID, outcome.Timestamp, outcome.Model,
		outcome.PromptTokens, outcome.CompletionTokens, outcome.TotalTokens,
		outcome.TimeToFirstToken, outcome.TokensPerSecond, outcome.TotalDuration,
		outcome.CostUSD, string(outcome.Status), errorMessage,
		outcome.UserID, outcome.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to save outcome %s: %w", outcome.RequestID, err)
	}

	return nil
}

// Summarize computes aggregate metrics over the time window
func (s *PostgresStore) Summarize(ctx context.Context, timeRange, model string) (domain.MetricsSummary, error) {
	summary := domain.MetricsSummary{
		TimeRange: timeRange,
		Model:     model,
	}

	cutoff := rangeCutoff(timeRange, time.Now().UTC())

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(AVG(time_to_first_token) FILTER (WHERE status = 'success'), 0),
			COALESCE(AVG(tokens_per_second) FILTER (WHERE status = 'success'), 0),
			COALESCE(AVG(total_duration) FILTER (WHERE status = 'success'), 0),
			COALESCE(AVG(total_tokens) FILTER (WHERE status = 'success'), 0),
			COALESCE(SUM(cost_usd) FILTER (WHERE status = 'success'), 0),
			COALESCE(SUM(total_tokens) FILTER (WHERE status = 'success'), 0)
		FROM completion_outcomes
		WHERE time >= $1`

	args := []any{cutoff}
	if model != "" {
		query += " AND model = $2"
		args = append(args, model)
	}

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalRequests,
		&summary.ErrorCount,
		&summary.AvgTimeToFirstToken,
		&summary.AvgTokensPerSecond,
		&summary.AvgTotalDuration,
		&summary.AvgTotalTokens,
		&summary.TotalCostUSD,
		&summary.TotalTokensProcessed,
	)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize outcomes: %w", err)
	}

	if summary.TotalRequests > 0 {
		summary.SuccessRate = float64(summary.TotalRequests-summary.ErrorCount) / float64(summary.TotalRequests)
	}

	return summary, nil
}

// CostBreakdown buckets successful outcomes by (time bucket, model)
func (s *PostgresStore) CostBreakdown(ctx context.Context, timeRange, groupBy string) ([]domain.CostBreakdown, error) {
	cutoff := rangeCutoff(timeRange, time.Now().UTC())
	bucket := NormalizeGroupBy(groupBy)

	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc($1, time) AS bucket, model, SUM(cost_usd), COUNT(*)
		FROM completion_outcomes
		WHERE time >= $2 AND status = 'success'
		GROUP BY bucket, model
		ORDER BY bucket DESC, model ASC
	`, bucket, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var breakdowns []domain.CostBreakdown
	for rows.Next() {
		var b domain.CostBreakdown
		if err := rows.Scan(&b.Bucket, &b.Model, &b.TotalCostUSD, &b.RequestCount); err != nil {
			return nil, fmt.Errorf("failed to scan cost breakdown row: %w", err)
		}
		if b.RequestCount > 0 {
			b.AvgCostPerRequest = b.TotalCostUSD / float64(b.RequestCount)
		}
		breakdowns = append(breakdowns, b)
	}

	return breakdowns, rows.Err()
}

// SaveEvent inserts one broker event
func (s *PostgresStore) SaveEvent(ctx context.Context, event domain.IngestEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_events (id, source, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.Source, event.EventType, event.Payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", event.ID, err)
	}

	return nil
}

// Health checks if the database is reachable and functional
func (s *PostgresStore) Health(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
