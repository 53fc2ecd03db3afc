package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	config "github.com/llmeter/llmeter/config"
	domain "github.com/llmeter/llmeter/internal/domain"
)

// sqliteTimeLayout is a fixed-width UTC layout so lexicographic comparison
// matches chronological order and strftime can bucket directly.
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

// SQLiteStore implements OutcomeStore using SQLite for local/demo use
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg config.SQLiteConfig) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, path: cfg.Path}

	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS completion_outcomes (
		request_id TEXT PRIMARY KEY,
		time TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL,
		time_to_first_token REAL NOT NULL,
		tokens_per_second REAL NOT NULL,
		total_duration REAL NOT NULL,
		cost_usd REAL NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT,
		user_id TEXT,
		endpoint TEXT
	);

	CREATE TABLE IF NOT EXISTS ingest_events (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_time ON completion_outcomes(time DESC);
	CREATE INDEX IF NOT EXISTS idx_outcomes_model_time ON completion_outcomes(model, time DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveOutcome inserts one outcome row
func (s *SQLiteStore) SaveOutcome(ctx context.Context, outcome domain.CompletionOutcome) error {
	var errorMessage sql.NullString
	if outcome.ErrorMessage != "" {
		errorMessage = sql.NullString{String: outcome.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completion_outcomes (
			request_id, time, model, prompt_tokens, completion_tokens, total_tokens,
			time_to_first_token, tokens_per_second, total_duration, cost_usd,
			status, error_message, user_id, endpoint
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, outcome.RequestID, outcome.Timestamp.UTC().Format(sqliteTimeLayout), outcome.Model,
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
func (s *SQLiteStore) Summarize(ctx context.Context, timeRange, model string) (domain.MetricsSummary, error) {
	summary := domain.MetricsSummary{
		TimeRange: timeRange,
		Model:     model,
	}

	cutoff := rangeCutoff(timeRange, time.Now().UTC()).Format(sqliteTimeLayout)

	query := `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'error' THEN 1 END),
			COALESCE(AVG(CASE WHEN status = 'success' THEN time_to_first_token END), 0),
			COALESCE(AVG(CASE WHEN status = 'success' THEN tokens_per_second END), 0),
			COALESCE(AVG(CASE WHEN status = 'success' THEN total_duration END), 0),
			COALESCE(AVG(CASE WHEN status = 'success' THEN total_tokens END), 0),
			COALESCE(SUM(CASE WHEN status = 'success' THEN cost_usd END), 0),
			COALESCE(SUM(CASE WHEN status = 'success' THEN total_tokens END), 0)
		FROM completion_outcomes
		WHERE time >= ?`

	args := []any{cutoff}
	if model != "" {
		query += " AND model = ?"
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
func (s *SQLiteStore) CostBreakdown(ctx context.Context, timeRange, groupBy string) ([]domain.CostBreakdown, error) {
	cutoff := rangeCutoff(timeRange, time.Now().UTC()).Format(sqliteTimeLayout)

	bucketExpr := "strftime('%Y-%m-%d %H:00:00', time)"
	bucketLayout := "2006-01-02 15:04:05"
	if NormalizeGroupBy(groupBy) == "day" {
		bucketExpr = "strftime('%Y-%m-%d 00:00:00', time)"
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s AS bucket, model, SUM(cost_usd), COUNT(*)
		FROM completion_outcomes
		WHERE time >= ? AND status = 'success'
		GROUP BY bucket, model
		ORDER BY bucket DESC, model ASC
	`, bucketExpr), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var breakdowns []domain.CostBreakdown
	for rows.Next() {
		var b domain.CostBreakdown
		var bucket string
		if err := rows.Scan(&bucket, &b.Model, &b.TotalCostUSD, &b.RequestCount); err != nil {
			return nil, fmt.Errorf("failed to scan cost breakdown row: %w", err)
		}

		parsed, err := time.ParseInLocation(bucketLayout, bucket, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bucket %q: %w", bucket, err)
		}
		b.Bucket = parsed

		if b.RequestCount > 0 {
			b.AvgCostPerRequest = b.TotalCostUSD / float64(b.RequestCount)
		}
		breakdowns = append(breakdowns, b)
	}

	return breakdowns, rows.Err()
}

// SaveEvent inserts one broker event
func (s *SQLiteStore) SaveEvent(ctx context.Context, event domain.IngestEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_events (id, source, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.ID, event.Source, event.EventType, event.Payload, event.CreatedAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", event.ID, err)
	}

	return nil
}

// Health checks if the database is reachable and functional
func (s *SQLiteStore) Health(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
