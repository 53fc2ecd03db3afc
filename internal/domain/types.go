package domain

import "time"

// CompletionStatus is the terminal state of a generation attempt.
type CompletionStatus string

const (
	StatusSuccess CompletionStatus = "success"
	StatusError   CompletionStatus = "error"
)

// CompletionRequest is the inbound payload for a generation call.
// Only the prompt is required; everything else has a default.
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// CompletionOutcome is the immutable record of one generation attempt,
// success or error. It is built exactly once by the completion service and
// then handed by value to the metrics registry and the outcome store.
type CompletionOutcome struct {
	RequestID        string           `json:"request_id"`
	Timestamp        time.Time        `json:"timestamp"`
	Model            string           `json:"model"`
	Response         string           `json:"response,omitempty"`
	PromptTokens     int              `json:"prompt_tokens"`
	CompletionTokens int              `json:"completion_tokens"`
	TotalTokens      int              `json:"total_tokens"`
	TimeToFirstToken float64          `json:"time_to_first_token"`
	TokensPerSecond  float64          `json:"tokens_per_second"`
	TotalDuration    float64          `json:"total_duration"`
	CostUSD          float64          `json:"cost_usd"`
	Status           CompletionStatus `json:"status"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	UserID           string           `json:"user_id"`
	Endpoint         string           `json:"endpoint"`
}

// MetricsSummary aggregates persisted outcomes over a time window. It is
// recomputed on every read and never stored. Averages cover successful rows
// only; empty windows yield zero values, never null.
type MetricsSummary struct {
	TimeRange            string  `json:"time_range"`
	Model                string  `json:"model,omitempty"`
	TotalRequests        int     `json:"total_requests"`
	SuccessRate          float64 `json:"success_rate"`
	ErrorCount           int     `json:"error_count"`
	AvgTimeToFirstToken  float64 `json:"avg_time_to_first_token"`
	AvgTokensPerSecond   float64 `json:"avg_tokens_per_second"`
	AvgTotalDuration     float64 `json:"avg_total_duration"`
	AvgTotalTokens       float64 `json:"avg_total_tokens"`
	TotalCostUSD         float64 `json:"total_cost_usd"`
	TotalTokensProcessed int     `json:"total_tokens_processed"`
}

// CostBreakdown is one (time bucket, model) cell of a grouped cost report
// over successful outcomes.
type CostBreakdown struct {
	Bucket            time.Time `json:"bucket"`
	Model             string    `json:"model"`
	TotalCostUSD      float64   `json:"total_cost_usd"`
	RequestCount      int       `json:"request_count"`
	AvgCostPerRequest float64   `json:"avg_cost_per_request"`
}

// IngestEvent is an external event consumed from the broker and written to
// its own table. This path is deliberately disconnected from the completion
// metrics pipeline.
type IngestEvent struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	EventType string    `json:"event_type"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
